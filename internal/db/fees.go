package db

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Spok95/school-fees/internal/ctxutil"
	"github.com/Spok95/school-fees/internal/models"
)

const feeCols = `id::text, fee_name, amount, is_mandatory, class_from, class_to, created_at`

func CreateFeeRule(ctx context.Context, q DBTX, f models.FeeRule) (string, error) {
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()

	if !validID(f.ID) {
		f.ID = uuid.NewString()
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now()
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO fee_structure (id, fee_name, amount, is_mandatory, class_from, class_to, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, f.ID, f.Name, f.Amount, f.Mandatory, f.ClassFrom, f.ClassTo, f.CreatedAt)
	if err != nil {
		return "", err
	}
	return f.ID, nil
}

func DeleteFeeRule(ctx context.Context, q DBTX, id string) error {
	if !validID(id) {
		return notFound("fee rule", id)
	}
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()

	res, err := q.ExecContext(ctx, `DELETE FROM fee_structure WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return mustAffect(res, "fee rule", id)
}

func ListFeeRules(ctx context.Context, q DBTX) ([]models.FeeRule, error) {
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()

	rows, err := q.QueryContext(ctx, `SELECT `+feeCols+` FROM fee_structure ORDER BY fee_name, created_at`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []models.FeeRule
	for rows.Next() {
		var f models.FeeRule
		if err := rows.Scan(&f.ID, &f.Name, &f.Amount, &f.Mandatory, &f.ClassFrom, &f.ClassTo, &f.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}
