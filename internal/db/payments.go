package db

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Spok95/school-fees/internal/ctxutil"
	"github.com/Spok95/school-fees/internal/models"
)

const paymentCols = `id::text, student_id::text, student_name, student_class, student_roll,
	amount, fee_name, reference_number, payment_date, created_at, updated_at`

func scanPayment(r scanner) (models.Payment, error) {
	var p models.Payment
	err := r.Scan(&p.ID, &p.StudentID, &p.StudentName, &p.StudentClass, &p.StudentRoll,
		&p.Amount, &p.FeeName, &p.Reference, &p.PaymentDate, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func CreatePayment(ctx context.Context, q DBTX, p models.Payment) (string, error) {
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()

	if !validID(p.ID) {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO payments (id, student_id, student_name, student_class, student_roll,
		                      amount, fee_name, reference_number, payment_date, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, p.ID, p.StudentID, p.StudentName, p.StudentClass, p.StudentRoll,
		p.Amount, p.FeeName, p.Reference, p.PaymentDate, p.CreatedAt)
	if err != nil {
		return "", err
	}
	return p.ID, nil
}

// UpdatePayment writes only the fields set in p and stamps updated_at.
func UpdatePayment(ctx context.Context, q DBTX, id string, p models.PaymentPatch, at time.Time) error {
	if !validID(id) {
		return notFound("payment", id)
	}
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()

	res, err := q.ExecContext(ctx, `
		UPDATE payments SET
			amount           = COALESCE($2, amount),
			fee_name         = COALESCE($3, fee_name),
			reference_number = COALESCE($4, reference_number),
			payment_date     = COALESCE($5, payment_date),
			updated_at       = $6
		WHERE id = $1
	`, id, p.Amount, p.FeeName, p.Reference, p.PaymentDate, at)
	if err != nil {
		return err
	}
	return mustAffect(res, "payment", id)
}

// DeletePayment removes the payment; its allocations go with it by FK cascade.
func DeletePayment(ctx context.Context, q DBTX, id string) error {
	if !validID(id) {
		return notFound("payment", id)
	}
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()

	res, err := q.ExecContext(ctx, `DELETE FROM payments WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return mustAffect(res, "payment", id)
}

func GetPayment(ctx context.Context, q DBTX, id string) (*models.Payment, error) {
	if !validID(id) {
		return nil, notFound("payment", id)
	}
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()

	p, err := scanPayment(q.QueryRowContext(ctx, `SELECT `+paymentCols+` FROM payments WHERE id = $1`, id))
	if err != nil {
		return nil, noRows(err, "payment", id)
	}
	return &p, nil
}

// ListPayments returns payments newest first by payment date.
func ListPayments(ctx context.Context, q DBTX, studentID string) ([]models.Payment, error) {
	if studentID != "" && !validID(studentID) {
		return nil, nil
	}
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()

	rows, err := q.QueryContext(ctx, `
		SELECT `+paymentCols+` FROM payments
		WHERE $1 = '' OR student_id::text = $1
		ORDER BY payment_date DESC, created_at
	`, studentID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []models.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
