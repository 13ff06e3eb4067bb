package db

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/Spok95/school-fees/internal/ctxutil"
	"github.com/Spok95/school-fees/internal/models"
	"github.com/Spok95/school-fees/internal/store"
)

func CreateAllocation(ctx context.Context, q DBTX, a models.Allocation) (string, error) {
	if !validID(a.PaymentID) {
		return "", notFound("allocation payment", a.PaymentID)
	}
	if !validID(a.BillID) {
		return "", notFound("allocation bill", a.BillID)
	}
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()

	if !validID(a.ID) {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	// INSERT ... SELECT so a missing payment or bill inserts nothing
	// instead of failing the FK.
	res, err := q.ExecContext(ctx, `
		INSERT INTO allocations (id, payment_id, bill_id, student_id, amount, created_at)
		SELECT $1::uuid, p.id, b.id, $4::uuid, $5::numeric, $6::timestamptz
		FROM payments p, bills b
		WHERE p.id = $2 AND b.id = $3
	`, a.ID, a.PaymentID, a.BillID, a.StudentID, a.Amount, a.CreatedAt)
	if err != nil {
		return "", err
	}
	if err := mustAffect(res, "allocation target", a.PaymentID+"/"+a.BillID); err != nil {
		return "", err
	}
	return a.ID, nil
}

func DeleteAllocationsByPayment(ctx context.Context, q DBTX, paymentID string) (int, error) {
	if !validID(paymentID) {
		return 0, nil
	}
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()

	res, err := q.ExecContext(ctx, `DELETE FROM allocations WHERE payment_id = $1`, paymentID)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func DeleteAllocation(ctx context.Context, q DBTX, id string) error {
	if !validID(id) {
		return notFound("allocation", id)
	}
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()

	res, err := q.ExecContext(ctx, `DELETE FROM allocations WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return mustAffect(res, "allocation", id)
}

func ListAllocations(ctx context.Context, q DBTX, studentID string) ([]models.Allocation, error) {
	if studentID != "" && !validID(studentID) {
		return nil, nil
	}
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()

	rows, err := q.QueryContext(ctx, `
		SELECT id::text, payment_id::text, bill_id::text, student_id::text, amount, created_at
		FROM allocations
		WHERE $1 = '' OR student_id::text = $1
		ORDER BY created_at, id
	`, studentID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []models.Allocation
	for rows.Next() {
		var a models.Allocation
		if err := rows.Scan(&a.ID, &a.PaymentID, &a.BillID, &a.StudentID, &a.Amount, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

var kindTables = map[store.Kind]string{
	store.Allocations: "allocations",
	store.Payments:    "payments",
	store.Bills:       "bills",
	store.Students:    "students",
	store.FeeRules:    "fee_structure",
}

// DeleteMany removes every row of kind whose id is in ids with one
// statement; malformed and missing ids are skipped.
func DeleteMany(ctx context.Context, q DBTX, kind store.Kind, ids []string) (int, error) {
	table, ok := kindTables[kind]
	if !ok {
		return 0, nil
	}
	valid := make([]string, 0, len(ids))
	for _, id := range ids {
		if validID(id) {
			valid = append(valid, id)
		}
	}
	if len(valid) == 0 {
		return 0, nil
	}
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()

	res, err := q.ExecContext(ctx, `DELETE FROM `+table+` WHERE id = ANY($1::uuid[])`, pq.Array(valid))
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}
