package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Spok95/school-fees/internal/ctxutil"
	"github.com/Spok95/school-fees/internal/models"
)

const billCols = `id::text, student_id::text, student_name, student_class, student_roll, fee_breakdown, total_amount, bill_date`

func scanBill(r scanner) (models.Bill, error) {
	var (
		b   models.Bill
		raw []byte
	)
	if err := r.Scan(&b.ID, &b.StudentID, &b.StudentName, &b.StudentClass, &b.StudentRoll, &raw, &b.TotalAmount, &b.BillDate); err != nil {
		return b, err
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &b.Breakdown); err != nil {
			return b, fmt.Errorf("bill %s breakdown: %w", b.ID, err)
		}
	}
	return b, nil
}

func CreateBill(ctx context.Context, q DBTX, b models.Bill) (string, error) {
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()

	if !validID(b.ID) {
		b.ID = uuid.NewString()
	}
	if b.BillDate.IsZero() {
		b.BillDate = time.Now()
	}
	if b.Breakdown == nil {
		b.Breakdown = []models.FeeLine{}
	}
	breakdown, err := json.Marshal(b.Breakdown)
	if err != nil {
		return "", err
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO bills (id, student_id, student_name, student_class, student_roll, fee_breakdown, total_amount, bill_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, b.ID, b.StudentID, b.StudentName, b.StudentClass, b.StudentRoll, string(breakdown), b.TotalAmount, b.BillDate)
	if err != nil {
		return "", err
	}
	return b.ID, nil
}

// DeleteBill removes the bill; its allocations go with it by FK cascade.
func DeleteBill(ctx context.Context, q DBTX, id string) error {
	if !validID(id) {
		return notFound("bill", id)
	}
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()

	res, err := q.ExecContext(ctx, `DELETE FROM bills WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return mustAffect(res, "bill", id)
}

func GetBill(ctx context.Context, q DBTX, id string) (*models.Bill, error) {
	if !validID(id) {
		return nil, notFound("bill", id)
	}
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()

	b, err := scanBill(q.QueryRowContext(ctx, `SELECT `+billCols+` FROM bills WHERE id = $1`, id))
	if err != nil {
		return nil, noRows(err, "bill", id)
	}
	return &b, nil
}

// ListBills returns bills in store order (bill date, then id). An empty
// studentID lists every bill.
func ListBills(ctx context.Context, q DBTX, studentID string) ([]models.Bill, error) {
	if studentID != "" && !validID(studentID) {
		return nil, nil
	}
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()

	rows, err := q.QueryContext(ctx, `
		SELECT `+billCols+` FROM bills
		WHERE $1 = '' OR student_id::text = $1
		ORDER BY bill_date, id
	`, studentID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []models.Bill
	for rows.Next() {
		b, err := scanBill(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// LockBills returns the student's bills like ListBills and row-locks them until
// the surrounding transaction ends. The student row is locked first so two
// writers serialize even while the student has no bills yet.
func LockBills(ctx context.Context, q DBTX, studentID string) ([]models.Bill, error) {
	if !validID(studentID) {
		return nil, nil
	}
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()

	if _, err := q.ExecContext(ctx, `SELECT 1 FROM students WHERE id = $1 FOR UPDATE`, studentID); err != nil {
		return nil, fmt.Errorf("lock student %s: %w", studentID, err)
	}
	rows, err := q.QueryContext(ctx, `
		SELECT `+billCols+` FROM bills
		WHERE student_id = $1
		ORDER BY bill_date, id
		FOR UPDATE
	`, studentID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []models.Bill
	for rows.Next() {
		b, err := scanBill(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
