package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type BillStatus string

const (
	BillUnpaid  BillStatus = "unpaid"
	BillPartial BillStatus = "partial"
	BillPaid    BillStatus = "paid"
)

func (s BillStatus) IsValid() bool {
	switch s {
	case BillUnpaid, BillPartial, BillPaid:
		return true
	}
	return false
}

// Bill is what one student owes. Its settlement status is not stored: it is
// projected from the allocation ledger (see package ledger).
type Bill struct {
	ID           string          `db:"id" json:"id"`
	StudentID    string          `db:"student_id" json:"student_id"`
	StudentName  string          `db:"student_name" json:"student_name"`
	StudentClass int             `db:"student_class" json:"student_class"`
	StudentRoll  int             `db:"student_roll" json:"student_roll"`
	Breakdown    []FeeLine       `db:"fee_breakdown" json:"fee_breakdown"`
	TotalAmount  decimal.Decimal `db:"total_amount" json:"total_amount"`
	BillDate     time.Time       `db:"bill_date" json:"bill_date"`
}

// Allocation records which bill a payment settles and by how much.
type Allocation struct {
	ID        string          `db:"id" json:"id"`
	PaymentID string          `db:"payment_id" json:"payment_id"`
	BillID    string          `db:"bill_id" json:"bill_id"`
	StudentID string          `db:"student_id" json:"student_id"`
	Amount    decimal.Decimal `db:"amount" json:"amount"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}
