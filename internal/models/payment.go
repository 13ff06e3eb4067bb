package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Payment struct {
	ID           string          `db:"id" json:"id"`
	StudentID    string          `db:"student_id" json:"student_id"`
	StudentName  string          `db:"student_name" json:"student_name"`
	StudentClass int             `db:"student_class" json:"student_class"`
	StudentRoll  int             `db:"student_roll" json:"student_roll"`
	Amount       decimal.Decimal `db:"amount" json:"amount"`
	FeeName      string          `db:"fee_name" json:"fee_name"`
	Reference    string          `db:"reference_number" json:"reference_number,omitempty"`
	PaymentDate  time.Time       `db:"payment_date" json:"payment_date"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt    *time.Time      `db:"updated_at" json:"updated_at,omitempty"`
}

// PaymentPatch is an edit of a recorded payment; nil fields are left untouched.
type PaymentPatch struct {
	Amount      *decimal.Decimal `json:"amount,omitempty"`
	FeeName     *string          `json:"fee_name,omitempty"`
	Reference   *string          `json:"reference_number,omitempty"`
	PaymentDate *time.Time       `json:"payment_date,omitempty"`
}

func (p PaymentPatch) Apply(pm Payment) Payment {
	if p.Amount != nil {
		pm.Amount = *p.Amount
	}
	if p.FeeName != nil {
		pm.FeeName = *p.FeeName
	}
	if p.Reference != nil {
		pm.Reference = *p.Reference
	}
	if p.PaymentDate != nil {
		pm.PaymentDate = *p.PaymentDate
	}
	return pm
}
