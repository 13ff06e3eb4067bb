package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type FeeRule struct {
	ID        string          `db:"id" json:"id"`
	Name      string          `db:"fee_name" json:"fee_name" validate:"required"`
	Amount    decimal.Decimal `db:"amount" json:"amount"`
	Mandatory bool            `db:"is_mandatory" json:"is_mandatory"`
	ClassFrom *int            `db:"class_from" json:"class_from,omitempty" validate:"omitempty,min=1,max=12"`
	ClassTo   *int            `db:"class_to" json:"class_to,omitempty" validate:"omitempty,min=1,max=12"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}

// Range returns the inclusive class range, defaulting absent bounds to 1..12.
func (f FeeRule) Range() (from, to int) {
	from, to = MinClassLevel, MaxClassLevel
	if f.ClassFrom != nil {
		from = *f.ClassFrom
	}
	if f.ClassTo != nil {
		to = *f.ClassTo
	}
	return from, to
}

// FeeLine is one itemized entry of a bill.
type FeeLine struct {
	FeeName string          `json:"fee_name"`
	Amount  decimal.Decimal `json:"amount"`
}
