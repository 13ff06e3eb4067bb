package models

type PaymentStatus string

const (
	PaidFull       PaymentStatus = "paid_full"
	PartialPayment PaymentStatus = "partial_payment"
	Overdue        PaymentStatus = "overdue"
	Pending        PaymentStatus = "pending"
)

func (s PaymentStatus) IsValid() bool {
	switch s {
	case PaidFull, PartialPayment, Overdue, Pending:
		return true
	}
	return false
}

// Label is the human-readable name used in reports.
func (s PaymentStatus) Label() string {
	switch s {
	case PaidFull:
		return "Paid in Full"
	case PartialPayment:
		return "Partial Payment"
	case Overdue:
		return "Overdue"
	default:
		return "Pending"
	}
}
