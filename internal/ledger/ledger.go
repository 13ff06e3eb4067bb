// Package ledger keeps the payment-to-bill allocation ledger. A bill's
// settlement status is never stored; it is projected from the allocations
// that reference it.
package ledger

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Spok95/school-fees/internal/models"
)

// BillView is a bill together with its projected settlement state.
type BillView struct {
	models.Bill
	Status          models.BillStatus `json:"status"`
	Allocated       decimal.Decimal   `json:"allocated"`
	Outstanding     decimal.Decimal   `json:"outstanding"`
	PartialAmount   *decimal.Decimal  `json:"partial_amount,omitempty"`
	LastPaymentDate *time.Time        `json:"last_payment_date,omitempty"`
}

// StatusFor projects a status from a bill total and the amount allocated to it.
func StatusFor(total, allocated decimal.Decimal) models.BillStatus {
	switch {
	case allocated.GreaterThanOrEqual(total):
		return models.BillPaid
	case allocated.IsPositive():
		return models.BillPartial
	default:
		return models.BillUnpaid
	}
}

// Project returns one view per bill, in bill order.
func Project(bills []models.Bill, allocs []models.Allocation) []BillView {
	type acc struct {
		sum  decimal.Decimal
		last *time.Time
	}
	byBill := make(map[string]*acc, len(bills))
	for _, a := range allocs {
		x, ok := byBill[a.BillID]
		if !ok {
			x = &acc{sum: decimal.Zero}
			byBill[a.BillID] = x
		}
		x.sum = x.sum.Add(a.Amount)
		if x.last == nil || a.CreatedAt.After(*x.last) {
			at := a.CreatedAt
			x.last = &at
		}
	}

	out := make([]BillView, 0, len(bills))
	for _, b := range bills {
		v := BillView{Bill: b, Allocated: decimal.Zero}
		if x, ok := byBill[b.ID]; ok {
			v.Allocated = x.sum
			v.LastPaymentDate = x.last
		}
		v.Status = StatusFor(b.TotalAmount, v.Allocated)
		v.Outstanding = decimal.Max(decimal.Zero, b.TotalAmount.Sub(v.Allocated))
		if v.Status == models.BillPartial {
			p := v.Allocated
			v.PartialAmount = &p
		}
		out = append(out, v)
	}
	return out
}

// Allocate spends amount first-fit over bills in the given order. A bill whose
// outstanding balance fits in what is left is settled in full; the first one
// that does not fit takes the rest and allocation stops. Settled bills are
// skipped. Whatever is left over stays unallocated and is returned.
func Allocate(p models.Payment, bills []BillView, at time.Time) ([]models.Allocation, decimal.Decimal) {
	remaining := p.Amount
	var out []models.Allocation
	for _, b := range bills {
		if !remaining.IsPositive() {
			break
		}
		if b.Status == models.BillPaid || !b.Outstanding.IsPositive() {
			continue
		}
		take := b.Outstanding
		if remaining.LessThan(take) {
			take = remaining
		}
		out = append(out, models.Allocation{
			PaymentID: p.ID,
			BillID:    b.ID,
			StudentID: p.StudentID,
			Amount:    take,
			CreatedAt: at,
		})
		remaining = remaining.Sub(take)
	}
	return out, remaining
}

// Without drops the allocations of one payment.
func Without(allocs []models.Allocation, paymentID string) []models.Allocation {
	out := make([]models.Allocation, 0, len(allocs))
	for _, a := range allocs {
		if a.PaymentID != paymentID {
			out = append(out, a)
		}
	}
	return out
}

// AllocatedTo sums the allocations of one payment.
func AllocatedTo(allocs []models.Allocation, paymentID string) decimal.Decimal {
	sum := decimal.Zero
	for _, a := range allocs {
		if a.PaymentID == paymentID {
			sum = sum.Add(a.Amount)
		}
	}
	return sum
}

// Settle spends the credit every payment still holds, that is its amount less
// what it has already allocated, over bills with a balance left. Payments are
// taken oldest first by payment date. Existing allocations are never moved;
// the result is only the new allocations to write.
func Settle(payments []models.Payment, bills []models.Bill, allocs []models.Allocation, at time.Time) []models.Allocation {
	ordered := append([]models.Payment(nil), payments...)
	sort.SliceStable(ordered, func(i, j int) bool {
		if !ordered[i].PaymentDate.Equal(ordered[j].PaymentDate) {
			return ordered[i].PaymentDate.Before(ordered[j].PaymentDate)
		}
		return ordered[i].ID < ordered[j].ID
	})

	current := append([]models.Allocation(nil), allocs...)
	var out []models.Allocation
	for _, p := range ordered {
		credit := p.Amount.Sub(AllocatedTo(current, p.ID))
		if !credit.IsPositive() {
			continue
		}
		p.Amount = credit
		planned, _ := Allocate(p, Project(bills, current), at)
		current = append(current, planned...)
		out = append(out, planned...)
	}
	return out
}
