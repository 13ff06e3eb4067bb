// Package tracking derives the per-student payment tracking records and the
// portfolio statistics from a store snapshot. Summarize is pure; Engine adds
// the orphan purge; Coordinator keeps the latest report current.
package tracking

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/Spok95/school-fees/internal/ledger"
	"github.com/Spok95/school-fees/internal/models"
	"github.com/Spok95/school-fees/internal/store"
)

// DefaultOverdueAfter is how old an unpaid bill must be to count as overdue.
const DefaultOverdueAfter = 30 * 24 * time.Hour

// Record is one student's tracking line.
type Record struct {
	StudentID    string               `json:"student_id"`
	StudentName  string               `json:"student_name"`
	StudentClass int                  `json:"student_class"`
	StudentRoll  int                  `json:"student_roll"`
	TotalDue     decimal.Decimal      `json:"total_due"`
	TotalPaid    decimal.Decimal      `json:"total_paid"`
	AmountDue    decimal.Decimal      `json:"amount_due"`
	Status       models.PaymentStatus `json:"payment_status"`
	LastPayment  *models.Payment      `json:"last_payment,omitempty"`
	PaymentCount int                  `json:"payment_count"`
	Bills        []ledger.BillView    `json:"bills"`
	Payments     []models.Payment     `json:"payments"`
}

type PortfolioStats struct {
	Students         int             `json:"students"`
	TotalDue         decimal.Decimal `json:"total_due"`
	TotalCollected   decimal.Decimal `json:"total_collected"`
	TotalOutstanding decimal.Decimal `json:"total_outstanding"`
	OverdueCount     int             `json:"overdue_count"`
	CollectionRate   float64         `json:"collection_rate"`
}

// Orphans are records whose owner no longer exists.
type Orphans struct {
	Bills       []string `json:"bills,omitempty"`
	Payments    []string `json:"payments,omitempty"`
	Allocations []string `json:"allocations,omitempty"`
}

func (o Orphans) Empty() bool {
	return len(o.Bills) == 0 && len(o.Payments) == 0 && len(o.Allocations) == 0
}

type Summary struct {
	Records []Record
	Stats   PortfolioStats
	Orphans Orphans
}

// Summarize builds one record per student, in snapshot student order.
// Bills and payments of unknown students are reported as orphans and left
// out of every record and sum, as are allocations that point at them.
func Summarize(snap store.Snapshot, now time.Time, overdueAfter time.Duration) Summary {
	var sum Summary

	valid := make(map[string]bool, len(snap.Students))
	for _, s := range snap.Students {
		valid[s.ID] = true
	}

	billsBy := map[string][]models.Bill{}
	activeBill := map[string]bool{}
	for _, b := range snap.Bills {
		if !valid[b.StudentID] {
			sum.Orphans.Bills = append(sum.Orphans.Bills, b.ID)
			continue
		}
		activeBill[b.ID] = true
		billsBy[b.StudentID] = append(billsBy[b.StudentID], b)
	}

	paymentsBy := map[string][]models.Payment{}
	activePayment := map[string]bool{}
	collected := decimal.Zero
	for _, p := range snap.Payments {
		if !valid[p.StudentID] {
			sum.Orphans.Payments = append(sum.Orphans.Payments, p.ID)
			continue
		}
		activePayment[p.ID] = true
		paymentsBy[p.StudentID] = append(paymentsBy[p.StudentID], p)
		collected = collected.Add(p.Amount)
	}

	allocsBy := map[string][]models.Allocation{}
	for _, a := range snap.Allocations {
		if !activeBill[a.BillID] || !activePayment[a.PaymentID] {
			sum.Orphans.Allocations = append(sum.Orphans.Allocations, a.ID)
			continue
		}
		allocsBy[a.StudentID] = append(allocsBy[a.StudentID], a)
	}

	threshold := now.Add(-overdueAfter)
	sum.Records = make([]Record, 0, len(snap.Students))
	stats := PortfolioStats{TotalDue: decimal.Zero, TotalCollected: collected, TotalOutstanding: decimal.Zero}
	for _, s := range snap.Students {
		r := buildRecord(s, billsBy[s.ID], paymentsBy[s.ID], allocsBy[s.ID], threshold)
		stats.TotalDue = stats.TotalDue.Add(r.TotalDue)
		stats.TotalOutstanding = stats.TotalOutstanding.Add(r.AmountDue)
		if r.Status == models.Overdue {
			stats.OverdueCount++
		}
		sum.Records = append(sum.Records, r)
	}
	stats.Students = len(sum.Records)
	stats.CollectionRate = Rate(collected, stats.TotalDue)
	sum.Stats = stats
	return sum
}

func buildRecord(s models.Student, bills []models.Bill, payments []models.Payment, allocs []models.Allocation, overdueBefore time.Time) Record {
	r := Record{
		StudentID:    s.ID,
		StudentName:  s.Name,
		StudentClass: s.ClassLevel,
		StudentRoll:  s.RollNumber,
		TotalDue:     decimal.Zero,
		TotalPaid:    decimal.Zero,
		Bills:        ledger.Project(bills, allocs),
		Payments:     payments,
		PaymentCount: len(payments),
	}
	for _, b := range bills {
		r.TotalDue = r.TotalDue.Add(b.TotalAmount)
	}
	for i := range payments {
		r.TotalPaid = r.TotalPaid.Add(payments[i].Amount)
		if r.LastPayment == nil || payments[i].PaymentDate.After(r.LastPayment.PaymentDate) {
			r.LastPayment = &payments[i]
		}
	}
	r.AmountDue = decimal.Max(decimal.Zero, r.TotalDue.Sub(r.TotalPaid))
	r.Status = classify(r.TotalDue, r.TotalPaid, r.Bills, overdueBefore)
	return r
}

// classify applies the status rules in order; the first match wins.
func classify(due, paid decimal.Decimal, bills []ledger.BillView, overdueBefore time.Time) models.PaymentStatus {
	switch {
	case due.IsPositive() && paid.GreaterThanOrEqual(due):
		return models.PaidFull
	case paid.IsPositive() && paid.LessThan(due):
		return models.PartialPayment
	case due.IsPositive() && hasOverdueBill(bills, overdueBefore):
		return models.Overdue
	default:
		return models.Pending
	}
}

// Only bills with nothing allocated count; a partly paid bill is never overdue.
func hasOverdueBill(bills []ledger.BillView, before time.Time) bool {
	for _, b := range bills {
		if b.Status == models.BillUnpaid && b.BillDate.Before(before) {
			return true
		}
	}
	return false
}

// Rate is collected over due as a percentage rounded to one decimal, or 0
// when nothing is due.
func Rate(collected, due decimal.Decimal) float64 {
	if !due.IsPositive() {
		return 0
	}
	return collected.Div(due).Mul(decimal.NewFromInt(100)).Round(1).InexactFloat64()
}
