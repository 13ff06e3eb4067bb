package tracking

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Spok95/school-fees/internal/ledger"
	"github.com/Spok95/school-fees/internal/models"
	"github.com/Spok95/school-fees/internal/store"
)

// Query narrows a report. Zero fields match everything.
type Query struct {
	Search string
	Status models.PaymentStatus
	Class  int
}

// Filter returns the matching records in their original order. Search is
// case-insensitive over name and student ID, and matches the due and paid
// amounts as text.
func Filter(records []Record, q Query) []Record {
	term := strings.ToLower(strings.TrimSpace(q.Search))
	out := make([]Record, 0, len(records))
	for _, r := range records {
		if q.Status != "" && r.Status != q.Status {
			continue
		}
		if q.Class != 0 && r.StudentClass != q.Class {
			continue
		}
		if term != "" && !matches(r, term) {
			continue
		}
		out = append(out, r)
	}
	return out
}

func matches(r Record, term string) bool {
	return strings.Contains(strings.ToLower(r.StudentName), term) ||
		strings.Contains(strings.ToLower(r.StudentID), term) ||
		strings.Contains(r.TotalDue.String(), term) ||
		strings.Contains(r.TotalPaid.String(), term)
}

type SortKey string

const (
	ByName        SortKey = "name"
	ByAmountDue   SortKey = "amount_due"
	ByLastPayment SortKey = "last_payment"
	ByStatus      SortKey = "status"
)

// ParseSortKey maps a query value to a key; unknown values keep input order.
func ParseSortKey(s string) (SortKey, bool) {
	switch k := SortKey(strings.ToLower(s)); k {
	case ByName, ByAmountDue, ByLastPayment, ByStatus:
		return k, true
	}
	return "", false
}

// Sort returns a sorted copy. Names and statuses ascend, amount due and last
// payment date descend; records without payments sort last by date. Ties keep
// input order.
func Sort(records []Record, key SortKey) []Record {
	out := append([]Record(nil), records...)
	var less func(a, b Record) bool
	switch key {
	case ByName:
		less = func(a, b Record) bool { return strings.ToLower(a.StudentName) < strings.ToLower(b.StudentName) }
	case ByAmountDue:
		less = func(a, b Record) bool { return a.AmountDue.GreaterThan(b.AmountDue) }
	case ByLastPayment:
		less = func(a, b Record) bool {
			if a.LastPayment == nil || b.LastPayment == nil {
				return a.LastPayment != nil && b.LastPayment == nil
			}
			return a.LastPayment.PaymentDate.After(b.LastPayment.PaymentDate)
		}
	case ByStatus:
		less = func(a, b Record) bool { return a.Status < b.Status }
	default:
		return out
	}
	sort.SliceStable(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

// BillQuery narrows the portfolio bill list. Zero fields match everything.
type BillQuery struct {
	Search string
	Status models.BillStatus
	Class  int
}

// AllBills flattens the bills of every tracked student, in record order.
func AllBills(records []Record) []ledger.BillView {
	var out []ledger.BillView
	for _, r := range records {
		out = append(out, r.Bills...)
	}
	return out
}

// FilterBills keeps matching bills in their original order. Search is
// case-insensitive over the student name and matches the total, class and
// roll as text.
func FilterBills(bills []ledger.BillView, q BillQuery) []ledger.BillView {
	term := strings.ToLower(strings.TrimSpace(q.Search))
	out := make([]ledger.BillView, 0, len(bills))
	for _, b := range bills {
		if q.Status != "" && b.Status != q.Status {
			continue
		}
		if q.Class != 0 && b.StudentClass != q.Class {
			continue
		}
		if term != "" && !billMatches(b, term) {
			continue
		}
		out = append(out, b)
	}
	return out
}

func billMatches(b ledger.BillView, term string) bool {
	return strings.Contains(strings.ToLower(b.StudentName), term) ||
		strings.Contains(b.TotalAmount.String(), term) ||
		strings.Contains(strconv.Itoa(b.StudentClass), term) ||
		strings.Contains(strconv.Itoa(b.StudentRoll), term)
}

type BillSortKey string

const (
	BillsByName   BillSortKey = "name"
	BillsByAmount BillSortKey = "amount"
	BillsByDate   BillSortKey = "date"
	BillsByStatus BillSortKey = "status"
)

// ParseBillSortKey maps a query value to a key. Empty sorts by name.
func ParseBillSortKey(s string) (BillSortKey, bool) {
	if s == "" {
		return BillsByName, true
	}
	switch k := BillSortKey(strings.ToLower(s)); k {
	case BillsByName, BillsByAmount, BillsByDate, BillsByStatus:
		return k, true
	}
	return "", false
}

// SortBills returns a sorted copy. Names and statuses ascend, totals and bill
// dates descend. Ties keep input order.
func SortBills(bills []ledger.BillView, key BillSortKey) []ledger.BillView {
	out := append([]ledger.BillView(nil), bills...)
	var less func(a, b ledger.BillView) bool
	switch key {
	case BillsByName:
		less = func(a, b ledger.BillView) bool { return strings.ToLower(a.StudentName) < strings.ToLower(b.StudentName) }
	case BillsByAmount:
		less = func(a, b ledger.BillView) bool { return a.TotalAmount.GreaterThan(b.TotalAmount) }
	case BillsByDate:
		less = func(a, b ledger.BillView) bool { return a.BillDate.After(b.BillDate) }
	case BillsByStatus:
		less = func(a, b ledger.BillView) bool { return a.Status < b.Status }
	default:
		return out
	}
	sort.SliceStable(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

// DaysOverdue counts whole days since the oldest bill with nothing paid.
func DaysOverdue(r Record, now time.Time) int {
	var oldest time.Time
	for _, b := range r.Bills {
		if b.Status != models.BillUnpaid {
			continue
		}
		if oldest.IsZero() || b.BillDate.Before(oldest) {
			oldest = b.BillDate
		}
	}
	if oldest.IsZero() || now.Before(oldest) {
		return 0
	}
	return int(now.Sub(oldest) / (24 * time.Hour))
}

// Overdue keeps the records classified overdue.
func Overdue(records []Record) []Record {
	return Filter(records, Query{Status: models.Overdue})
}

type ClassSummary struct {
	Class          int             `json:"class"`
	Students       int             `json:"students"`
	TotalDue       decimal.Decimal `json:"total_due"`
	Collected      decimal.Decimal `json:"collected"`
	Outstanding    decimal.Decimal `json:"outstanding"`
	OverdueCount   int             `json:"overdue_count"`
	CollectionRate float64         `json:"collection_rate"`
}

// Label is "Class N".
func (c ClassSummary) Label() string { return "Class " + strconv.Itoa(c.Class) }

// ClassSummaries groups records by class, ascending; classes without
// students are left out.
func ClassSummaries(records []Record) []ClassSummary {
	by := map[int]*ClassSummary{}
	for _, r := range records {
		c, ok := by[r.StudentClass]
		if !ok {
			c = &ClassSummary{Class: r.StudentClass, TotalDue: decimal.Zero, Collected: decimal.Zero, Outstanding: decimal.Zero}
			by[r.StudentClass] = c
		}
		c.Students++
		c.TotalDue = c.TotalDue.Add(r.TotalDue)
		c.Collected = c.Collected.Add(r.TotalPaid)
		c.Outstanding = c.Outstanding.Add(r.AmountDue)
		if r.Status == models.Overdue {
			c.OverdueCount++
		}
	}
	out := make([]ClassSummary, 0, len(by))
	for _, c := range by {
		c.CollectionRate = Rate(c.Collected, c.TotalDue)
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Class < out[j].Class })
	return out
}

// Dashboard is the landing-page summary.
type Dashboard struct {
	Students        int             `json:"students"`
	CollectedOnPaid decimal.Decimal `json:"collected_on_paid_bills"`
	PendingBills    int             `json:"pending_bills"`
	ClassCounts     map[int]int     `json:"class_counts"`
}

// DashboardStats counts students per class (every class 1..12 present),
// the total of fully paid bills, and how many bills have nothing paid.
func DashboardStats(snap store.Snapshot) Dashboard {
	d := Dashboard{
		Students:        len(snap.Students),
		CollectedOnPaid: decimal.Zero,
		ClassCounts:     make(map[int]int, models.MaxClassLevel),
	}
	for c := models.MinClassLevel; c <= models.MaxClassLevel; c++ {
		d.ClassCounts[c] = 0
	}
	for _, s := range snap.Students {
		d.ClassCounts[s.ClassLevel]++
	}
	for _, v := range ledger.Project(snap.Bills, snap.Allocations) {
		switch v.Status {
		case models.BillPaid:
			d.CollectedOnPaid = d.CollectedOnPaid.Add(v.TotalAmount)
		case models.BillUnpaid:
			d.PendingBills++
		}
	}
	return d
}
