// Package export renders tracking reports as XLSX workbooks or CSV.
package export

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Spok95/school-fees/internal/models"
	"github.com/Spok95/school-fees/internal/tracking"
)

type ReportType string

const (
	Summary   ReportType = "summary"
	Detailed  ReportType = "detailed"
	Overdue   ReportType = "overdue"
	ClassWise ReportType = "class_wise"
)

type Format string

const (
	XLSX Format = "xlsx"
	CSV  Format = "csv"
)

var ErrNoData = errors.New("no data available for export")

func ParseReportType(s string) (ReportType, error) {
	switch t := ReportType(strings.ToLower(strings.TrimSpace(s))); t {
	case Summary, Detailed, Overdue, ClassWise:
		return t, nil
	case "":
		return Summary, nil
	}
	return "", fmt.Errorf("unknown report type %q", s)
}

func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case XLSX, CSV:
		return f, nil
	case "":
		return XLSX, nil
	}
	return "", fmt.Errorf("unknown format %q", s)
}

// SheetSpec is one table: a header row and string cells.
type SheetSpec struct {
	Title  string
	Header []string
	Rows   [][]string
}

// Range limits the detailed report to payments dated within [From, To];
// zero ends are open.
type Range struct {
	From, To time.Time
}

func (r Range) contains(t time.Time) bool {
	if !r.From.IsZero() && t.Before(r.From) {
		return false
	}
	if !r.To.IsZero() && t.After(r.To) {
		return false
	}
	return true
}

// Build lays out one report type over rep. It returns ErrNoData when the
// table would have no rows.
func Build(kind ReportType, rep *tracking.Report, now time.Time, rng Range) (SheetSpec, error) {
	if rep == nil {
		return SheetSpec{}, ErrNoData
	}
	var s SheetSpec
	switch kind {
	case Summary:
		s = summarySheet(rep.Records)
	case Detailed:
		s = detailedSheet(rep.Records, rng)
	case Overdue:
		s = overdueSheet(rep.Records, now)
	case ClassWise:
		s = classSheet(rep.Records)
	default:
		return SheetSpec{}, fmt.Errorf("unknown report type %q", kind)
	}
	if len(s.Rows) == 0 {
		return s, ErrNoData
	}
	return s, nil
}

func summarySheet(records []tracking.Record) SheetSpec {
	s := SheetSpec{
		Title: "Summary",
		Header: []string{"Student Name", "Class", "Roll Number", "Total Due", "Total Paid",
			"Amount Outstanding", "Payment Status", "Payment Count", "Last Payment Date"},
	}
	for _, r := range records {
		last := "N/A"
		if r.LastPayment != nil {
			last = formatDate(r.LastPayment.PaymentDate)
		}
		s.Rows = append(s.Rows, []string{
			r.StudentName,
			strconv.Itoa(r.StudentClass),
			strconv.Itoa(r.StudentRoll),
			money(r.TotalDue),
			money(r.TotalPaid),
			money(r.AmountDue),
			r.Status.Label(),
			strconv.Itoa(r.PaymentCount),
			last,
		})
	}
	return s
}

func detailedSheet(records []tracking.Record, rng Range) SheetSpec {
	s := SheetSpec{
		Title:  "Payments",
		Header: []string{"Student Name", "Class", "Roll Number", "Amount", "Fee Name", "Reference Number", "Payment Date", "Created Date"},
	}
	var payments []models.Payment
	for _, r := range records {
		for _, p := range r.Payments {
			if rng.contains(p.PaymentDate) {
				payments = append(payments, p)
			}
		}
	}
	sort.SliceStable(payments, func(i, j int) bool { return payments[i].PaymentDate.After(payments[j].PaymentDate) })
	for _, p := range payments {
		fee := p.FeeName
		if fee == "" {
			fee = "Not specified"
		}
		s.Rows = append(s.Rows, []string{
			p.StudentName,
			strconv.Itoa(p.StudentClass),
			strconv.Itoa(p.StudentRoll),
			money(p.Amount),
			fee,
			p.Reference,
			formatDate(p.PaymentDate),
			formatDate(p.CreatedAt),
		})
	}
	return s
}

func overdueSheet(records []tracking.Record, now time.Time) SheetSpec {
	s := SheetSpec{
		Title:  "Overdue",
		Header: []string{"Student Name", "Class", "Roll Number", "Amount Due", "Days Overdue"},
	}
	for _, r := range tracking.Overdue(records) {
		s.Rows = append(s.Rows, []string{
			r.StudentName,
			strconv.Itoa(r.StudentClass),
			strconv.Itoa(r.StudentRoll),
			money(r.AmountDue),
			strconv.Itoa(tracking.DaysOverdue(r, now)),
		})
	}
	return s
}

func classSheet(records []tracking.Record) SheetSpec {
	s := SheetSpec{
		Title:  "Class Wise",
		Header: []string{"Class", "Total Students", "Total Due", "Total Collected", "Outstanding", "Collection Rate"},
	}
	for _, c := range tracking.ClassSummaries(records) {
		rate := "0%"
		if c.TotalDue.IsPositive() {
			rate = c.Collected.Div(c.TotalDue).Mul(decimal.NewFromInt(100)).StringFixed(2) + "%"
		}
		s.Rows = append(s.Rows, []string{
			c.Label(),
			strconv.Itoa(c.Students),
			money(c.TotalDue),
			money(c.Collected),
			money(c.Outstanding),
			rate,
		})
	}
	return s
}

// overviewSheet is the portfolio header every workbook carries.
func overviewSheet(rep *tracking.Report, kind ReportType, now time.Time) SheetSpec {
	st := rep.Stats
	return SheetSpec{
		Title:  "Overview",
		Header: []string{"Metric", "Value"},
		Rows: [][]string{
			{"Report", strings.ToUpper(strings.ReplaceAll(string(kind), "_", " "))},
			{"Generated", formatDate(now)},
			{"Total Students", strconv.Itoa(st.Students)},
			{"Total Due", models.FormatRupees(st.TotalDue)},
			{"Total Collected", models.FormatRupees(st.TotalCollected)},
			{"Total Outstanding", models.FormatRupees(st.TotalOutstanding)},
			{"Overdue Students", strconv.Itoa(st.OverdueCount)},
			{"Collection Rate", strconv.FormatFloat(st.CollectionRate, 'f', 1, 64) + "%"},
		},
	}
}

func money(d decimal.Decimal) string { return d.StringFixed(2) }

func formatDate(t time.Time) string {
	if t.IsZero() {
		return "N/A"
	}
	return t.Format("02 Jan 2006")
}
