package export

import (
	"bytes"
	"encoding/csv"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/Spok95/school-fees/internal/models"
	"github.com/Spok95/school-fees/internal/store"
	"github.com/Spok95/school-fees/internal/tracking"
)

var now = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func daysAgo(n int) time.Time { return now.AddDate(0, 0, -n) }

func sampleReport() *tracking.Report {
	snap := store.Snapshot{
		Students: []models.Student{
			{ID: "s1", Name: "Asha", ClassLevel: 3, RollNumber: 1},
			{ID: "s2", Name: "Ravi", ClassLevel: 5, RollNumber: 2},
		},
		Bills: []models.Bill{
			{ID: "b1", StudentID: "s1", TotalAmount: dec("1000"), BillDate: daysAgo(40)},
			{ID: "b2", StudentID: "s2", TotalAmount: dec("500"), BillDate: daysAgo(10)},
		},
		Payments: []models.Payment{
			{ID: "p1", StudentID: "s2", StudentName: "Ravi", StudentClass: 5, StudentRoll: 2,
				Amount: dec("500"), FeeName: "", Reference: "UPI-1", PaymentDate: daysAgo(3), CreatedAt: daysAgo(3)},
		},
		Allocations: []models.Allocation{{ID: "a1", PaymentID: "p1", BillID: "b2", StudentID: "s2", Amount: dec("500")}},
	}
	sum := tracking.Summarize(snap, now, tracking.DefaultOverdueAfter)
	return &tracking.Report{Records: sum.Records, Stats: sum.Stats, GeneratedAt: now}
}

func TestBuild(t *testing.T) {
	rep := sampleReport()

	t.Run("summary", func(t *testing.T) {
		s, err := Build(Summary, rep, now, Range{})
		if err != nil {
			t.Fatalf("Build: %v", err)
		}
		if s.Header[0] != "Student Name" || s.Header[8] != "Last Payment Date" {
			t.Fatalf("header = %v", s.Header)
		}
		if len(s.Rows) != 2 {
			t.Fatalf("rows = %d", len(s.Rows))
		}
		var asha []string
		for _, r := range s.Rows {
			if r[0] == "Asha" {
				asha = r
			}
		}
		if asha == nil || asha[8] != "N/A" || asha[6] != "Overdue" || asha[5] != "1000.00" {
			t.Fatalf("asha row = %v", asha)
		}
	})

	t.Run("detailed defaults fee name", func(t *testing.T) {
		s, err := Build(Detailed, rep, now, Range{})
		if err != nil {
			t.Fatalf("Build: %v", err)
		}
		if len(s.Rows) != 1 || s.Rows[0][4] != "Not specified" || s.Rows[0][5] != "UPI-1" {
			t.Fatalf("rows = %v", s.Rows)
		}
	})

	t.Run("detailed range excludes everything", func(t *testing.T) {
		_, err := Build(Detailed, rep, now, Range{To: daysAgo(5)})
		if !errors.Is(err, ErrNoData) {
			t.Fatalf("err = %v, want ErrNoData", err)
		}
	})

	t.Run("overdue days", func(t *testing.T) {
		s, err := Build(Overdue, rep, now, Range{})
		if err != nil {
			t.Fatalf("Build: %v", err)
		}
		if len(s.Rows) != 1 || s.Rows[0][0] != "Asha" || s.Rows[0][4] != "40" {
			t.Fatalf("rows = %v", s.Rows)
		}
	})

	t.Run("class wise", func(t *testing.T) {
		s, err := Build(ClassWise, rep, now, Range{})
		if err != nil {
			t.Fatalf("Build: %v", err)
		}
		if len(s.Rows) != 2 {
			t.Fatalf("rows = %v", s.Rows)
		}
		if s.Rows[0][0] != "Class 3" || s.Rows[0][5] != "0.00%" {
			t.Fatalf("class 3 = %v", s.Rows[0])
		}
		if s.Rows[1][5] != "100.00%" {
			t.Fatalf("class 5 = %v", s.Rows[1])
		}
	})

	t.Run("empty report", func(t *testing.T) {
		if _, err := Build(Summary, &tracking.Report{}, now, Range{}); !errors.Is(err, ErrNoData) {
			t.Fatalf("err = %v", err)
		}
	})
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, Summary, CSV, sampleReport(), now, Range{}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(rows) != 3 || rows[0][0] != "Student Name" {
		t.Fatalf("rows = %v", rows)
	}
}

func TestWriteXLSX(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, ClassWise, XLSX, sampleReport(), now, Range{}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) != 2 || sheets[0] != "Class Wise" || sheets[1] != "Overview" {
		t.Fatalf("sheets = %v", sheets)
	}
	rows, err := f.GetRows("Class Wise")
	if err != nil {
		t.Fatalf("rows: %v", err)
	}
	if rows[0][5] != "Collection Rate" || len(rows) != 3 {
		t.Fatalf("rows = %v", rows)
	}
	if v, _ := f.GetCellValue("Overview", "B4"); v != "2" {
		t.Fatalf("students cell = %q", v)
	}
}

func TestReportFilename(t *testing.T) {
	got := ReportFilename(ClassWise, CSV, now)
	if got != "payment_report_class_wise_2025-06-15.csv" {
		t.Fatalf("got %q", got)
	}
	if strings.ContainsAny(sanitizeFileName(`a/b:c`), `/:`) {
		t.Fatal("sanitize kept separators")
	}
}

func TestParse(t *testing.T) {
	if k, err := ParseReportType(""); err != nil || k != Summary {
		t.Fatalf("default = %v, %v", k, err)
	}
	if _, err := ParseReportType("weekly"); err == nil {
		t.Fatal("want error")
	}
	if f, err := ParseFormat("CSV"); err != nil || f != CSV {
		t.Fatalf("format = %v, %v", f, err)
	}
}

func TestColumnLayout(t *testing.T) {
	spec := SheetSpec{
		Header: []string{"Name", "Amount", "Rate"},
		Rows: [][]string{
			{"Asha", "1500.00", "12.50%"},
			{strings.Repeat("x", 100), "", "n/a"},
		},
	}
	w := columnWidths(spec)
	if w[0] != maxColWidth {
		t.Fatalf("long column width = %v, want cap", w[0])
	}
	if w[1] < 10 {
		t.Fatalf("min width not applied: %v", w[1])
	}
	if !amountColumn(spec, 1) || amountColumn(spec, 0) || amountColumn(spec, 2) {
		t.Fatal("amount column detection")
	}
}
