package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/Spok95/school-fees/internal/tracking"
)

type Workbook struct {
	File *excelize.File
}

// NewWorkbook puts each SheetSpec on its own sheet, in order.
func NewWorkbook(sheets []SheetSpec) (*Workbook, error) {
	f := excelize.NewFile()
	for i, s := range sheets {
		name := s.Title
		if i == 0 {
			// reuse the default Sheet1
			if err := f.SetSheetName("Sheet1", name); err != nil {
				return nil, fmt.Errorf("rename sheet: %w", err)
			}
		} else if _, err := f.NewSheet(name); err != nil {
			return nil, fmt.Errorf("new sheet: %w", err)
		}

		for col, h := range s.Header {
			cell := fmt.Sprintf("%s1", columnName(col+1))
			if err := f.SetCellStr(name, cell, h); err != nil {
				return nil, fmt.Errorf("set cell %s: %w", cell, err)
			}
		}
		for r, row := range s.Rows {
			for c, val := range row {
				cell := fmt.Sprintf("%s%d", columnName(c+1), r+2)
				if err := f.SetCellStr(name, cell, val); err != nil {
					return nil, fmt.Errorf("set cell %s: %w", cell, err)
				}
			}
		}
		if err := formatSheet(f, name, s); err != nil {
			return nil, fmt.Errorf("format %s: %w", name, err)
		}
	}
	return &Workbook{File: f}, nil
}

func (w *Workbook) WriteTo(out io.Writer) (int64, error) {
	return w.File.WriteTo(out)
}

func (w *Workbook) Close() error { return w.File.Close() }

// WriteCSV writes the header and rows of one sheet.
func WriteCSV(out io.Writer, s SheetSpec) error {
	cw := csv.NewWriter(out)
	if err := cw.Write(s.Header); err != nil {
		return err
	}
	if err := cw.WriteAll(s.Rows); err != nil {
		return err
	}
	return cw.Error()
}

// Write renders one report in the requested format. XLSX output also
// carries an overview sheet with the portfolio totals.
func Write(out io.Writer, kind ReportType, format Format, rep *tracking.Report, now time.Time, rng Range) error {
	sheet, err := Build(kind, rep, now, rng)
	if err != nil {
		return err
	}
	switch format {
	case CSV:
		return WriteCSV(out, sheet)
	case XLSX:
		wb, err := NewWorkbook([]SheetSpec{sheet, overviewSheet(rep, kind, now)})
		if err != nil {
			return err
		}
		defer func() { _ = wb.Close() }()
		_, err = wb.WriteTo(out)
		return err
	}
	return fmt.Errorf("unknown format %q", format)
}
