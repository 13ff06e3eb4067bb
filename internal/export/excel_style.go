package export

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

const maxColWidth = 60

// formatSheet styles a table written from row 1: bold shaded header with a
// filter and frozen pane, right-aligned amount columns, widths fitted to
// content.
func formatSheet(f *excelize.File, sheet string, spec SheetSpec) error {
	cols := len(spec.Header)
	if cols == 0 {
		return nil
	}
	last := columnName(cols)

	header, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"F2F2F2"}},
	})
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, "A1", last+"1", header); err != nil {
		return err
	}
	if err := f.AutoFilter(sheet, "A1:"+last+"1", nil); err != nil {
		return err
	}
	if err := f.SetPanes(sheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
		return err
	}

	if n := len(spec.Rows); n > 0 {
		right, err := f.NewStyle(&excelize.Style{Alignment: &excelize.Alignment{Horizontal: "right"}})
		if err != nil {
			return err
		}
		for c := range spec.Header {
			if !amountColumn(spec, c) {
				continue
			}
			col := columnName(c + 1)
			if err := f.SetCellStyle(sheet, col+"2", fmt.Sprintf("%s%d", col, n+1), right); err != nil {
				return err
			}
		}
	}

	for i, w := range columnWidths(spec) {
		col := columnName(i + 1)
		if err := f.SetColWidth(sheet, col, col, w); err != nil {
			return err
		}
	}
	return nil
}

// amountColumn is true when every non-empty cell of column c parses as a number.
func amountColumn(spec SheetSpec, c int) bool {
	seen := false
	for _, row := range spec.Rows {
		if c >= len(row) || row[c] == "" {
			continue
		}
		if _, err := strconv.ParseFloat(strings.TrimSuffix(row[c], "%"), 64); err != nil {
			return false
		}
		seen = true
	}
	return seen
}

// columnWidths sizes each column by its longest cell, header included.
func columnWidths(spec SheetSpec) []float64 {
	widths := make([]float64, len(spec.Header))
	fit := func(c int, v string, pad float64) {
		if c >= len(widths) {
			return
		}
		w := math.Min(float64(visualLen(v))*1.1+pad, maxColWidth)
		if w > widths[c] {
			widths[c] = w
		}
	}
	for c, h := range spec.Header {
		widths[c] = 10
		fit(c, h, 1.5)
	}
	for _, row := range spec.Rows {
		for c, v := range row {
			fit(c, v, 0)
		}
	}
	return widths
}

// ReportFilename is payment_report_<type>_<date>.<ext>.
func ReportFilename(kind ReportType, format Format, day time.Time) string {
	return sanitizeFileName(fmt.Sprintf("payment_report_%s_%s.%s", kind, day.Format("2006-01-02"), format))
}

func columnName(n int) string {
	// 1 -> A; 27 -> AA
	s := ""
	for n > 0 {
		n--
		s = string(rune('A'+(n%26))) + s
		n /= 26
	}
	return s
}

// visualLen approximates text width by counting runes, treating tabs as 4 chars.
func visualLen(s string) int {
	n := 0
	for _, r := range s {
		if r == '\t' {
			n += 4
		} else {
			n++
		}
	}
	return n
}

var invalidFileRe = regexp.MustCompile(`[\\/:*?"<>|]+`)

func sanitizeFileName(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Join(strings.Fields(s), " ")
	s = invalidFileRe.ReplaceAllString(s, "_")
	return s
}
