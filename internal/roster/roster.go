// Package roster reads student lists from spreadsheets for bulk import.
package roster

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/Spok95/school-fees/internal/billing"
	"github.com/Spok95/school-fees/internal/models"
)

const (
	msgTooShort   = "Excel file must have at least a header row and one data row"
	msgNoColumns  = "Excel file must have columns for Name, Class, and Roll Number"
	msgUnreadable = "Error reading Excel file. Please check the file format."
)

// Sheet is a parsed roster. Rows carry their 1-based spreadsheet line.
type Sheet struct {
	Rows       []billing.ImportRow
	Invalid    []string
	Duplicates []string
}

// Problems is every rejected line, invalid first.
func (s Sheet) Problems() []string {
	out := make([]string, 0, len(s.Invalid)+len(s.Duplicates))
	out = append(out, s.Invalid...)
	return append(out, s.Duplicates...)
}

// Read parses the first worksheet of an XLSX file. Errors about the file as
// a whole are *billing.ValidationError.
func Read(r io.Reader) (Sheet, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return Sheet{}, &billing.ValidationError{Msg: msgUnreadable}
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return Sheet{}, &billing.ValidationError{Msg: msgTooShort}
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return Sheet{}, &billing.ValidationError{Msg: msgUnreadable}
	}
	return Parse(rows)
}

// Parse takes raw cell rows, the first being the header. Columns are found
// by case-insensitive header substrings "name", "class" and "roll".
func Parse(rows [][]string) (Sheet, error) {
	if len(rows) < 2 {
		return Sheet{}, &billing.ValidationError{Msg: msgTooShort}
	}
	nameCol, classCol, rollCol := -1, -1, -1
	for i, h := range rows[0] {
		h = strings.ToLower(strings.TrimSpace(h))
		switch {
		case nameCol < 0 && strings.Contains(h, "name"):
			nameCol = i
		case classCol < 0 && strings.Contains(h, "class"):
			classCol = i
		case rollCol < 0 && strings.Contains(h, "roll"):
			rollCol = i
		}
	}
	if nameCol < 0 || classCol < 0 || rollCol < 0 {
		return Sheet{}, &billing.ValidationError{Msg: msgNoColumns}
	}

	var out Sheet
	seen := make(map[[2]int]int)
	for i, row := range rows[1:] {
		line := i + 2
		name, class, roll := cell(row, nameCol), cell(row, classCol), cell(row, rollCol)
		if name == "" && class == "" && roll == "" {
			continue
		}
		if name == "" || class == "" || roll == "" {
			out.Invalid = append(out.Invalid, fmt.Sprintf("Row %d: Missing required data", line))
			continue
		}
		c, err := number(class)
		if err != nil || c < 1 || c > 12 {
			out.Invalid = append(out.Invalid, fmt.Sprintf("Row %d: Class must be between 1 and 12", line))
			continue
		}
		n, err := number(roll)
		if err != nil || n < 1 {
			out.Invalid = append(out.Invalid, fmt.Sprintf("Row %d: Roll number must be greater than 0", line))
			continue
		}
		key := [2]int{c, n}
		if first, ok := seen[key]; ok {
			out.Duplicates = append(out.Duplicates,
				fmt.Sprintf("Rows %d and %d: Duplicate class %d roll %d", first, line, c, n))
			continue
		}
		seen[key] = line
		out.Rows = append(out.Rows, billing.ImportRow{
			Line:    line,
			Student: models.Student{Name: name, ClassLevel: c, RollNumber: n},
		})
	}
	return out, nil
}

func cell(row []string, i int) string {
	if i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// number accepts "7" as well as spreadsheet renderings like "7.0".
func number(s string) (int, error) {
	if n, err := strconv.Atoi(s); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	return int(f), nil
}
