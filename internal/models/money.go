package models

import (
	"strings"

	"github.com/shopspring/decimal"
)

// FormatRupees renders an amount the way the dashboard shows it: ₹ sign,
// thousands separators, paise only when non-zero.
func FormatRupees(d decimal.Decimal) string {
	neg := d.IsNegative()
	d = d.Abs().Round(2)

	s := d.StringFixed(2)
	intPart, frac, _ := strings.Cut(s, ".")

	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	b.WriteString("₹")
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if frac != "00" {
		b.WriteByte('.')
		b.WriteString(frac)
	}
	return b.String()
}
