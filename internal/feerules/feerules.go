// Package feerules decides which fee rules apply to a class level.
package feerules

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/Spok95/school-fees/internal/models"
)

// Applicable returns the mandatory rules covering classLevel, in input order.
// Bill generation uses this.
func Applicable(classLevel int, rules []models.FeeRule) []models.FeeRule {
	return filter(classLevel, rules, true)
}

// ForClass returns every rule covering classLevel, mandatory or not. The
// payment form offers these fee names.
func ForClass(classLevel int, rules []models.FeeRule) []models.FeeRule {
	return filter(classLevel, rules, false)
}

func filter(classLevel int, rules []models.FeeRule, mandatoryOnly bool) []models.FeeRule {
	var out []models.FeeRule
	for _, r := range rules {
		if mandatoryOnly && !r.Mandatory {
			continue
		}
		if Covers(r, classLevel) {
			out = append(out, r)
		}
	}
	return out
}

// Covers reports whether classLevel falls inside the rule's inclusive range.
func Covers(r models.FeeRule, classLevel int) bool {
	from, to := r.Range()
	return classLevel >= from && classLevel <= to
}

func Total(rules []models.FeeRule) decimal.Decimal {
	sum := decimal.Zero
	for _, r := range rules {
		sum = sum.Add(r.Amount)
	}
	return sum
}

func Names(rules []models.FeeRule) []string {
	out := make([]string, 0, len(rules))
	for _, r := range rules {
		out = append(out, r.Name)
	}
	return out
}

func Breakdown(rules []models.FeeRule) []models.FeeLine {
	out := make([]models.FeeLine, 0, len(rules))
	for _, r := range rules {
		out = append(out, models.FeeLine{FeeName: r.Name, Amount: r.Amount})
	}
	return out
}

// ValidateRange rejects bounds outside 1..12 and inverted ranges.
func ValidateRange(from, to *int) error {
	lo, hi := models.MinClassLevel, models.MaxClassLevel
	if from != nil {
		lo = *from
	}
	if to != nil {
		hi = *to
	}
	if lo < models.MinClassLevel || hi > models.MaxClassLevel {
		return fmt.Errorf("class range %d-%d is outside %d-%d", lo, hi, models.MinClassLevel, models.MaxClassLevel)
	}
	if lo > hi {
		return fmt.Errorf("from class %d cannot be greater than to class %d", lo, hi)
	}
	return nil
}
