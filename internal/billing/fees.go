package billing

import (
	"context"

	"github.com/Spok95/school-fees/internal/feerules"
	"github.com/Spok95/school-fees/internal/models"
)

// AddFeeRule stores a fee category. Existing bills are not regenerated.
func (m *Manager) AddFeeRule(ctx context.Context, f models.FeeRule) (string, error) {
	const op = "add_fee_rule"
	ctx = opCtx(ctx, op)
	f.ID = ""
	f.Name = cleanName(f.Name)
	if err := m.validateFeeRule(f); err != nil {
		return "", m.fail(ctx, op, "", "", err)
	}
	id, err := m.store.CreateFeeRule(ctx, f)
	if err != nil {
		return "", m.fail(ctx, op, "Error adding fee category. Please try again.", "", err)
	}
	m.done(ctx, op, "Fee category added successfully!")
	return id, nil
}

func (m *Manager) validateFeeRule(f models.FeeRule) error {
	if err := m.check(f); err != nil {
		return err
	}
	if f.Amount.IsNegative() {
		return invalidf("Fee amount cannot be negative")
	}
	if err := feerules.ValidateRange(f.ClassFrom, f.ClassTo); err != nil {
		from, to := f.Range()
		if from > to {
			return invalidf("From Class cannot be greater than To Class.")
		}
		return invalidf("%v", err)
	}
	return nil
}

func (m *Manager) DeleteFeeRule(ctx context.Context, id string) error {
	const op = "delete_fee_rule"
	ctx = opCtx(ctx, op)
	if err := m.store.DeleteFeeRule(ctx, id); err != nil {
		return m.fail(ctx, op, "Error deleting fee category. Please try again.", "Fee category not found.", err)
	}
	m.done(ctx, op, "Fee category deleted successfully!")
	return nil
}

// FeeNamesFor lists every fee rule, mandatory or optional, that applies to
// the student's class. It feeds the payment form.
func (m *Manager) FeeNamesFor(ctx context.Context, studentID string) ([]models.FeeRule, error) {
	s, err := m.store.GetStudent(ctx, studentID)
	if err != nil {
		return nil, err
	}
	rules, err := m.store.ListFeeRules(ctx)
	if err != nil {
		return nil, err
	}
	return feerules.ForClass(s.ClassLevel, rules), nil
}
