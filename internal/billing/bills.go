package billing

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/Spok95/school-fees/internal/feerules"
	"github.com/Spok95/school-fees/internal/models"
	"github.com/Spok95/school-fees/internal/store"
)

// GenerateResult counts what one generation run did per student.
type GenerateResult struct {
	Created int `json:"created"`
	Skipped int `json:"skipped"` // already had a bill
	NoFees  int `json:"no_fees"` // no mandatory fee covers the class
	Failed  int `json:"failed"`
}

// GenerateBills creates one bill per student that has none, itemizing the
// mandatory fees of the student's class. Credit the student already holds is
// allocated to the new bill. A student whose bill cannot be written is counted
// as failed and the run goes on.
func (m *Manager) GenerateBills(ctx context.Context) (GenerateResult, error) {
	const op = "generate_bills"
	ctx = opCtx(ctx, op)
	var res GenerateResult

	snap, err := m.store.Snapshot(ctx)
	if err != nil {
		return res, m.fail(ctx, op, "Error generating bills. Please try again.", "", err)
	}
	billed := make(map[string]bool, len(snap.Bills))
	for _, b := range snap.Bills {
		billed[b.StudentID] = true
	}

	now := m.now()
	for _, s := range snap.Students {
		if billed[s.ID] {
			res.Skipped++
			continue
		}
		fees := feerules.Applicable(s.ClassLevel, snap.FeeRules)
		if len(fees) == 0 {
			res.NoFees++
			continue
		}
		bill := models.Bill{
			StudentID:    s.ID,
			StudentName:  s.Name,
			StudentClass: s.ClassLevel,
			StudentRoll:  s.RollNumber,
			Breakdown:    feerules.Breakdown(fees),
			TotalAmount:  feerules.Total(fees),
			BillDate:     now,
		}
		err := m.store.InTx(ctx, func(tx store.Store) error {
			if _, err := tx.CreateBill(ctx, bill); err != nil {
				return err
			}
			// Payments recorded before the student had a bill are credit.
			_, err := m.settleCredit(ctx, tx, s.ID)
			return err
		})
		if err != nil {
			res.Failed++
			m.log.Error("create bill", zap.String("student_id", s.ID), zap.Error(err))
			continue
		}
		res.Created++
	}

	m.log.Info("bills generated",
		zap.Int("created", res.Created),
		zap.Int("skipped", res.Skipped),
		zap.Int("no_fees", res.NoFees),
		zap.Int("failed", res.Failed))

	if res.Failed > 0 {
		err := fmt.Errorf("%d of %d bills failed", res.Failed, res.Failed+res.Created)
		_ = m.fail(ctx, op, fmt.Sprintf("Generated %d bills, %d failed. Please try again.", res.Created, res.Failed), "", err)
		return res, nil
	}
	m.done(ctx, op, fmt.Sprintf("Bills generated successfully with class-specific fees! (%d created, %d skipped)", res.Created, res.Skipped))
	return res, nil
}

// DeleteBill removes the bill together with the payments allocated to it.
func (m *Manager) DeleteBill(ctx context.Context, id string) error {
	const op = "delete_bill"
	ctx = opCtx(ctx, op)
	var name string
	err := m.store.InTx(ctx, func(tx store.Store) error {
		b, err := tx.GetBill(ctx, id)
		if err != nil {
			return err
		}
		name = b.StudentName
		allocs, err := tx.ListAllocations(ctx, b.StudentID)
		if err != nil {
			return err
		}
		seen := map[string]bool{}
		for _, a := range allocs {
			if a.BillID != id || seen[a.PaymentID] {
				continue
			}
			seen[a.PaymentID] = true
			if err := store.IgnoreNotFound(tx.DeletePayment(ctx, a.PaymentID)); err != nil {
				return fmt.Errorf("delete payment %s: %w", a.PaymentID, err)
			}
		}
		return tx.DeleteBill(ctx, id)
	})
	if err != nil {
		return m.fail(ctx, op, "Error deleting bill. Please try again.", "Bill not found.", err)
	}
	m.done(ctx, op, fmt.Sprintf("Bill for %s deleted successfully!", name))
	return nil
}
