package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Spok95/school-fees/internal/ledger"
	"github.com/Spok95/school-fees/internal/models"
	"github.com/Spok95/school-fees/internal/store"
)

// PaymentInput is a payment as entered on the form.
type PaymentInput struct {
	StudentID   string          `json:"student_id" validate:"required"`
	Amount      decimal.Decimal `json:"amount"`
	FeeName     string          `json:"fee_name" validate:"required"`
	Reference   string          `json:"reference_number"`
	PaymentDate time.Time       `json:"payment_date" validate:"required"`
}

// PaymentOutcome is what recording or editing a payment did to the ledger.
type PaymentOutcome struct {
	Payment     models.Payment      `json:"payment"`
	Allocations []models.Allocation `json:"allocations"`
	Unallocated decimal.Decimal     `json:"unallocated"`
	Bills       []ledger.BillView   `json:"bills"`
}

func (m *Manager) validatePayment(in PaymentInput) error {
	if err := m.check(in); err != nil {
		return err
	}
	if !in.Amount.IsPositive() {
		return invalidf("Payment amount must be greater than 0")
	}
	return nil
}

// RecordPayment stores a payment and allocates it over the student's bills
// that are not fully paid, first fit in bill order.
func (m *Manager) RecordPayment(ctx context.Context, in PaymentInput) (*PaymentOutcome, error) {
	const op = "record_payment"
	ctx = opCtx(ctx, op)
	in.FeeName = strings.TrimSpace(in.FeeName)
	in.Reference = strings.TrimSpace(in.Reference)
	if err := m.validatePayment(in); err != nil {
		return nil, m.fail(ctx, op, "", "", err)
	}

	var out *PaymentOutcome
	err := m.store.InTx(ctx, func(tx store.Store) error {
		s, err := tx.GetStudent(ctx, in.StudentID)
		if errors.Is(err, store.ErrNotFound) {
			return invalidf("Please select a valid student.")
		}
		if err != nil {
			return err
		}
		p := models.Payment{
			StudentID:    s.ID,
			StudentName:  s.Name,
			StudentClass: s.ClassLevel,
			StudentRoll:  s.RollNumber,
			Amount:       in.Amount,
			FeeName:      in.FeeName,
			Reference:    in.Reference,
			PaymentDate:  in.PaymentDate,
		}
		p.ID, err = tx.CreatePayment(ctx, p)
		if err != nil {
			return err
		}
		out, err = m.applyPayment(ctx, tx, p)
		return err
	})
	if err != nil {
		return nil, m.fail(ctx, op, "Error adding payment. Please try again.", "", err)
	}
	m.log.Info("payment recorded",
		zap.String("payment_id", out.Payment.ID),
		zap.String("student_id", out.Payment.StudentID),
		zap.String("amount", out.Payment.Amount.String()),
		zap.Int("allocations", len(out.Allocations)))
	m.done(ctx, op, "Payment added successfully!")
	return out, nil
}

// EditPayment updates a payment and re-allocates it from scratch with the
// new amount. Other payments keep their allocations; any credit they still
// hold is spent on bills the edit reopened.
func (m *Manager) EditPayment(ctx context.Context, id string, p models.PaymentPatch) (*PaymentOutcome, error) {
	const op = "edit_payment"
	ctx = opCtx(ctx, op)
	if p.FeeName != nil {
		n := strings.TrimSpace(*p.FeeName)
		if n == "" {
			return nil, m.fail(ctx, op, "", "", invalidf("Please select a fee name."))
		}
		p.FeeName = &n
	}
	if p.Amount != nil && !p.Amount.IsPositive() {
		return nil, m.fail(ctx, op, "", "", invalidf("Payment amount must be greater than 0"))
	}
	if p.PaymentDate != nil && p.PaymentDate.IsZero() {
		return nil, m.fail(ctx, op, "", "", invalidf("Please select a payment date."))
	}

	var out *PaymentOutcome
	err := m.store.InTx(ctx, func(tx store.Store) error {
		cur, err := tx.GetPayment(ctx, id)
		if err != nil {
			return err
		}
		at := m.now()
		if err := tx.UpdatePayment(ctx, id, p, at); err != nil {
			return err
		}
		if _, err := tx.DeleteAllocationsByPayment(ctx, id); err != nil {
			return err
		}
		updated := p.Apply(*cur)
		updated.UpdatedAt = &at
		if out, err = m.applyPayment(ctx, tx, updated); err != nil {
			return err
		}
		// A smaller amount can reopen bills that other payments' credit covers.
		if _, err := m.settleCredit(ctx, tx, updated.StudentID); err != nil {
			return err
		}
		out.Bills, err = billViews(ctx, tx, updated.StudentID)
		return err
	})
	if err != nil {
		return nil, m.fail(ctx, op, "Error updating payment. Please try again.", "Payment not found.", err)
	}
	m.done(ctx, op, "Payment updated successfully!")
	return out, nil
}

// RemovePayment deletes a payment and exactly its allocations. Credit other
// payments still hold goes to the bills that reopened, and the student's bills
// are returned as projected from what is left.
func (m *Manager) RemovePayment(ctx context.Context, id string) ([]ledger.BillView, error) {
	const op = "remove_payment"
	ctx = opCtx(ctx, op)
	var (
		views  []ledger.BillView
		amount decimal.Decimal
	)
	err := m.store.InTx(ctx, func(tx store.Store) error {
		p, err := tx.GetPayment(ctx, id)
		if err != nil {
			return err
		}
		amount = p.Amount
		if _, err := tx.DeleteAllocationsByPayment(ctx, id); err != nil {
			return err
		}
		if err := tx.DeletePayment(ctx, id); err != nil {
			return err
		}
		if _, err := m.settleCredit(ctx, tx, p.StudentID); err != nil {
			return err
		}
		views, err = billViews(ctx, tx, p.StudentID)
		return err
	})
	if err != nil {
		return nil, m.fail(ctx, op, "Error deleting payment. Please try again.", "Payment not found.", err)
	}
	m.done(ctx, op, fmt.Sprintf("Payment of %s deleted successfully!", models.FormatRupees(amount)))
	return views, nil
}

// applyPayment allocates p over the student's bills, ignoring whatever p
// itself had allocated before.
func (m *Manager) applyPayment(ctx context.Context, tx store.Store, p models.Payment) (*PaymentOutcome, error) {
	bills, err := tx.ListBills(ctx, p.StudentID)
	if err != nil {
		return nil, err
	}
	allocs, err := tx.ListAllocations(ctx, p.StudentID)
	if err != nil {
		return nil, err
	}
	others := ledger.Without(allocs, p.ID)

	planned, left := ledger.Allocate(p, ledger.Project(bills, others), m.now())
	created := make([]models.Allocation, 0, len(planned))
	for _, a := range planned {
		a.ID, err = tx.CreateAllocation(ctx, a)
		if err != nil {
			return nil, fmt.Errorf("allocate to bill %s: %w", a.BillID, err)
		}
		created = append(created, a)
	}
	return &PaymentOutcome{
		Payment:     p,
		Allocations: created,
		Unallocated: left,
		Bills:       ledger.Project(bills, append(others, created...)),
	}, nil
}

// settleCredit writes allocations for whatever credit the student's payments
// hold while a bill of theirs still has a balance.
func (m *Manager) settleCredit(ctx context.Context, tx store.Store, studentID string) ([]models.Allocation, error) {
	bills, err := tx.ListBills(ctx, studentID)
	if err != nil {
		return nil, err
	}
	payments, err := tx.ListPayments(ctx, studentID)
	if err != nil {
		return nil, err
	}
	allocs, err := tx.ListAllocations(ctx, studentID)
	if err != nil {
		return nil, err
	}
	planned := ledger.Settle(payments, bills, allocs, m.now())
	created := make([]models.Allocation, 0, len(planned))
	for _, a := range planned {
		a.ID, err = tx.CreateAllocation(ctx, a)
		if err != nil {
			return nil, fmt.Errorf("settle credit of payment %s: %w", a.PaymentID, err)
		}
		created = append(created, a)
	}
	if len(created) > 0 {
		m.log.Info("credit settled",
			zap.String("student_id", studentID),
			zap.Int("allocations", len(created)))
	}
	return created, nil
}

// BillViews projects the student's bills from the current ledger.
func (m *Manager) BillViews(ctx context.Context, studentID string) ([]ledger.BillView, error) {
	return billViews(ctx, m.store, studentID)
}

func billViews(ctx context.Context, st store.Store, studentID string) ([]ledger.BillView, error) {
	bills, err := st.ListBills(ctx, studentID)
	if err != nil {
		return nil, err
	}
	allocs, err := st.ListAllocations(ctx, studentID)
	if err != nil {
		return nil, err
	}
	return ledger.Project(bills, allocs), nil
}
