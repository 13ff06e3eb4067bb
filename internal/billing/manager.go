// Package billing owns every mutation of the fee records: bill generation,
// recording, editing and removing payments against the allocation ledger,
// plus student and fee-rule administration with their cascades.
package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/Spok95/school-fees/internal/ctxutil"
	"github.com/Spok95/school-fees/internal/logging"
	"github.com/Spok95/school-fees/internal/metrics"
	"github.com/Spok95/school-fees/internal/models"
	"github.com/Spok95/school-fees/internal/notify"
	"github.com/Spok95/school-fees/internal/observability"
	"github.com/Spok95/school-fees/internal/store"
)

// ErrInvalidInput is wrapped by every ValidationError.
var ErrInvalidInput = errors.New("invalid input")

// ValidationError is rejected input; no store call was made.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func (e *ValidationError) Unwrap() error { return ErrInvalidInput }

func invalidf(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

type Manager struct {
	store    store.Store
	notifier notify.Notifier
	log      *zap.Logger
	validate *validator.Validate
	now      func() time.Time
}

type Option func(*Manager)

// WithClock overrides the clock used for allocation and update stamps.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func New(st store.Store, n notify.Notifier, log *zap.Logger, opts ...Option) *Manager {
	if n == nil {
		n = notify.Nop
	}
	if log == nil {
		log = zap.NewNop()
	}
	m := &Manager{
		store:    st,
		notifier: n,
		log:      log.Named("billing"),
		validate: validator.New(validator.WithRequiredStructEnabled()),
		now:      time.Now,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// check runs struct-tag validation and turns the first failure into a
// message fit for the operator.
func (m *Manager) check(v any) error {
	err := m.validate.Struct(v)
	if err == nil {
		return nil
	}
	var ve validator.ValidationErrors
	if errors.As(err, &ve) && len(ve) > 0 {
		return &ValidationError{Msg: fieldMessage(ve[0])}
	}
	return invalidf("%v", err)
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.StructNamespace() {
	case "Student.Name":
		return "Name cannot be empty"
	case "Student.ClassLevel":
		return "Class must be between 1 and 12"
	case "Student.RollNumber":
		return "Roll number must be greater than 0"
	case "FeeRule.Name":
		return "Fee name cannot be empty"
	case "FeeRule.ClassFrom", "FeeRule.ClassTo":
		return "Class range must be within 1 and 12"
	case "PaymentInput.StudentID":
		return "Please select a valid student."
	case "PaymentInput.FeeName":
		return "Please select a fee name."
	case "PaymentInput.PaymentDate":
		return "Please select a payment date."
	}
	return fmt.Sprintf("%s is invalid (%s)", fe.Field(), fe.Tag())
}

// fail reports err to the operator and returns it. Validation errors go
// out verbatim; not-found gets its own message; anything else is logged,
// sent to Sentry and summarized with userMsg.
func (m *Manager) fail(ctx context.Context, op, userMsg, notFoundMsg string, err error) error {
	metrics.Op(op, err)
	switch {
	case errors.Is(err, ErrInvalidInput):
		m.notifier.Notify(ctx, err.Error(), notify.Error)
		return err
	case errors.Is(err, store.ErrNotFound) && notFoundMsg != "":
		m.notifier.Notify(ctx, notFoundMsg, notify.Error)
		return err
	}
	logging.For(ctx, m.log).Error(op+" failed", zap.Error(err))
	observability.CaptureOp(op, err)
	m.notifier.Notify(ctx, userMsg, notify.Error)
	return fmt.Errorf("%s: %w", op, err)
}

func (m *Manager) done(ctx context.Context, op, msg string) {
	metrics.Op(op, nil)
	if msg != "" {
		m.notifier.Notify(ctx, msg, notify.Success)
	}
}

func opCtx(ctx context.Context, op string) context.Context {
	return ctxutil.WithOp(ctx, op)
}

func cleanName(s string) string { return strings.TrimSpace(s) }

func rollTaken(students []models.Student, class, roll int, exceptID string) bool {
	for _, s := range students {
		if s.ID != exceptID && s.ClassLevel == class && s.RollNumber == roll {
			return true
		}
	}
	return false
}
