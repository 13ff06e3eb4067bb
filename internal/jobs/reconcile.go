package jobs

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Spok95/school-fees/internal/models"
	"github.com/Spok95/school-fees/internal/notify"
	"github.com/Spok95/school-fees/internal/tracking"
)

// Refresher re-runs reconciliation on demand; *tracking.Coordinator is one.
type Refresher interface {
	Refresh(ctx context.Context) (*tracking.Report, error)
}

// Sweep re-reconciles on a timer so a missed change signal heals on its own.
func Sweep(r Refresher) Job {
	return func(ctx context.Context) error {
		_, err := r.Refresh(ctx)
		return err
	}
}

// Notices reminds about overdue students. The per-student reminders go to
// Reminders, the run summary to Status.
type Notices struct {
	Source    Refresher
	Reminders notify.Notifier
	Status    notify.Notifier
	Log       *zap.Logger
	Now       func() time.Time
}

// Send reconciles, then issues one reminder per overdue student and returns
// how many were sent.
func (n *Notices) Send(ctx context.Context) (int, error) {
	status := n.Status
	if status == nil {
		status = notify.Nop
	}
	rep, err := n.Source.Refresh(ctx)
	if err != nil {
		status.Notify(ctx, "Error sending overdue notices. Please try again.", notify.Error)
		return 0, fmt.Errorf("overdue notices: %w", err)
	}
	due := tracking.Overdue(rep.Records)
	if len(due) == 0 {
		status.Notify(ctx, "No overdue payments found.", notify.Info)
		return 0, nil
	}

	now := time.Now()
	if n.Now != nil {
		now = n.Now()
	}
	for _, r := range due {
		if n.Reminders != nil {
			n.Reminders.Notify(ctx, reminder(r, now), notify.Info)
		}
		if n.Log != nil {
			n.Log.Info("overdue notice",
				zap.String("student_id", r.StudentID),
				zap.String("amount_due", r.AmountDue.StringFixed(2)),
				zap.Int("class", r.StudentClass))
		}
	}
	status.Notify(ctx, fmt.Sprintf("Overdue notices sent to %d students.", len(due)), notify.Success)
	return len(due), nil
}

// Job adapts Send to the runner.
func (n *Notices) Job() Job {
	return func(ctx context.Context) error {
		_, err := n.Send(ctx)
		return err
	}
}

func reminder(r tracking.Record, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Overdue: %s (Class %d, Roll %d) owes %s", r.StudentName, r.StudentClass, r.StudentRoll, models.FormatRupees(r.AmountDue))
	if d := tracking.DaysOverdue(r, now); d > 0 {
		fmt.Fprintf(&b, ", %d days overdue", d)
	}
	return b.String()
}
