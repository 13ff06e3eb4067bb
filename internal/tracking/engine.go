package tracking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Spok95/school-fees/internal/metrics"
	"github.com/Spok95/school-fees/internal/notify"
	"github.com/Spok95/school-fees/internal/observability"
	"github.com/Spok95/school-fees/internal/store"
)

// Report is one reconciliation result. It is shared between readers and
// must not be modified.
type Report struct {
	Records     []Record       `json:"records"`
	Stats       PortfolioStats `json:"stats"`
	Purged      PurgeCounts    `json:"purged"`
	GeneratedAt time.Time      `json:"generated_at"`
	Version     uint64         `json:"version"`
}

// PurgeCounts is how many orphans one pass actually removed.
type PurgeCounts struct {
	Bills       int `json:"bills"`
	Payments    int `json:"payments"`
	Allocations int `json:"allocations"`
}

type Engine struct {
	store        store.Store
	notifier     notify.Notifier
	log          *zap.Logger
	overdueAfter time.Duration
	now          func() time.Time
}

type Option func(*Engine)

func WithOverdueAfter(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.overdueAfter = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func NewEngine(st store.Store, n notify.Notifier, log *zap.Logger, opts ...Option) *Engine {
	if n == nil {
		n = notify.Nop
	}
	if log == nil {
		log = zap.NewNop()
	}
	e := &Engine{
		store:        st,
		notifier:     n,
		log:          log.Named("tracking"),
		overdueAfter: DefaultOverdueAfter,
		now:          time.Now,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Reconcile summarizes snap and deletes its orphans. The report is always
// returned; a failed purge is reported through the error and leaves the
// orphans for the next pass.
func (e *Engine) Reconcile(ctx context.Context, snap store.Snapshot) (*Report, error) {
	start := time.Now()
	now := e.now()
	sum := Summarize(snap, now, e.overdueAfter)
	rep := &Report{Records: sum.Records, Stats: sum.Stats, GeneratedAt: now}

	var err error
	if !sum.Orphans.Empty() {
		rep.Purged, err = e.purge(ctx, sum.Orphans)
		if err != nil {
			e.log.Error("orphan purge failed", zap.Error(err))
			observability.CaptureOp("purge_orphans", err)
			e.notifier.Notify(ctx, "Error updating payment tracking data", notify.Error)
		}
	}
	if rep.Purged.Bills > 0 || rep.Purged.Payments > 0 {
		e.notifier.Notify(ctx,
			fmt.Sprintf("Cleaned up %d orphaned bills and %d orphaned payments", rep.Purged.Bills, rep.Purged.Payments),
			notify.Info)
	}

	metrics.ReconcileRuns.Inc()
	metrics.ReconcileDuration.Observe(time.Since(start).Seconds())
	metrics.TrackedStudents.Set(float64(rep.Stats.Students))
	metrics.Outstanding.Set(rep.Stats.TotalOutstanding.InexactFloat64())
	metrics.CollectionRate.Set(rep.Stats.CollectionRate)
	metrics.OverdueStudents.Set(float64(rep.Stats.OverdueCount))
	return rep, err
}

// purge deletes allocations, then payments, then bills in one transaction.
// Records already gone are skipped and not counted.
func (e *Engine) purge(ctx context.Context, o Orphans) (PurgeCounts, error) {
	var n PurgeCounts
	err := e.store.InTx(ctx, func(tx store.Store) error {
		var err error
		if n.Allocations, err = deleteAll(ctx, tx, store.Allocations, o.Allocations, tx.DeleteAllocation); err != nil {
			return err
		}
		if n.Payments, err = deleteAll(ctx, tx, store.Payments, o.Payments, tx.DeletePayment); err != nil {
			return err
		}
		n.Bills, err = deleteAll(ctx, tx, store.Bills, o.Bills, tx.DeleteBill)
		return err
	})
	if err != nil {
		return PurgeCounts{}, err
	}
	metrics.OrphansPurged.WithLabelValues("allocations").Add(float64(n.Allocations))
	metrics.OrphansPurged.WithLabelValues("payments").Add(float64(n.Payments))
	metrics.OrphansPurged.WithLabelValues("bills").Add(float64(n.Bills))
	if n != (PurgeCounts{}) {
		e.log.Info("orphans purged",
			zap.Int("bills", n.Bills),
			zap.Int("payments", n.Payments),
			zap.Int("allocations", n.Allocations))
	}
	return n, nil
}

// deleteAll removes ids in one call when the store supports it and one by
// one otherwise.
func deleteAll(ctx context.Context, tx store.Store, kind store.Kind, ids []string, del func(context.Context, string) error) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	if bd, ok := tx.(store.BulkDeleter); ok {
		n, err := bd.DeleteMany(ctx, kind, ids)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", kind, err)
		}
		return n, nil
	}
	n := 0
	for _, id := range ids {
		ok, err := deleted(del(ctx, id))
		if err != nil {
			return 0, fmt.Errorf("%s %s: %w", kind, id, err)
		}
		if ok {
			n++
		}
	}
	return n, nil
}

func deleted(err error) (bool, error) {
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}
