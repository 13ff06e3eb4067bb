package tracking

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Spok95/school-fees/internal/observability"
	"github.com/Spok95/school-fees/internal/store"
)

// Coordinator is the single owner of the latest Report. It re-runs the
// engine on every store change and publishes each result as a new version.
type Coordinator struct {
	store  store.Store
	engine *Engine
	log    *zap.Logger

	runMu sync.Mutex // one reconciliation at a time
	taken time.Time  // TakenAt of the snapshot behind latest; guarded by runMu

	mu      sync.RWMutex
	latest  *Report
	version uint64
	changed chan struct{}
}

func NewCoordinator(st store.Store, e *Engine, log *zap.Logger) *Coordinator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Coordinator{
		store:   st,
		engine:  e,
		log:     log.Named("coordinator"),
		changed: make(chan struct{}),
	}
}

// Run subscribes to the store and blocks until ctx is done.
func (c *Coordinator) Run(ctx context.Context) error {
	unsub, err := c.store.Subscribe(ctx, store.AllKinds,
		func(snap store.Snapshot) {
			defer observability.Recover("coordinator")
			c.apply(ctx, snap)
		},
		func(err error) {
			c.log.Error("snapshot feed", zap.Error(err))
			observability.CaptureOp("snapshot_feed", err)
		})
	if err != nil {
		return err
	}
	defer unsub()
	<-ctx.Done()
	return nil
}

// Refresh reconciles a fresh snapshot right away. The snapshot is read while
// no other pass runs, so a slow Refresh cannot publish over a newer result.
func (c *Coordinator) Refresh(ctx context.Context) (*Report, error) {
	c.runMu.Lock()
	defer c.runMu.Unlock()

	snap, err := c.store.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return c.publish(ctx, snap), nil
}

func (c *Coordinator) apply(ctx context.Context, snap store.Snapshot) *Report {
	c.runMu.Lock()
	defer c.runMu.Unlock()
	return c.publish(ctx, snap)
}

// publish reconciles snap and makes it the latest report. A snapshot older
// than the one already published is dropped. Callers hold runMu.
func (c *Coordinator) publish(ctx context.Context, snap store.Snapshot) *Report {
	if !c.taken.IsZero() && snap.TakenAt.Before(c.taken) {
		c.log.Debug("stale snapshot dropped",
			zap.Time("taken_at", snap.TakenAt),
			zap.Time("latest_taken_at", c.taken))
		return c.Latest()
	}

	rep, err := c.engine.Reconcile(ctx, snap)
	if err != nil {
		c.log.Warn("reconcile finished with errors", zap.Error(err))
	}

	c.mu.Lock()
	c.version++
	rep.Version = c.version
	c.latest = rep
	c.taken = snap.TakenAt
	close(c.changed)
	c.changed = make(chan struct{})
	c.mu.Unlock()
	return rep
}

// Latest returns the newest report, or nil before the first pass.
func (c *Coordinator) Latest() *Report {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.latest
}

// Wait blocks until a report newer than version exists.
func (c *Coordinator) Wait(ctx context.Context, version uint64) (*Report, error) {
	for {
		c.mu.RLock()
		rep, ch := c.latest, c.changed
		c.mu.RUnlock()
		if rep != nil && rep.Version > version {
			return rep, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ch:
		}
	}
}
