package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/Spok95/school-fees/internal/observability"
)

type Job func(ctx context.Context) error

// Runner owns the background loops of the service. Every loop stops with
// the context passed to New; Stop also waits for running cron jobs.
type Runner struct {
	ctx  context.Context
	log  *zap.Logger
	cron *cron.Cron
}

func New(ctx context.Context, log *zap.Logger) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{
		ctx:  ctx,
		log:  log.Named("jobs"),
		cron: cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger))),
	}
}

func (r *Runner) Every(interval time.Duration, name string, fn Job) {
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-r.ctx.Done():
				return
			case <-t.C:
				r.run(name, fn)
			}
		}
	}()
}

// Cron schedules fn by a standard five-field spec; call Start afterwards.
func (r *Runner) Cron(spec, name string, fn Job) error {
	_, err := r.cron.AddFunc(spec, func() {
		if r.ctx.Err() != nil {
			return
		}
		r.run(name, fn)
	})
	return err
}

func (r *Runner) Start() { r.cron.Start() }

func (r *Runner) Stop() {
	<-r.cron.Stop().Done()
}

func (r *Runner) run(name string, fn Job) {
	defer observability.Recover("job " + name)
	start := time.Now()
	err := fn(r.ctx)
	if err != nil {
		jobErrors.WithLabelValues(name).Inc()
		r.log.Warn("job failed", zap.String("job", name), zap.Error(err))
	} else {
		jobLastSuccess.WithLabelValues(name).SetToCurrentTime()
	}
	jobRuns.WithLabelValues(name).Inc()
	jobDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
}
