// Package notify delivers short operator-facing messages.
package notify

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

type Severity string

const (
	Info    Severity = "info"
	Success Severity = "success"
	Error   Severity = "error"
)

type Notifier interface {
	Notify(ctx context.Context, message string, sev Severity)
}

// Func adapts a function to Notifier.
type Func func(ctx context.Context, message string, sev Severity)

func (f Func) Notify(ctx context.Context, message string, sev Severity) { f(ctx, message, sev) }

// Nop drops everything.
var Nop Notifier = Func(func(context.Context, string, Severity) {})

// Log writes notifications to a zap logger.
type Log struct {
	log *zap.Logger
}

func NewLog(log *zap.Logger) *Log { return &Log{log: log.Named("notify")} }

func (l *Log) Notify(_ context.Context, message string, sev Severity) {
	switch sev {
	case Error:
		l.log.Warn(message, zap.String("severity", string(sev)))
	default:
		l.log.Info(message, zap.String("severity", string(sev)))
	}
}

// Multi fans a notification out to every notifier in order.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, message string, sev Severity) {
	for _, n := range m {
		if n != nil {
			n.Notify(ctx, message, sev)
		}
	}
}

// Note is one recorded notification.
type Note struct {
	Message  string
	Severity Severity
}

// Recorder keeps notifications in memory; handy for tests and for the API's
// recent-notifications view.
type Recorder struct {
	mu    sync.Mutex
	notes []Note
	limit int
}

// NewRecorder keeps at most limit notes (0 means unlimited).
func NewRecorder(limit int) *Recorder { return &Recorder{limit: limit} }

func (r *Recorder) Notify(_ context.Context, message string, sev Severity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, Note{Message: message, Severity: sev})
	if r.limit > 0 && len(r.notes) > r.limit {
		r.notes = append([]Note(nil), r.notes[len(r.notes)-r.limit:]...)
	}
}

func (r *Recorder) Notes() []Note {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Note(nil), r.notes...)
}

// Last returns the most recent note, if any.
func (r *Recorder) Last() (Note, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.notes) == 0 {
		return Note{}, false
	}
	return r.notes[len(r.notes)-1], true
}
