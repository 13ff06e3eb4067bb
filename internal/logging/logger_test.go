package logging

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Spok95/school-fees/internal/ctxutil"
)

func TestInitLevels(t *testing.T) {
	cases := []struct {
		level string
		want  zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"WARN", zapcore.WarnLevel},
		{"nonsense", zapcore.InfoLevel},
	}
	for _, c := range cases {
		t.Run(c.level, func(t *testing.T) {
			l, err := Init(c.level, "dev")
			if err != nil {
				t.Fatalf("init: %v", err)
			}
			defer l.Closer()
			if got := l.Level.Level(); got != c.want {
				t.Fatalf("level = %v, want %v", got, c.want)
			}
			if l.Component("billing") == nil {
				t.Fatal("component logger is nil")
			}
		})
	}
}

func TestForAddsContextFields(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	base := zap.New(core)

	ctx := ctxutil.WithOp(ctxutil.WithRequestID(context.Background(), "req-1"), "record_payment")
	For(ctx, base).Info("hello")
	For(context.Background(), base).Info("bare")

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("entries = %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["request_id"] != "req-1" || fields["op"] != "record_payment" {
		t.Fatalf("fields = %v", fields)
	}
	if len(entries[1].Context) != 0 {
		t.Fatalf("bare entry has fields: %v", entries[1].Context)
	}
}
