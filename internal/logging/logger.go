package logging

import (
	"context"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Spok95/school-fees/internal/ctxutil"
)

const service = "feesd"

type Log struct {
	Base   *zap.Logger
	Sugar  *zap.SugaredLogger
	Level  zap.AtomicLevel
	Closer func()
}

// Init builds the process logger: JSON for prod, console otherwise.
// An unknown level falls back to info.
func Init(level, env string) (*Log, error) {
	lvl := zap.NewAtomicLevelAt(zap.InfoLevel)
	if err := lvl.UnmarshalText([]byte(strings.ToLower(level))); err != nil {
		lvl.SetLevel(zap.InfoLevel)
	}

	cfg := zap.NewDevelopmentConfig()
	if strings.EqualFold(env, "prod") {
		cfg = zap.NewProductionConfig()
	}
	cfg.Level = lvl
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.InitialFields = map[string]any{"service": service, "env": strings.ToLower(env)}

	base, err := cfg.Build(zap.AddStacktrace(zap.ErrorLevel))
	if err != nil {
		return nil, err
	}
	return &Log{
		Base:   base,
		Sugar:  base.Sugar(),
		Level:  lvl,
		Closer: func() { _ = base.Sync() },
	}, nil
}

// Component returns a named child logger for one subsystem.
func (l *Log) Component(name string) *zap.Logger {
	return l.Base.Named(name)
}

// For adds the request ID and operation carried by ctx to log.
func For(ctx context.Context, log *zap.Logger) *zap.Logger {
	var fields []zap.Field
	if id, ok := ctxutil.RequestID(ctx); ok {
		fields = append(fields, zap.String("request_id", id))
	}
	if op, ok := ctxutil.Op(ctx); ok {
		fields = append(fields, zap.String("op", op))
	}
	if len(fields) == 0 {
		return log
	}
	return log.With(fields...)
}
