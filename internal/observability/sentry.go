package observability

import (
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
)

func InitSentry(dsn, env, release string) (func(), error) {
	if dsn == "" {
		return func() {}, nil
	}
	if err := sentry.Init(sentry.ClientOptions{
		Dsn:         dsn,
		Environment: env,
		Release:     release,
	}); err != nil {
		return func() {}, err
	}
	return func() { sentry.Flush(2 * time.Second) }, nil
}

func CaptureErr(err error) {
	if err != nil {
		sentry.CaptureException(err)
	}
}

// CaptureOp reports err tagged with the operation that produced it.
func CaptureOp(op string, err error) {
	if err == nil {
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("op", op)
		sentry.CaptureException(err)
	})
}

// Recover is deferred by background loops: a panic is reported instead of
// killing the process.
func Recover(name string) {
	if r := recover(); r != nil {
		CaptureErr(fmt.Errorf("panic in %s: %v", name, r))
	}
}
