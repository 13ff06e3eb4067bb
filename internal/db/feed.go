package db

import (
	"context"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/Spok95/school-fees/internal/observability"
	"github.com/Spok95/school-fees/internal/store"
)

// ChangeChannel is the NOTIFY channel the table triggers publish on; the
// payload is the table name, which equals the store.Kind.
const ChangeChannel = "fees_changed"

// Subscribe listens on ChangeChannel and delivers a fresh snapshot for
// every burst of changes to kinds. A reconnect also triggers a delivery,
// since notifications may have been lost while disconnected.
func (s *Store) Subscribe(ctx context.Context, kinds []store.Kind, onSnapshot func(store.Snapshot), onError func(error)) (func(), error) {
	if s.inTx {
		return nil, errSubscribeInTx
	}
	if len(kinds) == 0 {
		kinds = store.AllKinds
	}
	want := make(map[string]bool, len(kinds))
	for _, k := range kinds {
		want[string(k)] = true
	}

	l := pq.NewListener(s.dsn, time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			s.log.Warn("listener", zap.Int("event", int(ev)), zap.Error(err))
		}
	})
	if err := l.Listen(ChangeChannel); err != nil {
		_ = l.Close()
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	signal := make(chan struct{}, 1)
	kick := func() {
		select {
		case signal <- struct{}{}:
		default:
		}
	}
	kick()

	go func() {
		defer observability.Recover("pg listener")
		ping := time.NewTicker(90 * time.Second)
		defer ping.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case n, ok := <-l.Notify:
				if !ok {
					return
				}
				if n == nil || want[n.Extra] {
					kick()
				}
			case <-ping.C:
				go func() { _ = l.Ping() }()
			}
		}
	}()

	go func() {
		defer observability.Recover("pg feed")
		for {
			select {
			case <-ctx.Done():
				return
			case <-signal:
				snap, err := s.Snapshot(ctx)
				if err != nil {
					if ctx.Err() != nil {
						return
					}
					if onError != nil {
						onError(err)
					}
					continue
				}
				onSnapshot(snap)
			}
		}
	}()

	return func() {
		cancel()
		_ = l.Close()
	}, nil
}
