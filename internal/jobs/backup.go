package jobs

import (
	"context"
	"fmt"

	"github.com/Spok95/school-fees/internal/notify"
)

// Backuper takes a database dump; *backupclient.Client is one.
type Backuper interface {
	Trigger(ctx context.Context) (string, error)
}

// Backup requests a dump and reports the outcome to n.
func Backup(b Backuper, n notify.Notifier) Job {
	return func(ctx context.Context) error {
		name, err := b.Trigger(ctx)
		if err != nil {
			n.Notify(ctx, "Database backup failed. Please check the backup service.", notify.Error)
			return fmt.Errorf("backup: %w", err)
		}
		n.Notify(ctx, "Database backup created: "+name, notify.Info)
		return nil
	}
}
