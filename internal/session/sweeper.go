package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/ashureev/shopframes/internal/shared"
)

// Expirer is implemented by stores that can drop expired entries in bulk.
type Expirer interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// SweepOnce deletes expired sessions, retrying while the database is busy.
func SweepOnce(ctx context.Context, e Expirer) (int64, error) {
	var deleted int64
	err := shared.RetryOnConflict(ctx, 3, 100*time.Millisecond, "session sweep", func() error {
		n, err := e.DeleteExpired(ctx)
		deleted = n
		return err
	})
	return deleted, err
}

// StartSweeper runs a background goroutine that periodically deletes expired
// sessions until ctx is canceled.
func StartSweeper(ctx context.Context, e Expirer, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		slog.Info("session sweeper started", "interval", interval)

		for {
			select {
			case <-ticker.C:
				n, err := SweepOnce(ctx, e)
				if err != nil {
					slog.Error("session sweeper failed", "error", err)
					continue
				}
				if n > 0 {
					slog.Info("session sweeper deleted expired entries", "count", n)
				}
			case <-ctx.Done():
				slog.Info("session sweeper shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}
