package session

import (
	"context"
	"log/slog"
	"time"
)

// StartSweeper runs a background goroutine that removes sessions idle for
// longer than idle every interval, until ctx is done.
func StartSweeper(ctx context.Context, store Store, interval, idle time.Duration) {
	if interval <= 0 || idle <= 0 {
		slog.Info("Session sweeper disabled", "interval", interval, "idle_ttl", idle)
		return
	}

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		slog.Info("Session sweeper started", "interval", interval, "idle_ttl", idle)

		for {
			select {
			case <-ticker.C:
				sweepOnce(ctx, store, idle)
			case <-ctx.Done():
				slog.Info("Session sweeper shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

func sweepOnce(ctx context.Context, store Store, idle time.Duration) {
	removed, err := store.Sweep(ctx, idle)
	if err != nil {
		slog.Error("Session sweep failed", "error", err)
		return
	}
	if removed > 0 {
		slog.Info("Expired idle sessions", "count", removed)
	}
}
