package main

import (
	"context"
	"log/slog"
	"time"

	"identity/internal/observability/metrics"
	"identity/internal/store"
)

// runJanitor removes expired security tokens, and pending email changes older
// than pendingTTL, every interval until ctx ends.
func runJanitor(ctx context.Context, st *store.Store, interval, pendingTTL time.Duration, now func() time.Time) {
	if interval <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			at := now()
			purgeOnce(ctx, st, at)
			releasePendingEmails(ctx, st, at.Add(-pendingTTL))
		}
	}
}

func purgeOnce(ctx context.Context, st *store.Store, now time.Time) int64 {
	n, err := st.Tokens().PurgeExpired(ctx, now)
	if err != nil {
		slog.Warn("token purge failed", "error", err)
		return 0
	}
	if n > 0 {
		metrics.TokensPurgedTotal.Add(float64(n))
		slog.Info("expired tokens purged", "count", n)
	}
	return n
}

func releasePendingEmails(ctx context.Context, st *store.Store, cutoff time.Time) int64 {
	n, err := st.Users().ClearStalePendingEmails(ctx, cutoff)
	if err != nil {
		slog.Warn("pending email cleanup failed", "error", err)
		return 0
	}
	if n > 0 {
		slog.Info("stale pending emails released", "count", n)
	}
	return n
}
