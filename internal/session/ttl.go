package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ashureev/videolearn/internal/store"
)

const ttlWorkerInterval = 5 * time.Minute

// StartTTLWorker runs a background goroutine that periodically evicts idle
// managers from memory and deletes stored tabs untouched for storeTTL.
func StartTTLWorker(ctx context.Context, reg *Registry, kv store.KV, idleTTL, storeTTL time.Duration) {
	ticker := time.NewTicker(ttlWorkerInterval)
	go func() {
		defer ticker.Stop()
		slog.Info("TTL worker started", "interval", ttlWorkerInterval, "idle_ttl", idleTTL, "store_ttl", storeTTL)

		for {
			select {
			case <-ticker.C:
				sweep(ctx, reg, kv, idleTTL, storeTTL)
			case <-ctx.Done():
				slog.Info("TTL worker shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

func sweep(ctx context.Context, reg *Registry, kv store.KV, idleTTL, storeTTL time.Duration) {
	if evicted := reg.SweepIdle(idleTTL); len(evicted) > 0 {
		slog.Info("TTL worker evicted idle sessions", "count", len(evicted))
	}

	deleted, err := cleanupWithRetry(ctx, kv, storeTTL)
	if err != nil {
		slog.Error("TTL worker failed to cleanup expired session data", "error", err)
		return
	}
	if deleted > 0 {
		slog.Info("TTL worker cleaned up expired session data", "count", deleted)
	}
}

// cleanupWithRetry retries with exponential backoff while SQLite reports
// the database as busy.
func cleanupWithRetry(ctx context.Context, kv store.KV, ttl time.Duration) (int64, error) {
	const maxRetries = 3
	baseDelay := 100 * time.Millisecond

	var lastErr error
	for i := 0; i < maxRetries; i++ {
		deleted, err := kv.CleanupExpired(ctx, ttl)
		if err == nil {
			return deleted, nil
		}
		lastErr = err
		if !store.IsConflict(err) || i == maxRetries-1 {
			break
		}

		delay := baseDelay * time.Duration(1<<i) // 100ms, 200ms
		slog.Debug("TTL worker cleanup hit a busy database, retrying", "attempt", i+1, "delay", delay)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	return 0, fmt.Errorf("cleanup expired session data: %w", lastErr)
}
