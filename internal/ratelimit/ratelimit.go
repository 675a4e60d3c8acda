// Package ratelimit paces outbound requests to upstream databases.
package ratelimit

import (
	"context"
	"log/slog"
	"time"

	"github.com/openbioscience/finch/internal/domain"
)

// counterKey is the cache key used for the per-database request counter.
const counterKey = "ratelimit"

// minRetryDelay bounds how tightly Wait polls a saturated window.
const minRetryDelay = 10 * time.Millisecond

// Limiter enforces per-database request budgets using cache counter
// windows. With a Redis-backed cache the budget is shared across nodes.
type Limiter struct {
	cache        domain.Cache
	limits       map[domain.Database]int
	defaultLimit int
	window       time.Duration
	enabled      bool
}

// NewLimiter creates a limiter from configuration.
func NewLimiter(cache domain.Cache, cfg domain.RateLimitConfig) *Limiter {
	window := cfg.Window
	if window <= 0 {
		window = time.Second
	}
	defaultLimit := cfg.Default
	if defaultLimit <= 0 {
		defaultLimit = 10
	}

	return &Limiter{
		cache:        cache,
		limits:       cfg.PerWindow,
		defaultLimit: defaultLimit,
		window:       window,
		enabled:      cfg.Enabled,
	}
}

// Limit returns the per-window budget for a database.
func (l *Limiter) Limit(database domain.Database) int {
	if limit, ok := l.limits[database]; ok && limit > 0 {
		return limit
	}
	return l.defaultLimit
}

// Wait blocks until the database's current window has budget for one
// more request, then consumes it. Counter failures do not block the
// caller; pacing is a courtesy to the upstream, not a correctness
// requirement.
func (l *Limiter) Wait(ctx context.Context, database domain.Database) error {
	if !l.enabled || l.cache == nil {
		return nil
	}

	limit := l.Limit(database)

	// Spacing between retries when the window is saturated.
	retryDelay := l.window / time.Duration(limit)
	if retryDelay < minRetryDelay {
		retryDelay = minRetryDelay
	}

	for {
		count, err := l.cache.IncrementCounter(ctx, string(database), counterKey, l.window)
		if err != nil {
			slog.Warn("rate limit counter unavailable, proceeding",
				"database", database,
				"error", err)
			return nil
		}

		if count <= int64(limit) {
			return nil
		}

		timer := time.NewTimer(retryDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
