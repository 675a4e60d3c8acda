package domain

import (
	"context"
	"time"
)

// Cache defines the interface for caching normalized results.
// Supports two-phase caching: local LRU (standalone) + Redis (cluster).
// All methods take the database name as the key namespace.
type Cache interface {
	// Get retrieves a value from cache.
	// Returns nil, nil if key not found.
	Get(ctx context.Context, database string, key string) ([]byte, error)

	// Set stores a value in cache. A zero ttl means the entry never
	// expires; result entries are immutable once written and staleness
	// is accepted.
	Set(ctx context.Context, database string, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from cache.
	Delete(ctx context.Context, database string, key string) error

	// GetResult retrieves a cached normalized result by fingerprint.
	// Returns nil, nil on a miss.
	GetResult(ctx context.Context, database string, fingerprint string) (*Result, error)

	// SetResult caches a normalized result under its fingerprint.
	SetResult(ctx context.Context, database string, fingerprint string, result *Result, ttl time.Duration) error

	// IncrementCounter atomically increments a counter and returns the new
	// value. Used for per-database request pacing windows.
	IncrementCounter(ctx context.Context, database string, key string, window time.Duration) (int64, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// CacheConfig holds configuration for cache initialization.
type CacheConfig struct {
	// Type is the cache type: "memory" or "redis"
	Type string

	// Local LRU cache settings (standalone profile)
	LocalMaxSize int

	// Redis settings (cluster profile)
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Two-phase settings
	EnableTwoPhase bool // If true, check local first, then Redis
}
