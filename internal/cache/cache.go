package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/openbioscience/finch/internal/domain"
)

// New creates a new cache based on configuration.
// Standalone profile: returns LRU cache.
// Cluster profile with two-phase: returns TwoPhaseCache wrapping LRU + Redis.
// Cluster profile without two-phase: returns Redis cache.
func New(cfg domain.CacheConfig) (domain.Cache, error) {
	switch cfg.Type {
	case "memory":
		return NewLRUCache(cfg.LocalMaxSize), nil

	case "redis":
		if cfg.EnableTwoPhase {
			return NewTwoPhaseCache(cfg)
		}
		return NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)

	default:
		return nil, fmt.Errorf("unsupported cache type: %s", cfg.Type)
	}
}

// defaultL1TTL bounds how long the local layer serves an entry before
// re-reading it from Redis.
const defaultL1TTL = 5 * time.Minute

// TwoPhaseCache implements the two-phase caching strategy.
// L1: Local LRU cache for fast reads
// L2: Redis for distributed caching and persistence across restarts
type TwoPhaseCache struct {
	local  *LRUCache
	remote *RedisCache
	l1TTL  time.Duration
}

// NewTwoPhaseCache creates a two-phase cache with LRU + Redis.
func NewTwoPhaseCache(cfg domain.CacheConfig) (*TwoPhaseCache, error) {
	local := NewLRUCache(cfg.LocalMaxSize)

	remote, err := NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return nil, fmt.Errorf("failed to create redis cache: %w", err)
	}

	return &TwoPhaseCache{
		local:  local,
		remote: remote,
		l1TTL:  defaultL1TTL,
	}, nil
}

// Get retrieves from L1 first, then L2. Populates L1 on L2 hit.
func (c *TwoPhaseCache) Get(ctx context.Context, database string, key string) ([]byte, error) {
	// Check L1 first
	val, err := c.local.Get(ctx, database, key)
	if err != nil {
		return nil, err
	}
	if val != nil {
		return val, nil
	}

	// Check L2
	val, err = c.remote.Get(ctx, database, key)
	if err != nil {
		return nil, err
	}
	if val != nil {
		// Populate L1 for future reads
		_ = c.local.Set(ctx, database, key, val, c.l1TTL)
	}

	return val, nil
}

// Set writes to both L1 and L2.
func (c *TwoPhaseCache) Set(ctx context.Context, database string, key string, value []byte, ttl time.Duration) error {
	// Write to L1 with the shorter TTL
	l1TTL := c.l1TTL
	if ttl > 0 && ttl < l1TTL {
		l1TTL = ttl
	}
	if err := c.local.Set(ctx, database, key, value, l1TTL); err != nil {
		return err
	}

	// Write to L2 with the full TTL
	return c.remote.Set(ctx, database, key, value, ttl)
}

// Delete removes from both L1 and L2.
func (c *TwoPhaseCache) Delete(ctx context.Context, database string, key string) error {
	if err := c.local.Delete(ctx, database, key); err != nil {
		return err
	}
	return c.remote.Delete(ctx, database, key)
}

// GetResult retrieves a cached normalized result by fingerprint.
func (c *TwoPhaseCache) GetResult(ctx context.Context, database string, fingerprint string) (*domain.Result, error) {
	// Check L1 first
	result, err := c.local.GetResult(ctx, database, fingerprint)
	if err != nil {
		return nil, err
	}
	if result != nil {
		return result, nil
	}

	// Check L2
	result, err = c.remote.GetResult(ctx, database, fingerprint)
	if err != nil {
		return nil, err
	}
	if result != nil {
		// Populate L1
		_ = c.local.SetResult(ctx, database, fingerprint, result, c.l1TTL)
	}

	return result, nil
}

// SetResult caches a normalized result in both L1 and L2.
func (c *TwoPhaseCache) SetResult(ctx context.Context, database string, fingerprint string, result *domain.Result, ttl time.Duration) error {
	l1TTL := c.l1TTL
	if ttl > 0 && ttl < l1TTL {
		l1TTL = ttl
	}
	if err := c.local.SetResult(ctx, database, fingerprint, result, l1TTL); err != nil {
		return err
	}
	return c.remote.SetResult(ctx, database, fingerprint, result, ttl)
}

// IncrementCounter uses Redis for distributed atomic counters.
// L1 is not used for counters to ensure accuracy across nodes.
func (c *TwoPhaseCache) IncrementCounter(ctx context.Context, database string, key string, window time.Duration) (int64, error) {
	return c.remote.IncrementCounter(ctx, database, key, window)
}

// Ping checks both L1 and L2 health.
func (c *TwoPhaseCache) Ping(ctx context.Context) error {
	if err := c.local.Ping(ctx); err != nil {
		return fmt.Errorf("L1 ping failed: %w", err)
	}
	if err := c.remote.Ping(ctx); err != nil {
		return fmt.Errorf("L2 ping failed: %w", err)
	}
	return nil
}

// Close closes both L1 and L2.
func (c *TwoPhaseCache) Close() error {
	_ = c.local.Close()
	return c.remote.Close()
}

// Stats returns L1 cache statistics.
func (c *TwoPhaseCache) Stats() (size int, capacity int) {
	return c.local.Stats()
}
