package cache

import (
	"context"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"github.com/openbioscience/finch/internal/domain"
)

// RedisCache implements Cache using Redis.
// Used as the cluster-profile cache and as L2 in two-phase caching; entries
// written without a TTL persist across process restarts.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache creates a new Redis cache.
func NewRedisCache(addr, password string, db int) (*RedisCache, error) {
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisCache{client: client}, nil
}

// Get retrieves a value from Redis.
func (c *RedisCache) Get(ctx context.Context, database string, key string) ([]byte, error) {
	if database == "" {
		return nil, fmt.Errorf("database is required")
	}

	fullKey := c.makeKey(database, key)
	val, err := c.client.Get(ctx, fullKey).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return val, nil
}

// Set stores a value in Redis. A zero ttl stores without expiry.
func (c *RedisCache) Set(ctx context.Context, database string, key string, value []byte, ttl time.Duration) error {
	if database == "" {
		return fmt.Errorf("database is required")
	}

	if ttl < 0 {
		ttl = 0
	}
	fullKey := c.makeKey(database, key)
	return c.client.Set(ctx, fullKey, value, ttl).Err()
}

// Delete removes a value from Redis.
func (c *RedisCache) Delete(ctx context.Context, database string, key string) error {
	if database == "" {
		return fmt.Errorf("database is required")
	}

	fullKey := c.makeKey(database, key)
	return c.client.Del(ctx, fullKey).Err()
}

// GetResult retrieves a cached normalized result by fingerprint.
func (c *RedisCache) GetResult(ctx context.Context, database string, fingerprint string) (*domain.Result, error) {
	data, err := c.Get(ctx, database, "result:"+fingerprint)
	if err != nil || data == nil {
		return nil, err
	}

	var result domain.Result
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// SetResult caches a normalized result under its fingerprint.
func (c *RedisCache) SetResult(ctx context.Context, database string, fingerprint string, result *domain.Result, ttl time.Duration) error {
	bytes, err := json.Marshal(result)
	if err != nil {
		return err
	}
	return c.Set(ctx, database, "result:"+fingerprint, bytes, ttl)
}

// IncrementCounter atomically increments a counter using Redis INCR with EXPIRE.
func (c *RedisCache) IncrementCounter(ctx context.Context, database string, key string, window time.Duration) (int64, error) {
	if database == "" {
		return 0, fmt.Errorf("database is required")
	}

	fullKey := c.makeKey(database, "counter:"+key)

	// Use Lua script for atomic increment with TTL
	script := redis.NewScript(`
		local current = redis.call('INCR', KEYS[1])
		if current == 1 then
			redis.call('PEXPIRE', KEYS[1], ARGV[1])
		end
		return current
	`)

	result, err := script.Run(ctx, c.client, []string{fullKey}, window.Milliseconds()).Int64()
	if err != nil {
		return 0, err
	}

	return result, nil
}

// Ping checks Redis connectivity.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

func (c *RedisCache) makeKey(database, key string) string {
	return "finch:" + database + ":" + key
}
