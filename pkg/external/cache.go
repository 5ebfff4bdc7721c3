package external

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/yuanqi-assessment-server/internal/domain"
)

// CacheClient wraps a Redis client with a JSON envelope cache
type CacheClient struct {
	redis      *redis.Client
	defaultTTL time.Duration
}

// NewCacheClient creates a new cache client
func NewCacheClient(config domain.CacheConfig) (*CacheClient, error) {
	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	if config.PoolSize > 0 {
		opts.PoolSize = config.PoolSize
	}
	if config.PoolTimeout > 0 {
		opts.PoolTimeout = config.PoolTimeout
	}
	opts.MaxRetries = config.MaxRetries

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewCacheClientFromRedis(client, config.DefaultTTL), nil
}

// NewCacheClientFromRedis wraps an existing client
func NewCacheClientFromRedis(client *redis.Client, defaultTTL time.Duration) *CacheClient {
	if defaultTTL <= 0 {
		defaultTTL = time.Hour
	}
	return &CacheClient{redis: client, defaultTTL: defaultTTL}
}

// cachedEnvelope represents cached data with metadata
type cachedEnvelope struct {
	Data      json.RawMessage `json:"data"`
	CachedAt  time.Time       `json:"cached_at"`
	ExpiresAt time.Time       `json:"expires_at"`
}

// Key joins key parts with ':'
func Key(parts ...string) string {
	return strings.Join(parts, ":")
}

// GetJSON decodes the cached value for key into dest. A corrupted or expired entry is removed
// and reported as a miss.
func (c *CacheClient) GetJSON(ctx context.Context, key string, dest interface{}) (bool, error) {
	val, err := c.redis.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get cache entry %s: %w", key, err)
	}

	var cached cachedEnvelope
	if err := json.Unmarshal(val, &cached); err != nil {
		c.redis.Del(ctx, key)
		return false, nil
	}

	if time.Now().After(cached.ExpiresAt) {
		c.redis.Del(ctx, key)
		return false, nil
	}

	if err := json.Unmarshal(cached.Data, dest); err != nil {
		c.redis.Del(ctx, key)
		return false, nil
	}

	return true, nil
}

// SetJSON caches value under key. A zero ttl uses the default.
func (c *CacheClient) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache data: %w", err)
	}

	now := time.Now()
	envelope, err := json.Marshal(cachedEnvelope{
		Data:      data,
		CachedAt:  now,
		ExpiresAt: now.Add(ttl),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal cache envelope: %w", err)
	}

	return c.redis.Set(ctx, key, envelope, ttl).Err()
}

// Delete removes keys
func (c *CacheClient) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return c.redis.Del(ctx, keys...).Err()
}

// InvalidatePattern removes all cached data matching a pattern
func (c *CacheClient) InvalidatePattern(ctx context.Context, pattern string) error {
	var keys []string
	iter := c.redis.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan keys for pattern %s: %w", pattern, err)
	}

	return c.Delete(ctx, keys...)
}

// PoolStats returns connection pool statistics
func (c *CacheClient) PoolStats() *redis.PoolStats {
	return c.redis.PoolStats()
}

// Ping checks if Redis connection is alive
func (c *CacheClient) Ping(ctx context.Context) error {
	return c.redis.Ping(ctx).Err()
}

// Close closes the Redis connection
func (c *CacheClient) Close() error {
	return c.redis.Close()
}
