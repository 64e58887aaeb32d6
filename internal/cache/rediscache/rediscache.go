// Package rediscache provides a Redis-backed repository.Cache for
// multi-node deployments, adapted from a cache/redis package.
package rediscache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/prn-tf/repstore/internal/config"
	"github.com/prn-tf/repstore/internal/repository"
)

const defaultCacheTTL = 5 * time.Minute

// Client wraps a go-redis client shared by Cache and redislock.Locker.
type Client struct {
	raw    *redis.Client
	logger zerolog.Logger
}

// NewClient dials Redis and verifies the connection with a ping.
func NewClient(ctx context.Context, cfg config.RedisConfig, logger zerolog.Logger) (*Client, error) {
	raw := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr(),
		Password:    cfg.Password,
		DB:          cfg.DB,
		PoolSize:    cfg.PoolSize,
		DialTimeout: cfg.DialTimeout,
	})

	if err := raw.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	logger.Info().Str("addr", cfg.Addr()).Int("db", cfg.DB).Msg("connected to Redis")
	return &Client{raw: raw, logger: logger}, nil
}

// Raw exposes the underlying go-redis client for redislock.
func (c *Client) Raw() *redis.Client { return c.raw }

// Close closes the Redis connection.
func (c *Client) Close() error {
	c.logger.Info().Msg("closing Redis connection")
	return c.raw.Close()
}

// Health pings Redis.
func (c *Client) Health(ctx context.Context) error {
	return c.raw.Ping(ctx).Err()
}

// Cache implements repository.Cache using Redis.
type Cache struct {
	client *Client
	ttl    time.Duration
}

// NewCache wraps client with a default TTL applied whenever Set is called
// with ttl <= 0.
func NewCache(client *Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &Cache{client: client, ttl: ttl}
}

// Get retrieves a value from the cache.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := c.client.raw.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, repository.ErrCacheMiss
		}
		return nil, fmt.Errorf("failed to get from cache: %w", err)
	}
	return val, nil
}

// Set stores a value in the cache.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.ttl
	}
	if err := c.client.raw.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set in cache: %w", err)
	}
	return nil
}

// Delete removes a value from the cache.
func (c *Cache) Delete(ctx context.Context, key string) error {
	if err := c.client.raw.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to delete from cache: %w", err)
	}
	return nil
}

// Exists reports whether key currently has a cached value.
func (c *Cache) Exists(ctx context.Context, key string) (bool, error) {
	n, err := c.client.raw.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check cache key: %w", err)
	}
	return n > 0, nil
}

// DeletePattern removes all keys matching pattern, used to invalidate a
// rep's cached ranges once it is deltified or deleted.
func (c *Cache) DeletePattern(ctx context.Context, pattern string) error {
	iter := c.client.raw.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		if err := c.client.raw.Del(ctx, iter.Val()).Err(); err != nil {
			c.client.logger.Warn().Err(err).Str("key", iter.Val()).Msg("failed to delete key")
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan cache: %w", err)
	}
	return nil
}

// RangeKey returns the cache key for a reconstructed byte range of a rep.
func RangeKey(repKey string, offset int64, length int) string {
	return fmt.Sprintf("rng:%s:%d:%d", repKey, offset, length)
}

var _ repository.Cache = (*Cache)(nil)
