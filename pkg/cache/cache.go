package cache

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/fedbroker/fedbroker/pkg/observability"
)

// ErrCacheMiss is returned when no tier holds the key.
var ErrCacheMiss = errors.New("cache miss")

// Cache is a byte-value cache with TTL semantics.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// TieredCache fronts an optional Redis tier with an in-process LRU. Reads
// check the LRU first and backfill it on a Redis hit. Writes and deletes go
// to both tiers.
type TieredCache struct {
	local   *lru.LRU[string, []byte]
	redis   *redis.Client
	ttl     time.Duration
	metrics *observability.Metrics
}

// Option configures a TieredCache.
type Option func(*TieredCache)

// WithRedis adds a Redis tier behind the local LRU.
func WithRedis(client *redis.Client) Option {
	return func(c *TieredCache) {
		c.redis = client
	}
}

// WithMetrics records hits and misses per tier.
func WithMetrics(m *observability.Metrics) Option {
	return func(c *TieredCache) {
		c.metrics = m
	}
}

// New creates a TieredCache holding at most maxEntries local entries, each
// expiring after ttl.
func New(maxEntries int, ttl time.Duration, opts ...Option) *TieredCache {
	c := &TieredCache{
		local: lru.NewLRU[string, []byte](maxEntries, nil, ttl),
		ttl:   ttl,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the cached value for key, or ErrCacheMiss.
func (c *TieredCache) Get(ctx context.Context, key string) ([]byte, error) {
	if value, ok := c.local.Get(key); ok {
		c.recordHit("local")
		return value, nil
	}
	c.recordMiss("local")

	if c.redis == nil {
		return nil, ErrCacheMiss
	}

	value, err := c.redis.Get(ctx, key).Bytes()
	if err == redis.Nil {
		c.recordMiss("redis")
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, err
	}

	c.recordHit("redis")
	c.local.Add(key, value)
	return value, nil
}

// Set stores the value in all tiers.
func (c *TieredCache) Set(ctx context.Context, key string, value []byte) error {
	c.local.Add(key, value)
	if c.redis != nil {
		return c.redis.Set(ctx, key, value, c.ttl).Err()
	}
	return nil
}

// Delete removes the key from all tiers.
func (c *TieredCache) Delete(ctx context.Context, key string) error {
	c.local.Remove(key)
	if c.redis != nil {
		return c.redis.Del(ctx, key).Err()
	}
	return nil
}

func (c *TieredCache) recordHit(tier string) {
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.WithLabelValues(tier).Inc()
	}
}

func (c *TieredCache) recordMiss(tier string) {
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.WithLabelValues(tier).Inc()
	}
}
