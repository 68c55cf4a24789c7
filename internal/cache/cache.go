// Package cache is a read-through cache over Redis for list/detail reads.
// It is advisory only: every method degrades to the underlying compute on
// any Redis failure, and nothing in the booking validation path consults
// it. Invalidation is explicit and issued by the scheduling service after
// writes.
package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Dharmendra-07/Hospital-Management-System-V2/internal/stats"
)

type Cache struct {
	client *redis.Client
	ttl    time.Duration
	log    zerolog.Logger
}

func New(client *redis.Client, defaultTTL time.Duration, log zerolog.Logger) *Cache {
	return &Cache{
		client: client,
		ttl:    defaultTTL,
		log:    log.With().Str("component", "cache").Logger(),
	}
}

// GetOrCompute returns the cached bytes for key, or runs compute and
// stores the result with the given TTL (ttl <= 0 uses the default).
func (c *Cache) GetOrCompute(ctx context.Context, key string, ttl time.Duration, compute func(ctx context.Context) ([]byte, error)) ([]byte, error) {
	if ttl <= 0 {
		ttl = c.ttl
	}

	val, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		stats.AddCacheHit(ctx)
		return val, nil
	}
	if err != redis.Nil {
		c.log.Warn().Err(err).Str("key", key).Msg("cache read failed, computing directly")
	}
	stats.AddCacheMiss(ctx)

	out, err := compute(ctx)
	if err != nil {
		return nil, err
	}

	if err := c.client.Set(ctx, key, out, ttl).Err(); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("cache write failed")
	}

	return out, nil
}

// Invalidate removes all keys matching the given patterns. Failures are
// logged and swallowed; a stale list view is acceptable, a failed booking
// is not.
func (c *Cache) Invalidate(ctx context.Context, patterns ...string) {
	for _, pattern := range patterns {
		iter := c.client.Scan(ctx, 0, pattern, 100).Iterator()
		for iter.Next(ctx) {
			if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
				c.log.Warn().Err(err).Str("key", iter.Val()).Msg("cache delete failed")
			}
		}
		if err := iter.Err(); err != nil {
			c.log.Warn().Err(err).Str("pattern", pattern).Msg("cache scan failed")
		}
	}
}
