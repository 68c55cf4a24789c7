// Package stats carries request-scoped observability counters. A counter
// set is attached to the request context by middleware and incremented by
// the repository and cache layers; it is read back once when the request
// log line is written. Nothing here is global.
package stats

import (
	"context"
	"sync/atomic"
)

type contextKey struct{}

// Counters accumulates per-request work. Safe for concurrent use since a
// single request may fan out queries.
type Counters struct {
	queries     atomic.Int64
	cacheHits   atomic.Int64
	cacheMisses atomic.Int64
}

func (c *Counters) Queries() int64     { return c.queries.Load() }
func (c *Counters) CacheHits() int64   { return c.cacheHits.Load() }
func (c *Counters) CacheMisses() int64 { return c.cacheMisses.Load() }

// WithCounters returns a context carrying a fresh counter set.
func WithCounters(ctx context.Context) (context.Context, *Counters) {
	c := &Counters{}
	return context.WithValue(ctx, contextKey{}, c), c
}

// FromContext returns the counters attached to ctx, or nil.
func FromContext(ctx context.Context) *Counters {
	c, _ := ctx.Value(contextKey{}).(*Counters)
	return c
}

func AddQuery(ctx context.Context) {
	if c := FromContext(ctx); c != nil {
		c.queries.Add(1)
	}
}

func AddCacheHit(ctx context.Context) {
	if c := FromContext(ctx); c != nil {
		c.cacheHits.Add(1)
	}
}

func AddCacheMiss(ctx context.Context) {
	if c := FromContext(ctx); c != nil {
		c.cacheMisses.Add(1)
	}
}
