// Package cache provides a time-bucketed memoizing cache. All lookups for a
// key within one ttl-wide bucket share a single computed value; a new bucket
// invalidates unconditionally. Concurrent callers for the same key and bucket
// collapse into one producer invocation.
package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

const defaultMaxEntries = 1024

// Metrics receives cache outcome notifications. Implementations must be nil-safe
// to pass through; a nil Metrics disables reporting.
type Metrics interface {
	CacheHit()
	CacheMiss()
}

type entry struct {
	bucket int64
	ttl    time.Duration
	value  any
}

// Cache memoizes producer results per (key, time bucket).
type Cache struct {
	mu         sync.RWMutex
	entries    map[string]entry
	group      singleflight.Group
	now        func() time.Time
	maxEntries int
	metrics    Metrics
}

// Option customises a Cache.
type Option func(*Cache)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithMaxEntries bounds the entry map; stale-bucket entries are swept when the
// bound is reached.
func WithMaxEntries(n int) Option {
	return func(c *Cache) {
		if n > 0 {
			c.maxEntries = n
		}
	}
}

// WithMetrics wires a hit/miss reporter.
func WithMetrics(m Metrics) Option {
	return func(c *Cache) { c.metrics = m }
}

// New creates an empty cache.
func New(opts ...Option) *Cache {
	c := &Cache{
		entries:    make(map[string]entry),
		now:        time.Now,
		maxEntries: defaultMaxEntries,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func bucketIndex(now time.Time, ttl time.Duration) int64 {
	return now.UnixNano() / int64(ttl)
}

// GetOrCompute returns the cached value for key in the current bucket, invoking
// produce at most once per bucket. Producer failures are not cached: every call
// after a failed one retries, and concurrent callers of the failed flight share
// its error.
func (c *Cache) GetOrCompute(ctx context.Context, key string, ttl time.Duration, produce func(ctx context.Context) (any, error)) (any, error) {
	if ttl <= 0 {
		return produce(ctx)
	}

	bucket := bucketIndex(c.now(), ttl)

	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if ok && e.bucket == bucket {
		if c.metrics != nil {
			c.metrics.CacheHit()
		}
		return e.value, nil
	}

	// Bucket index is part of the flight key so a fresh bucket never joins an
	// in-flight computation of a stale one.
	flightKey := fmt.Sprintf("%s@%d", key, bucket)
	v, err, _ := c.group.Do(flightKey, func() (any, error) {
		c.mu.RLock()
		e, ok := c.entries[key]
		c.mu.RUnlock()
		if ok && e.bucket == bucket {
			return e.value, nil
		}

		if c.metrics != nil {
			c.metrics.CacheMiss()
		}
		val, err := produce(ctx)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		if len(c.entries) >= c.maxEntries {
			c.sweepLocked()
		}
		c.entries[key] = entry{bucket: bucket, ttl: ttl, value: val}
		c.mu.Unlock()
		return val, nil
	})
	if err != nil {
		return nil, err
	}
	return v, nil
}

// Clear drops all cached entries.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]entry)
	c.mu.Unlock()
}

// Len reports the number of stored entries, stale buckets included.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *Cache) sweepLocked() {
	now := c.now()
	for k, e := range c.entries {
		if e.bucket != bucketIndex(now, e.ttl) {
			delete(c.entries, k)
		}
	}
}
