// Package cache holds recently computed engine results in memory, keyed by
// the canonical parameter key. The engine is deterministic for a fixed
// parameter set, so a cached result within the TTL is as good as a fresh
// call and saves a round trip to an expensive service.
package cache

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/etcbridge/etcbridge/pkg/engine"
	"github.com/etcbridge/etcbridge/pkg/etc"
)

// Entry is a cached engine result together with the time it was stored.
type Entry struct {
	Result   *etc.Result
	StoredAt time.Time
}

// Cache is a thread-safe in-memory result cache. A background goroutine
// (Run) periodically evicts entries older than the TTL.
type Cache struct {
	mu   sync.RWMutex
	data map[string]*Entry
	ttl  time.Duration
	now  func() time.Time // injectable for deterministic tests

	hits   uint64
	misses uint64
}

// Stats is a point-in-time view of cache effectiveness.
type Stats struct {
	Entries int    `json:"entries"`
	Hits    uint64 `json:"hits"`
	Misses  uint64 `json:"misses"`
}

// New creates a Cache with the given TTL.
func New(ttl time.Duration) *Cache {
	return &Cache{
		data: make(map[string]*Entry),
		ttl:  ttl,
		now:  time.Now,
	}
}

// Put stores or replaces the result for key.
// Callers must not modify res after calling Put.
func (c *Cache) Put(key string, res *etc.Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = &Entry{Result: res, StoredAt: c.now()}
}

// Get returns the cached result for key if one exists and is within the TTL.
func (c *Cache) Get(key string) (*etc.Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.data[key]
	if !ok || !e.StoredAt.After(c.now().Add(-c.ttl)) {
		c.misses++
		return nil, false
	}
	c.hits++
	return e.Result, true
}

// Stats returns current entry count and hit/miss counters.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Stats{Entries: len(c.data), Hits: c.hits, Misses: c.misses}
}

// Evict removes entries older than now minus TTL and returns the count removed.
func (c *Cache) Evict(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	cutoff := now.Add(-c.ttl)
	removed := 0
	for key, e := range c.data {
		if !e.StoredAt.After(cutoff) {
			delete(c.data, key)
			removed++
		}
	}
	return removed
}

// Run starts the background TTL eviction loop. It ticks at half the TTL
// interval (minimum 1 second) and blocks until ctx is cancelled.
func (c *Cache) Run(ctx context.Context) {
	interval := c.ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			if n := c.Evict(now); n > 0 {
				slog.Debug("cache: evicted stale results", "count", n)
			}
		}
	}
}

// cachingEngine serves repeated parameter sets from the cache and delegates
// everything else to the wrapped engine.
type cachingEngine struct {
	inner engine.Engine
	cache *Cache
}

// Wrap returns an engine that consults the cache before calling inner.
// A non-positive TTL disables caching and returns inner unchanged.
func Wrap(inner engine.Engine, c *Cache) engine.Engine {
	if c == nil || c.ttl <= 0 {
		return inner
	}
	return &cachingEngine{inner: inner, cache: c}
}

func (e *cachingEngine) Calculate(ctx context.Context, p etc.ParamSet) (*etc.Result, error) {
	key := p.Key()
	if res, ok := e.cache.Get(key); ok {
		return res, nil
	}

	res, err := e.inner.Calculate(ctx, p)
	if err != nil {
		return nil, err
	}
	e.cache.Put(key, res)
	return res, nil
}
