package dashboard

import (
	"sync"
	"time"
)

// AggregateCache keeps computed aggregates in memory for a bounded time.
// Invalidate bumps a generation counter so values computed before the
// invalidation are never stored afterwards.
type AggregateCache struct {
	mu         sync.RWMutex
	data       map[string]cacheEntry
	ttl        time.Duration
	generation uint64
	now        func() time.Time

	hits   uint64
	misses uint64

	cleanup *time.Ticker
	done    chan struct{}
	stop    sync.Once
}

type cacheEntry struct {
	value      any
	expiration time.Time
}

// CacheStats summarises cache effectiveness
type CacheStats struct {
	Size    int     `json:"size"`
	Hits    uint64  `json:"hits"`
	Misses  uint64  `json:"misses"`
	HitRate float64 `json:"hit_rate"`
}

// NewAggregateCache creates a cache whose entries live for ttl. A zero ttl
// disables caching.
func NewAggregateCache(ttl time.Duration) *AggregateCache {
	cache := &AggregateCache{
		data:    make(map[string]cacheEntry),
		ttl:     ttl,
		now:     time.Now,
		cleanup: time.NewTicker(time.Minute),
		done:    make(chan struct{}),
	}
	go cache.cleanupLoop()
	return cache
}

// Get returns an unexpired value
func (c *AggregateCache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.data[key]
	if !ok || c.now().After(entry.expiration) {
		c.misses++
		return nil, false
	}
	c.hits++
	return entry.value, true
}

// Set stores a value under key
func (c *AggregateCache) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setLocked(key, value)
}

func (c *AggregateCache) setLocked(key string, value any) {
	if c.ttl <= 0 {
		return
	}
	c.data[key] = cacheEntry{value: value, expiration: c.now().Add(c.ttl)}
}

// GetOrCompute returns the cached value or computes and stores it. A value
// whose computation overlapped an invalidation is returned but not cached.
func (c *AggregateCache) GetOrCompute(key string, compute func() (any, error)) (any, error) {
	if value, ok := c.Get(key); ok {
		return value, nil
	}

	c.mu.RLock()
	generation := c.generation
	c.mu.RUnlock()

	value, err := compute()
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.generation == generation {
		c.setLocked(key, value)
	}
	c.mu.Unlock()
	return value, nil
}

// Invalidate drops every entry
func (c *AggregateCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.generation++
	c.data = make(map[string]cacheEntry)
}

// Stats returns hit and miss counters
func (c *AggregateCache) Stats() CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := CacheStats{Size: len(c.data), Hits: c.hits, Misses: c.misses}
	if total := c.hits + c.misses; total > 0 {
		stats.HitRate = float64(c.hits) / float64(total)
	}
	return stats
}

func (c *AggregateCache) cleanupLoop() {
	for {
		select {
		case <-c.cleanup.C:
			c.removeExpired()
		case <-c.done:
			return
		}
	}
}

func (c *AggregateCache) removeExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for key, entry := range c.data {
		if now.After(entry.expiration) {
			delete(c.data, key)
		}
	}
}

// Stop ends the background cleanup
func (c *AggregateCache) Stop() {
	c.stop.Do(func() {
		c.cleanup.Stop()
		close(c.done)
	})
}
