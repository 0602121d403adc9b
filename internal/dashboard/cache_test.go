package dashboard

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T, ttl time.Duration) (*AggregateCache, *time.Time) {
	t.Helper()
	cache := NewAggregateCache(ttl)
	t.Cleanup(cache.Stop)

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }
	return cache, &now
}

func TestAggregateCacheExpiry(t *testing.T) {
	cache, now := newTestCache(t, time.Minute)

	cache.Set("stats", 42)
	value, ok := cache.Get("stats")
	require.True(t, ok)
	assert.Equal(t, 42, value)

	*now = now.Add(2 * time.Minute)
	_, ok = cache.Get("stats")
	assert.False(t, ok)

	stats := cache.Stats()
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
	assert.InDelta(t, 0.5, stats.HitRate, 0.0001)
}

func TestAggregateCacheGetOrCompute(t *testing.T) {
	cache, _ := newTestCache(t, time.Minute)

	calls := 0
	compute := func() (any, error) {
		calls++
		return calls, nil
	}

	first, err := cache.GetOrCompute("stats", compute)
	require.NoError(t, err)
	second, err := cache.GetOrCompute("stats", compute)
	require.NoError(t, err)

	assert.Equal(t, 1, first)
	assert.Equal(t, 1, second)
	assert.Equal(t, 1, calls)

	cache.Invalidate()
	third, err := cache.GetOrCompute("stats", compute)
	require.NoError(t, err)
	assert.Equal(t, 2, third)
}

func TestAggregateCacheComputeError(t *testing.T) {
	cache, _ := newTestCache(t, time.Minute)

	_, err := cache.GetOrCompute("stats", func() (any, error) {
		return nil, errors.New("boom")
	})
	assert.EqualError(t, err, "boom")
	assert.Equal(t, 0, cache.Stats().Size)
}

func TestAggregateCacheSkipsValueComputedAcrossInvalidation(t *testing.T) {
	cache, _ := newTestCache(t, time.Minute)

	value, err := cache.GetOrCompute("stats", func() (any, error) {
		cache.Invalidate()
		return "stale", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "stale", value)

	_, ok := cache.Get("stats")
	assert.False(t, ok)
}

func TestAggregateCacheZeroTTLDisablesCaching(t *testing.T) {
	cache, _ := newTestCache(t, 0)

	cache.Set("stats", 1)
	_, ok := cache.Get("stats")
	assert.False(t, ok)
}
