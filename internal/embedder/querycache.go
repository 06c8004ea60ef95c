package embedder

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

// QueryCache memoizes question embeddings by normalized question for the
// lifetime of the process. Entries never expire.
//
// Concurrent misses on one key share a single provider call. A failed call is
// not cached, so the next request retries.
type QueryCache struct {
	mu      sync.RWMutex
	entries map[string][]float32
	group   singleflight.Group

	hits   atomic.Int64
	misses atomic.Int64
}

// NewQueryCache creates an empty cache
func NewQueryCache() *QueryCache {
	return &QueryCache{
		entries: make(map[string][]float32),
	}
}

// Get returns a copy of the vector stored under key
func (c *QueryCache) Get(key string) ([]float32, bool) {
	c.mu.RLock()
	vec, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return copyVector(vec), true
}

// Put stores a copy of vec under key. Last writer wins.
func (c *QueryCache) Put(key string, vec []float32) {
	stored := copyVector(vec)
	c.mu.Lock()
	c.entries[key] = stored
	c.mu.Unlock()
}

// GetOrCompute returns the cached vector for key, or calls compute and stores
// its result. The boolean reports a cache hit.
func (c *QueryCache) GetOrCompute(ctx context.Context, key string, compute func(ctx context.Context) ([]float32, error)) ([]float32, bool, error) {
	if vec, ok := c.Get(key); ok {
		c.hits.Add(1)
		return vec, true, nil
	}

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		// Another flight may have finished between Get and Do
		if vec, ok := c.Get(key); ok {
			return vec, nil
		}
		c.misses.Add(1)
		vec, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		c.Put(key, vec)
		return vec, nil
	})
	if err != nil {
		return nil, false, err
	}

	return copyVector(v.([]float32)), false, nil
}

// Len returns the number of cached questions
func (c *QueryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stats returns hit and miss counters
func (c *QueryCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}
