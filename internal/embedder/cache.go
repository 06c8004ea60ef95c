package embedder

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// Cache is a provider-level LRU of embeddings keyed by model and content
// hash. It sits below the QueryCache and also serves indexing.
type Cache struct {
	entries *lru.Cache[string, Embedding]
}

// NewCache returns an LRU holding at most maxLen embeddings. A non-positive
// maxLen selects DefaultCacheSize.
func NewCache(maxLen int) *Cache {
	if maxLen <= 0 {
		maxLen = DefaultCacheSize
	}
	entries, err := lru.New[string, Embedding](maxLen)
	if err != nil {
		entries, _ = lru.New[string, Embedding](DefaultCacheSize)
	}
	return &Cache{entries: entries}
}

// Get hands out a private copy of the vector
func (c *Cache) Get(model, text string) (*Embedding, bool) {
	emb, ok := c.entries.Get(cacheKey(model, text))
	if !ok {
		return nil, false
	}
	emb.Vector = copyVector(emb.Vector)
	return &emb, true
}

func (c *Cache) Set(model, text string, emb *Embedding) {
	stored := *emb
	stored.Vector = copyVector(emb.Vector)
	c.entries.Add(cacheKey(model, text), stored)
}

func cacheKey(model, text string) string {
	return model + ":" + ComputeHash(text)
}

func copyVector(v []float32) []float32 {
	if v == nil {
		return nil
	}
	out := make([]float32, len(v))
	copy(out, v)
	return out
}
