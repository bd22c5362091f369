package embed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultEmbeddingCacheSize is the default number of embeddings to cache.
// At 768 dimensions * 4 bytes * 1000 entries that is about 3MB.
const DefaultEmbeddingCacheSize = 1000

// CachedClient wraps a Client with an LRU cache. Repeated search queries and
// unchanged chunks of a re-indexed note are served from memory.
type CachedClient struct {
	inner Client
	cache *lru.Cache[string, []float32]
}

var _ Client = (*CachedClient)(nil)

// NewCachedClient creates a cached client wrapping inner.
func NewCachedClient(inner Client, cacheSize int) *CachedClient {
	if cacheSize <= 0 {
		cacheSize = DefaultEmbeddingCacheSize
	}
	cache, _ := lru.New[string, []float32](cacheSize)
	return &CachedClient{
		inner: inner,
		cache: cache,
	}
}

// cacheKey hashes text together with the model ID.
func (c *CachedClient) cacheKey(text string) string {
	combined := text + "\x00" + c.inner.ID()
	hash := sha256.Sum256([]byte(combined))
	return hex.EncodeToString(hash[:])
}

// GetEmbedding returns the cached embedding if available, otherwise computes
// and caches it. Errors are never cached.
func (c *CachedClient) GetEmbedding(ctx context.Context, text string) ([]float32, error) {
	key := c.cacheKey(text)

	if vec, ok := c.cache.Get(key); ok {
		return vec, nil
	}

	vec, err := c.inner.GetEmbedding(ctx, text)
	if err != nil {
		return nil, err
	}

	c.cache.Add(key, vec)
	return vec, nil
}

// ID returns the inner model ID.
func (c *CachedClient) ID() string {
	return c.inner.ID()
}

// Dimension returns the inner dimension.
func (c *CachedClient) Dimension() int {
	return c.inner.Dimension()
}

// Inner returns the underlying client.
func (c *CachedClient) Inner() Client {
	return c.inner
}

// Len returns the number of cached embeddings.
func (c *CachedClient) Len() int {
	return c.cache.Len()
}
