package embedding

import (
	"context"
	"fmt"

	"github.com/hyperjump/kotae/internal/cache"
	"go.uber.org/zap"
)

// DefaultCacheSize is the embedding cache capacity used when none is configured.
const DefaultCacheSize = 256

// Cache memoizes text to vector conversions in a strict LRU keyed by the exact raw text.
// Returned vectors are shared with the cache and must not be modified.
type Cache struct {
	embedder Embedder
	lru      *cache.LRU[string, []float32]
	logger   *zap.Logger
	onLookup func(hit bool)
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithCacheLogger sets the logger used for provider failures.
func WithCacheLogger(logger *zap.Logger) CacheOption {
	return func(c *Cache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithLookupObserver registers fn to be called with the outcome of every lookup.
func WithLookupObserver(fn func(hit bool)) CacheOption {
	return func(c *Cache) {
		c.onLookup = fn
	}
}

// NewCache wraps embedder with an LRU of the given capacity (DefaultCacheSize when <= 0).
// embedder may be nil, in which case every miss fails with ErrEmbeddingUnavailable.
func NewCache(embedder Embedder, capacity int, opts ...CacheOption) *Cache {
	if capacity <= 0 {
		capacity = DefaultCacheSize
	}
	c := &Cache{
		embedder: embedder,
		lru:      cache.NewLRU[string, []float32](capacity),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetOrCompute returns the cached vector for text, or embeds it synchronously and caches
// the result. Failures never produce a zero vector; they wrap ErrEmbeddingUnavailable.
func (c *Cache) GetOrCompute(ctx context.Context, text string) ([]float32, error) {
	if vec, ok := c.lru.Get(text); ok {
		c.observe(true)
		return vec, nil
	}
	c.observe(false)

	if c.embedder == nil {
		return nil, fmt.Errorf("%w: no embedding provider configured", ErrEmbeddingUnavailable)
	}
	vec, err := c.compute(ctx, text)
	if err != nil {
		c.logger.Warn("embedding provider failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrEmbeddingUnavailable, err)
	}
	if len(vec) == 0 {
		return nil, fmt.Errorf("%w: provider returned an empty vector", ErrEmbeddingUnavailable)
	}
	c.lru.Put(text, vec)
	return vec, nil
}

// Len returns the number of cached vectors.
func (c *Cache) Len() int {
	return c.lru.Len()
}

// Embedder returns the wrapped provider, which may be nil.
func (c *Cache) Embedder() Embedder {
	return c.embedder
}

func (c *Cache) compute(ctx context.Context, text string) (vec []float32, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("provider panic: %v", r)
		}
	}()
	return c.embedder.Embed(ctx, text)
}

func (c *Cache) observe(hit bool) {
	if c.onLookup != nil {
		c.onLookup(hit)
	}
}
