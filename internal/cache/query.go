package cache

import (
	"strconv"
	"strings"

	"github.com/hyperjump/kotae/internal/models"
)

// DefaultQueryCacheSize is the query cache capacity used when none is configured.
const DefaultQueryCacheSize = 512

// QueryCache maps a normalized query and result width to a ranked list of
// (passage id, score) pairs. Passage bodies are never cached.
type QueryCache struct {
	lru *LRU[string, []models.ScoredID]
}

// NewQueryCache creates a query cache with the given capacity (DefaultQueryCacheSize when <= 0).
func NewQueryCache(capacity int) *QueryCache {
	if capacity <= 0 {
		capacity = DefaultQueryCacheSize
	}
	return &QueryCache{lru: NewLRU[string, []models.ScoredID](capacity)}
}

// NormalizeQuery trims surrounding whitespace and lower-cases the query.
func NormalizeQuery(query string) string {
	return strings.ToLower(strings.TrimSpace(query))
}

// Key builds the cache key for query and k.
func Key(query string, k int) string {
	return NormalizeQuery(query) + "||" + strconv.Itoa(k)
}

// Get returns a copy of the cached ranking for query and k.
func (c *QueryCache) Get(query string, k int) ([]models.ScoredID, bool) {
	ids, ok := c.lru.Get(Key(query, k))
	if !ok {
		return nil, false
	}
	return cloneScored(ids), true
}

// Put stores a copy of results for query and k. Empty rankings are not stored.
func (c *QueryCache) Put(query string, k int, results []models.ScoredID) {
	if len(results) == 0 {
		return
	}
	c.lru.Put(Key(query, k), cloneScored(results))
}

// Len returns the number of cached rankings.
func (c *QueryCache) Len() int {
	return c.lru.Len()
}

func cloneScored(in []models.ScoredID) []models.ScoredID {
	out := make([]models.ScoredID, len(in))
	copy(out, in)
	return out
}
