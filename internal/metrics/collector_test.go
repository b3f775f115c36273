package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_RecordSearch(t *testing.T) {
	c := NewCollector("kotae")
	c.RecordSearch("vector", 3, 10*time.Millisecond)
	c.RecordSearch("vector", 0, time.Millisecond)
	c.RecordSearch("fallback", 2, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.searchesTotal.WithLabelValues("vector")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.searchesTotal.WithLabelValues("fallback")))
	assert.Equal(t, 2, testutil.CollectAndCount(c.searchDuration))
}

func TestCollector_RecordCacheLookup(t *testing.T) {
	c := NewCollector("kotae")
	c.RecordCacheLookup(CacheEmbedding, true)
	c.RecordCacheLookup(CacheEmbedding, false)
	c.RecordCacheLookup(CacheQuery, false)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.cacheHits.WithLabelValues(CacheEmbedding)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.cacheMisses.WithLabelValues(CacheEmbedding)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.cacheMisses.WithLabelValues(CacheQuery)))
}

func TestCollector_RecordDependencyError(t *testing.T) {
	c := NewCollector("kotae")
	c.RecordDependencyError(DepStore)
	c.RecordDependencyError(DepStore)
	assert.Equal(t, 2.0, testutil.ToFloat64(c.dependencyErrs.WithLabelValues(DepStore)))
}

func TestCollector_IndependentRegistries(t *testing.T) {
	a, b := NewCollector("kotae"), NewCollector("kotae")
	a.RecordDependencyError(DepIndex)
	assert.Equal(t, 0.0, testutil.ToFloat64(b.dependencyErrs.WithLabelValues(DepIndex)))
}

func TestCollector_Nil(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.RecordSearch("empty", 0, time.Millisecond)
		c.RecordCacheLookup(CacheQuery, true)
		c.RecordDependencyError(DepEmbedder)
		c.RecordHTTPRequest("GET", "/health", 200, time.Millisecond)
	})
	assert.Nil(t, c.Registry())

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCollector_Handler(t *testing.T) {
	c := NewCollector("kotae")
	c.RecordSearch("cache_hit", 1, time.Millisecond)
	c.RecordHTTPRequest("POST", "/api/v1/search", 200, time.Millisecond)

	srv := httptest.NewServer(c.Handler())
	defer srv.Close()
	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	text := string(body)
	assert.True(t, strings.Contains(text, `kotae_searches_total{path="cache_hit"} 1`), text)
	assert.Contains(t, text, "kotae_http_requests_total")
	assert.Contains(t, text, "go_goroutines")
}

func TestCollector_Concurrent(t *testing.T) {
	c := NewCollector("kotae")
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.RecordCacheLookup(CacheQuery, j%2 == 0)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 500.0, testutil.ToFloat64(c.cacheHits.WithLabelValues(CacheQuery)))
}
