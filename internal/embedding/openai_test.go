package embedding

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type embeddingsRequest struct {
	Input      []string `json:"input"`
	Model      string   `json:"model"`
	Dimensions int      `json:"dimensions"`
}

func newEmbeddingsServer(t *testing.T, handler func(w http.ResponseWriter, req embeddingsRequest)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/embeddings" {
			http.NotFound(w, r)
			return
		}
		var req embeddingsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		handler(w, req)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func writeEmbeddings(w http.ResponseWriter, vectors map[int][]float32) {
	data := make([]map[string]any, 0, len(vectors))
	for idx, vec := range vectors {
		data = append(data, map[string]any{"object": "embedding", "index": idx, "embedding": vec})
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"object": "list",
		"data":   data,
		"model":  "test-embed",
		"usage":  map[string]int{"prompt_tokens": 1, "total_tokens": 1},
	})
}

func TestOpenAIEmbedder_Embed(t *testing.T) {
	var got embeddingsRequest
	srv := newEmbeddingsServer(t, func(w http.ResponseWriter, req embeddingsRequest) {
		got = req
		writeEmbeddings(w, map[int][]float32{0: {3, 4}})
	})

	e, err := NewOpenAIEmbedder(OpenAIConfig{
		BaseURL:    srv.URL + "/v1",
		APIKey:     "sk-test",
		Model:      "test-embed",
		Dimensions: 2,
		Timeout:    time.Second,
	})
	require.NoError(t, err)

	vec, err := e.Embed(context.Background(), "what is icsi")
	require.NoError(t, err)
	assert.Equal(t, []string{"what is icsi"}, got.Input)
	assert.Equal(t, "test-embed", got.Model)
	assert.Zero(t, got.Dimensions, "dimensions are only sent when requested")
	require.Len(t, vec, 2)
	assert.InDelta(t, 0.6, vec[0], 1e-6)
	assert.InDelta(t, 0.8, vec[1], 1e-6)
}

func TestOpenAIEmbedder_BatchOrderFollowsIndex(t *testing.T) {
	srv := newEmbeddingsServer(t, func(w http.ResponseWriter, req embeddingsRequest) {
		writeEmbeddings(w, map[int][]float32{1: {0, 2}, 0: {5, 0}})
	})
	e, err := NewOpenAIEmbedder(OpenAIConfig{BaseURL: srv.URL + "/v1", Model: "m", Dimensions: 2})
	require.NoError(t, err)

	out, err := e.EmbedBatch(context.Background(), []string{"first", "second"})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, []float32{1, 0}, out[0])
	assert.Equal(t, []float32{0, 1}, out[1])
}

func TestOpenAIEmbedder_RequestDimensions(t *testing.T) {
	var got embeddingsRequest
	srv := newEmbeddingsServer(t, func(w http.ResponseWriter, req embeddingsRequest) {
		got = req
		writeEmbeddings(w, map[int][]float32{0: {1, 0, 0}})
	})
	e, err := NewOpenAIEmbedder(OpenAIConfig{
		BaseURL: srv.URL + "/v1", Model: "text-embedding-3-small", Dimensions: 3, RequestDimensions: true,
	})
	require.NoError(t, err)
	_, err = e.Embed(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, 3, got.Dimensions)
}

func TestOpenAIEmbedder_Errors(t *testing.T) {
	t.Run("server error", func(t *testing.T) {
		srv := newEmbeddingsServer(t, func(w http.ResponseWriter, req embeddingsRequest) {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":{"message":"boom","type":"server_error"}}`))
		})
		e, err := NewOpenAIEmbedder(OpenAIConfig{BaseURL: srv.URL + "/v1", Model: "m", Dimensions: 2})
		require.NoError(t, err)
		_, err = e.Embed(context.Background(), "x")
		assert.Error(t, err)
	})
	t.Run("dimension mismatch", func(t *testing.T) {
		srv := newEmbeddingsServer(t, func(w http.ResponseWriter, req embeddingsRequest) {
			writeEmbeddings(w, map[int][]float32{0: {1, 2, 3}})
		})
		e, err := NewOpenAIEmbedder(OpenAIConfig{BaseURL: srv.URL + "/v1", Model: "m", Dimensions: 2})
		require.NoError(t, err)
		_, err = e.Embed(context.Background(), "x")
		assert.ErrorContains(t, err, "dimension")
	})
	t.Run("missing vectors", func(t *testing.T) {
		srv := newEmbeddingsServer(t, func(w http.ResponseWriter, req embeddingsRequest) {
			writeEmbeddings(w, map[int][]float32{})
		})
		e, err := NewOpenAIEmbedder(OpenAIConfig{BaseURL: srv.URL + "/v1", Model: "m", Dimensions: 2})
		require.NoError(t, err)
		_, err = e.Embed(context.Background(), "x")
		assert.Error(t, err)
	})
	t.Run("timeout", func(t *testing.T) {
		srv := newEmbeddingsServer(t, func(w http.ResponseWriter, req embeddingsRequest) {
			time.Sleep(200 * time.Millisecond)
			writeEmbeddings(w, map[int][]float32{0: {1, 0}})
		})
		e, err := NewOpenAIEmbedder(OpenAIConfig{
			BaseURL: srv.URL + "/v1", Model: "m", Dimensions: 2, Timeout: 20 * time.Millisecond,
		})
		require.NoError(t, err)
		_, err = e.Embed(context.Background(), "x")
		assert.Error(t, err)
	})
}

func TestOpenAIEmbedder_ThroughCache(t *testing.T) {
	var requests int
	srv := newEmbeddingsServer(t, func(w http.ResponseWriter, req embeddingsRequest) {
		requests++
		writeEmbeddings(w, map[int][]float32{0: {1, 1}})
	})
	e, err := NewOpenAIEmbedder(OpenAIConfig{BaseURL: srv.URL + "/v1", Model: "m", Dimensions: 2})
	require.NoError(t, err)
	c := NewCache(e, 4)

	for i := 0; i < 3; i++ {
		vec, err := c.GetOrCompute(context.Background(), "egg freezing")
		require.NoError(t, err)
		assert.InDelta(t, 1/math.Sqrt2, vec[0], 1e-6)
	}
	assert.Equal(t, 1, requests)
}

func TestNewOpenAIEmbedder_Validation(t *testing.T) {
	_, err := NewOpenAIEmbedder(OpenAIConfig{Model: "m", Dimensions: 2})
	assert.Error(t, err, "needs key or base url")
	_, err = NewOpenAIEmbedder(OpenAIConfig{APIKey: "k", Dimensions: 2})
	assert.Error(t, err, "needs model")
	_, err = NewOpenAIEmbedder(OpenAIConfig{APIKey: "k", Model: "m"})
	assert.Error(t, err, "needs dimensions")
}
