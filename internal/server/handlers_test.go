package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/metrics"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/retrieval"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/internal/vector"
)

var testPassages = []*models.Passage{
	{ID: "cost", Category: "Cost", Question: "How much does IVF cost?", Answer: "IVF cost varies by clinic."},
	{ID: "transfer", Category: "Procedure", ChunkText: "Embryo transfer usually happens on day five."},
}

// newTestServer wires a real engine: mock embedder, flat index over the passage texts
// and a SQLite store. withIndex=false leaves vector search disabled.
func newTestServer(t *testing.T, withIndex bool) *Server {
	t.Helper()
	ctx := context.Background()
	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "passages.db"))
	if err != nil {
		t.Fatal(err)
	}
	embedder := embedding.NewMockEmbedder(4)
	var vectors [][]float32
	idMap := map[int64]string{}
	for i, p := range testPassages {
		if err := store.PutPassage(ctx, p); err != nil {
			t.Fatal(err)
		}
		v, err := embedder.Embed(ctx, p.Body())
		if err != nil {
			t.Fatal(err)
		}
		vectors = append(vectors, v)
		idMap[int64(i)] = p.ID
	}

	var index vector.Index
	if withIndex {
		flat, err := vector.NewFlatIndex(4, vectors)
		if err != nil {
			t.Fatal(err)
		}
		index = flat
	}
	engine := retrieval.New(retrieval.Deps{
		Embeddings: embedding.NewCache(embedder, 0),
		Index: vector.NewAdapter(index, idMap, vector.Options{
			Threshold:          0.40,
			EmbedderDimensions: embedder.Dimensions(),
		}, nil),
		Store:   storage.NewAdapter(store, time.Second, 0.55, nil),
		Metrics: metrics.NewCollector("test"),
	}, retrieval.Options{})
	t.Cleanup(func() { _ = engine.Close() })
	return NewServer(engine, &config.ServerConfig{Port: 8080}, nil)
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

type searchBody struct {
	Results   []models.RankedResult `json:"results"`
	Path      string                `json:"path"`
	Degraded  []string              `json:"degraded"`
	RequestID string                `json:"request_id"`
	Context   string                `json:"context"`
}

func TestHandleSearch(t *testing.T) {
	h := newTestServer(t, true).Router()
	w := do(t, h, http.MethodPost, "/api/v1/search", `{"query":"IVF cost varies by clinic.","k":3}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, body %s", w.Code, w.Body.String())
	}
	var out searchBody
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out.Path != string(retrieval.PathVector) {
		t.Errorf("path: got %q, want vector", out.Path)
	}
	if len(out.Results) == 0 || out.Results[0].Passage.ID != "cost" {
		t.Fatalf("results: got %+v", out.Results)
	}
	if out.Results[0].Score < 0.99 {
		t.Errorf("score: got %v, want ~1 for identical text", out.Results[0].Score)
	}
	if out.RequestID == "" {
		t.Error("request_id should be set")
	}
	if out.Context != "" {
		t.Errorf("context should be omitted unless requested, got %q", out.Context)
	}
}

func TestHandleSearch_ReusesRouterRequestID(t *testing.T) {
	h := newTestServer(t, true).Router()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/search", strings.NewReader(`{"query":"ivf cost"}`))
	req.Header.Set(middleware.RequestIDHeader, "req-7f3a")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	var out searchBody
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out.RequestID != "req-7f3a" {
		t.Errorf("request_id: got %q, want the X-Request-Id value", out.RequestID)
	}
}

func TestHandleSearch_WithContext(t *testing.T) {
	h := newTestServer(t, true).Router()
	w := do(t, h, http.MethodPost, "/api/v1/search", `{"query":"IVF cost varies by clinic.","with_context":true}`)
	var out searchBody
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out.Context, "Relevant IVF Information:") {
		t.Errorf("context: got %q", out.Context)
	}
	if !strings.Contains(out.Context, "Q: How much does IVF cost?") {
		t.Errorf("context missing question line: %q", out.Context)
	}
}

func TestHandleSearch_OutOfDomain(t *testing.T) {
	h := newTestServer(t, true).Router()
	w := do(t, h, http.MethodPost, "/api/v1/search", `{"query":"weather in paris"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	var out searchBody
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out.Path != string(retrieval.PathRejected) || len(out.Results) != 0 {
		t.Errorf("got path %q with %d results", out.Path, len(out.Results))
	}
	if out.Results == nil {
		t.Error("results should be an empty list, not null")
	}
}

func TestHandleSearch_Fallback(t *testing.T) {
	h := newTestServer(t, false).Router()
	w := do(t, h, http.MethodPost, "/api/v1/search", `{"query":"embryo transfer"}`)
	var out searchBody
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out.Path != string(retrieval.PathFallback) {
		t.Fatalf("path: got %q, want fallback", out.Path)
	}
	if len(out.Results) != 1 || out.Results[0].Score != 0.55 {
		t.Errorf("results: got %+v", out.Results)
	}
	if len(out.Degraded) == 0 {
		t.Error("degraded notes should explain the fallback")
	}
}

func TestHandleSearch_BadRequest(t *testing.T) {
	h := newTestServer(t, true).Router()
	for _, body := range []string{`not json`, `{"query":""}`, `{"query":"ivf","k":-1}`} {
		w := do(t, h, http.MethodPost, "/api/v1/search", body)
		if w.Code != http.StatusBadRequest {
			t.Errorf("body %s: status got %d, want 400", body, w.Code)
		}
	}
}

func TestHandleContext(t *testing.T) {
	h := newTestServer(t, true).Router()
	w := do(t, h, http.MethodPost, "/api/v1/context", `{"query":"best pizza"}`)
	var out map[string]string
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out["context"] != "No relevant IVF information found." {
		t.Errorf("context: got %q", out["context"])
	}
}

func TestHandleHealth(t *testing.T) {
	w := do(t, newTestServer(t, false).Router(), http.MethodGet, "/health", "")
	if w.Code != http.StatusOK {
		t.Errorf("status: got %d", w.Code)
	}
	if !bytes.Contains(w.Body.Bytes(), []byte(`"ok"`)) {
		t.Errorf("body: got %s", w.Body.String())
	}
}

func TestHandleReady(t *testing.T) {
	tests := []struct {
		name      string
		withIndex bool
		want      int
	}{
		{"ready", true, http.StatusOK},
		{"index missing", false, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, newTestServer(t, tt.withIndex).Router(), http.MethodGet, "/ready", "")
			if w.Code != tt.want {
				t.Errorf("status: got %d, want %d", w.Code, tt.want)
			}
			var r retrieval.Readiness
			if err := json.NewDecoder(w.Body).Decode(&r); err != nil {
				t.Fatal(err)
			}
			if r.VectorSearchEnabled != tt.withIndex || !r.StoreConnected {
				t.Errorf("readiness: got %+v", r)
			}
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	h := newTestServer(t, true).Router()
	do(t, h, http.MethodPost, "/api/v1/search", `{"query":"IVF cost varies by clinic."}`)
	w := do(t, h, http.MethodGet, "/metrics", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	body := w.Body.String()
	for _, want := range []string{
		`test_http_requests_total{method="POST",route="/api/v1/search",status="200"} 1`,
		`test_searches_total{path="vector"}`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %s", want)
		}
	}
}
