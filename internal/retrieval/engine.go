// Package retrieval provides the domain-restricted retrieval engine: gate, caches,
// vector search, passage hydration and the degraded fallback scan.
package retrieval

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/kotae/internal/cache"
	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/domain"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/metrics"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/internal/vector"
	"github.com/hyperjump/kotae/pkg/utils"
)

// Path is the terminal state a search ended in.
type Path string

const (
	PathRejected Path = "rejected"
	PathCacheHit Path = "cache_hit"
	PathVector   Path = "vector"
	PathFallback Path = "fallback"
	PathEmpty    Path = "empty"
)

type requestIDKey struct{}

// WithRequestID returns a context whose searches report id instead of a fresh uuid.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

func requestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok && id != "" {
		return id
	}
	return uuid.NewString()
}

// Outcome is a search result together with how it was produced.
type Outcome struct {
	Results   []models.RankedResult `json:"results"`
	Path      Path                  `json:"path"`
	Degraded  []string              `json:"degraded,omitempty"`
	RequestID string                `json:"request_id"`
}

// Deps are the components an Engine orchestrates. Nil fields get inert defaults:
// the default gate, an empty cache, and unavailable embedder, index and store.
type Deps struct {
	Gate       *domain.Gate
	Embeddings *embedding.Cache
	Index      *vector.Adapter
	QueryCache *cache.QueryCache
	Store      *storage.Adapter
	Metrics    *metrics.Collector
	Logger     *zap.Logger
}

// Options tune the orchestrator.
type Options struct {
	TopK               int
	MaxK               int
	HydrateConcurrency int
}

// Engine answers queries with ranked passages. Search never fails: every dependency
// failure degrades to the fallback scan or to an empty result.
type Engine struct {
	gate       *domain.Gate
	embeddings *embedding.Cache
	index      *vector.Adapter
	queryCache *cache.QueryCache
	store      *storage.Adapter
	metrics    *metrics.Collector
	logger     *zap.Logger
	opts       Options
	closeOnce  sync.Once
	closeErr   error
}

// New assembles an Engine from already constructed components.
func New(deps Deps, opts Options) *Engine {
	logger := utils.OrNop(deps.Logger)
	if deps.Gate == nil {
		deps.Gate = domain.NewGate(nil)
	}
	if deps.Embeddings == nil {
		deps.Embeddings = embedding.NewCache(nil, 0)
	}
	if deps.Index == nil {
		deps.Index = vector.NewAdapter(nil, nil, vector.Options{}, logger)
	}
	if deps.QueryCache == nil {
		deps.QueryCache = cache.NewQueryCache(0)
	}
	if deps.Store == nil {
		deps.Store = storage.NewAdapter(nil, 0, config.DefaultFallbackScore, logger)
	}
	if opts.TopK <= 0 {
		opts.TopK = config.DefaultTopK
	}
	if opts.MaxK <= 0 {
		opts.MaxK = config.DefaultMaxK
	}
	if opts.HydrateConcurrency <= 0 {
		opts.HydrateConcurrency = config.DefaultHydrateConcurrency
	}
	return &Engine{
		gate:       deps.Gate,
		embeddings: deps.Embeddings,
		index:      deps.Index,
		queryCache: deps.QueryCache,
		store:      deps.Store,
		metrics:    deps.Metrics,
		logger:     logger,
		opts:       opts,
	}
}

// NewEngine validates cfg and loads every component synchronously. Only an invalid
// configuration is an error; an unavailable embedder, index or store is logged and the
// engine starts degraded.
func NewEngine(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger = utils.OrNop(logger)
	collector := metrics.NewCollector("kotae")

	embedder, err := embedding.New(cfg.Embedding)
	if err != nil {
		logger.Error("embedding provider unavailable, vector search disabled",
			zap.String("provider", cfg.Embedding.Provider), zap.Error(err))
	}
	embeddings := embedding.NewCache(embedder, cfg.Embedding.CacheSize,
		embedding.WithCacheLogger(logger),
		embedding.WithLookupObserver(func(hit bool) {
			collector.RecordCacheLookup(metrics.CacheEmbedding, hit)
		}))

	dims := 0
	if embedder != nil {
		dims = embedder.Dimensions()
	}
	index := vector.LoadAdapter(cfg.Index, cfg.Retrieval, dims, logger)

	store, err := storage.Open(cfg.Storage)
	if err != nil {
		logger.Error("passage store unavailable", zap.String("driver", cfg.Storage.Driver), zap.Error(err))
	}
	storeAdapter := storage.NewAdapter(store, cfg.Storage.QueryTimeout, cfg.Retrieval.FallbackScore, logger)
	if err := storeAdapter.Ping(ctx); err != nil {
		logger.Warn("passage store not reachable at startup", zap.Error(err))
	}

	e := New(Deps{
		Gate:       domain.NewGate(cfg.Domain.Keywords),
		Embeddings: embeddings,
		Index:      index,
		QueryCache: cache.NewQueryCache(cfg.Retrieval.QueryCacheSize),
		Store:      storeAdapter,
		Metrics:    collector,
		Logger:     logger,
	}, Options{
		TopK:               cfg.Retrieval.TopK,
		MaxK:               cfg.Index.MaxK,
		HydrateConcurrency: cfg.Retrieval.HydrateConcurrency,
	})

	st := index.Status()
	logger.Info("retrieval engine ready",
		zap.Bool("vector_search_enabled", st.Enabled),
		zap.String("reason", st.Reason),
		zap.Int("index_entries", st.Entries),
		zap.Int("id_map_size", st.IDMapSize))
	return e, nil
}

// Search returns up to k ranked passages for query. k <= 0 uses the configured default.
func (e *Engine) Search(ctx context.Context, query string, k int) []models.RankedResult {
	return e.SearchDetailed(ctx, query, k).Results
}

// SearchDetailed is Search plus the terminal path, degradation notes and request id.
func (e *Engine) SearchDetailed(ctx context.Context, query string, k int) (out Outcome) {
	start := time.Now()
	out.RequestID = requestID(ctx)
	log := e.logger.With(zap.String("request_id", out.RequestID))

	defer func() {
		if r := recover(); r != nil {
			log.Error("search panicked", zap.Any("panic", r))
			out.Results, out.Path = nil, PathEmpty
			out.Degraded = append(out.Degraded, "internal error")
		}
		if out.Results == nil {
			out.Results = []models.RankedResult{}
		}
		e.metrics.RecordSearch(string(out.Path), len(out.Results), time.Since(start))
		log.Debug("search finished",
			zap.String("path", string(out.Path)),
			zap.Int("results", len(out.Results)),
			zap.Duration("took", time.Since(start)))
	}()

	if k <= 0 {
		k = e.opts.TopK
	}
	if k > e.opts.MaxK {
		k = e.opts.MaxK
	}

	if !e.gate.Admit(query) {
		log.Info("rejected out-of-domain query", zap.String("query", utils.Truncate(query, 80)))
		out.Path = PathRejected
		return out
	}

	if ids, ok := e.queryCache.Get(query, k); ok {
		e.metrics.RecordCacheLookup(metrics.CacheQuery, true)
		results, clean := e.hydrate(ctx, ids, models.SourceCache, log)
		if !clean {
			out.Degraded = append(out.Degraded, "store: hydration incomplete")
		}
		out.Results = results
		out.Path = PathCacheHit
		return out
	}
	e.metrics.RecordCacheLookup(metrics.CacheQuery, false)

	if st := e.index.Status(); !st.Enabled {
		out.Degraded = append(out.Degraded, "index: "+st.Reason)
		return e.fallback(ctx, query, k, out, log)
	}

	vec, err := e.embeddings.GetOrCompute(ctx, query)
	if err != nil {
		e.metrics.RecordDependencyError(metrics.DepEmbedder)
		log.Warn("embedding failed, using fallback scan", zap.Error(err))
		out.Degraded = append(out.Degraded, "embedding: "+err.Error())
		return e.fallback(ctx, query, k, out, log)
	}

	ids, err := e.index.Search(ctx, vec, k)
	if err != nil {
		e.metrics.RecordDependencyError(metrics.DepIndex)
		if errors.Is(err, vector.ErrDimensionMismatch) {
			log.Error("vector search failed", zap.Error(err))
		} else {
			log.Warn("vector search failed, using fallback scan", zap.Error(err))
		}
		out.Degraded = append(out.Degraded, "index: "+err.Error())
		return e.fallback(ctx, query, k, out, log)
	}

	results, clean := e.hydrate(ctx, ids, models.SourceVector, log)
	if !clean {
		out.Degraded = append(out.Degraded, "store: hydration incomplete")
	}
	if clean && len(results) > 0 {
		e.queryCache.Put(query, k, scoredIDs(results))
	}
	out.Results = results
	out.Path = PathVector
	if len(results) == 0 {
		out.Path = PathEmpty
	}
	return out
}

// fallback runs the substring scan. Its results are never cached.
func (e *Engine) fallback(ctx context.Context, query string, k int, out Outcome, log *zap.Logger) Outcome {
	results, err := e.store.ScanFallback(ctx, query, k)
	if err != nil {
		e.metrics.RecordDependencyError(metrics.DepStore)
		log.Warn("fallback scan failed", zap.Error(err))
		out.Degraded = append(out.Degraded, "store: "+err.Error())
		out.Path = PathEmpty
		return out
	}
	out.Results = results
	out.Path = PathFallback
	if len(results) == 0 {
		out.Path = PathEmpty
	}
	return out
}

// hydrate loads passages for ids with bounded concurrency, preserving order.
// Absent ids are dropped. clean is false when any lookup failed with a store error.
func (e *Engine) hydrate(ctx context.Context, ids []models.ScoredID, source models.ResultSource, log *zap.Logger) (results []models.RankedResult, clean bool) {
	passages := make([]*models.Passage, len(ids))
	var failed atomic.Bool

	var g errgroup.Group
	g.SetLimit(e.opts.HydrateConcurrency)
	for i, sid := range ids {
		i, sid := i, sid
		g.Go(func() error {
			p, err := e.store.Hydrate(ctx, sid.ID)
			if err != nil {
				failed.Store(true)
				e.metrics.RecordDependencyError(metrics.DepStore)
				log.Warn("hydration failed", zap.String("passage_id", sid.ID), zap.Error(err))
				return nil
			}
			if p == nil {
				log.Debug("passage no longer in store", zap.String("passage_id", sid.ID))
			}
			passages[i] = p
			return nil
		})
	}
	_ = g.Wait()

	results = make([]models.RankedResult, 0, len(ids))
	for i, p := range passages {
		if p == nil {
			continue
		}
		results = append(results, models.RankedResult{Passage: p, Score: ids[i].Score, Source: source})
	}
	return results, !failed.Load()
}

func scoredIDs(results []models.RankedResult) []models.ScoredID {
	out := make([]models.ScoredID, len(results))
	for i, r := range results {
		out[i] = models.ScoredID{ID: r.Passage.ID, Score: r.Score}
	}
	return out
}

// Metrics returns the engine's collector, which may be nil.
func (e *Engine) Metrics() *metrics.Collector {
	return e.metrics
}

// Close releases the index, embedder and store. It is safe to call more than once.
func (e *Engine) Close() error {
	e.closeOnce.Do(func() {
		var errs []error
		if err := e.index.Close(); err != nil {
			errs = append(errs, err)
		}
		if emb := e.embeddings.Embedder(); emb != nil {
			if err := emb.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		if err := e.store.Close(); err != nil {
			errs = append(errs, err)
		}
		e.closeErr = errors.Join(errs...)
	})
	return e.closeErr
}
