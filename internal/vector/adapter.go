package vector

import (
	"context"
	"errors"
	"fmt"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/models"
	"go.uber.org/zap"
)

// Options controls how an Adapter ranks and filters index hits.
type Options struct {
	Metric    Metric
	Threshold float64
	DefaultK  int
	MaxK      int
	// EmbedderDimensions is the query vector size. Zero means no embedder is available
	// and vector search stays disabled.
	EmbedderDimensions int
}

// Status describes what was loaded and whether searches can run.
type Status struct {
	Loaded     bool   `json:"index_loaded"`
	Entries    int    `json:"index_entries"`
	IDMapSize  int    `json:"id_map_size"`
	Dimensions int    `json:"dimensions"`
	Enabled    bool   `json:"vector_search_enabled"`
	Reason     string `json:"reason,omitempty"`
}

// Adapter wraps a read-only Index and its slot map and produces (passage id, similarity)
// pairs above the configured threshold. It never fails construction; problems are
// recorded in Status and every Search returns ErrIndexUnavailable.
type Adapter struct {
	index  Index
	idMap  map[int64]string
	opts   Options
	status Status
	err    error
	logger *zap.Logger
}

// LoadAdapter opens the index and id map described by cfg. Failures are logged and leave
// the adapter disabled.
func LoadAdapter(cfg config.IndexConfig, retrieval config.RetrievalConfig, embedderDims int, logger *zap.Logger) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	metric, err := ParseMetric(cfg.Metric)
	if err != nil {
		return disabledAdapter(err, logger)
	}
	opts := Options{
		Metric:             metric,
		Threshold:          retrieval.SimilarityThreshold,
		DefaultK:           retrieval.TopK,
		MaxK:               cfg.MaxK,
		EmbedderDimensions: embedderDims,
	}

	index, err := Open(cfg.Type, cfg.Path)
	if err != nil {
		logger.Error("failed to load vector index", zap.String("path", cfg.Path), zap.Error(err))
		a := disabledAdapter(fmt.Errorf("load index: %w", err), logger)
		a.opts = opts
		return a
	}
	logger.Info("vector index loaded",
		zap.String("type", cfg.Type),
		zap.Int("entries", index.Size()),
		zap.Int("dimensions", index.Dimensions()))

	idMap, err := LoadIDMap(cfg.IDMapPath, logger)
	if err != nil {
		logger.Error("failed to load id map", zap.String("path", cfg.IDMapPath), zap.Error(err))
		a := NewAdapter(index, nil, opts, logger)
		a.disable(fmt.Errorf("load id map: %w", err))
		return a
	}
	logger.Info("id map loaded", zap.Int("entries", len(idMap)))
	return NewAdapter(index, idMap, opts, logger)
}

// NewAdapter wraps an already loaded index. index may be nil.
func NewAdapter(index Index, idMap map[int64]string, opts Options, logger *zap.Logger) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Metric == "" {
		opts.Metric = MetricL2
	}
	if opts.DefaultK <= 0 {
		opts.DefaultK = config.DefaultTopK
	}
	if opts.MaxK <= 0 {
		opts.MaxK = config.DefaultMaxK
	}
	a := &Adapter{index: index, idMap: idMap, opts: opts, logger: logger}
	if index == nil {
		a.disable(errors.New("index not loaded"))
		return a
	}

	a.status = Status{
		Loaded:     true,
		Entries:    index.Size(),
		IDMapSize:  len(idMap),
		Dimensions: index.Dimensions(),
		Enabled:    true,
	}
	switch {
	case idMap == nil:
		a.disable(errors.New("id map not loaded"))
	case opts.EmbedderDimensions <= 0:
		a.disable(errors.New("embedder unavailable"))
	case opts.EmbedderDimensions != index.Dimensions():
		err := fmt.Errorf("%w: index has %d, embedder produces %d",
			ErrDimensionMismatch, index.Dimensions(), opts.EmbedderDimensions)
		logger.Error("vector search disabled", zap.Error(err))
		a.disable(err)
	}
	return a
}

func disabledAdapter(err error, logger *zap.Logger) *Adapter {
	a := &Adapter{logger: logger, opts: Options{Metric: MetricL2, DefaultK: config.DefaultTopK, MaxK: config.DefaultMaxK}}
	a.disable(err)
	return a
}

func (a *Adapter) disable(err error) {
	a.status.Enabled = false
	a.status.Reason = err.Error()
	a.err = err
}

// Search returns passage ids nearest to vec with similarity = 1/(1+squared L2 distance),
// nearest first. Hits below the threshold and slots missing from the id map are dropped.
// k <= 0 uses the default; k above MaxK is clamped.
func (a *Adapter) Search(ctx context.Context, vec []float32, k int) (results []models.ScoredID, err error) {
	if !a.status.Enabled {
		return nil, fmt.Errorf("%w: %w", ErrIndexUnavailable, a.err)
	}
	if len(vec) != a.status.Dimensions {
		return nil, fmt.Errorf("%w: %w: query has %d, index has %d",
			ErrIndexUnavailable, ErrDimensionMismatch, len(vec), a.status.Dimensions)
	}
	if k <= 0 {
		k = a.opts.DefaultK
	}
	if k > a.opts.MaxK {
		k = a.opts.MaxK
	}

	defer func() {
		if r := recover(); r != nil {
			results, err = nil, fmt.Errorf("%w: index panic: %v", ErrIndexUnavailable, r)
		}
	}()
	neighbors, err := a.index.Search(ctx, vec, k)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIndexUnavailable, err)
	}

	results = make([]models.ScoredID, 0, len(neighbors))
	for _, n := range neighbors {
		if n.Slot < 0 {
			continue
		}
		id, ok := a.idMap[n.Slot]
		if !ok {
			a.logger.Debug("index slot missing from id map", zap.Int64("slot", n.Slot))
			continue
		}
		sim := DistanceToSimilarity(a.opts.Metric.SquaredL2(n.Distance))
		if sim < a.opts.Threshold {
			continue
		}
		results = append(results, models.ScoredID{ID: id, Score: sim})
	}
	return results, nil
}

// Status returns a snapshot of the load state.
func (a *Adapter) Status() Status {
	return a.status
}

// Close releases the underlying index.
func (a *Adapter) Close() error {
	if a.index == nil {
		return nil
	}
	return a.index.Close()
}
