package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/models"
	"go.uber.org/zap"
)

// Adapter applies per-call timeouts to a PassageStore and maps its failures to
// ErrStoreUnavailable. A nil store behaves as permanently unavailable.
type Adapter struct {
	store         PassageStore
	timeout       time.Duration
	fallbackScore float64
	logger        *zap.Logger
}

// NewAdapter wraps store. timeout <= 0 disables the per-call deadline.
func NewAdapter(store PassageStore, timeout time.Duration, fallbackScore float64, logger *zap.Logger) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{store: store, timeout: timeout, fallbackScore: fallbackScore, logger: logger}
}

// Open connects the store selected by cfg.Driver. Table only applies to postgres.
func Open(cfg config.StorageConfig) (PassageStore, error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		s, err := NewSQLiteStore(cfg.DatabasePath)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.DriverPostgres:
		s, err := NewPostgresStore(cfg.DSN, cfg.Table, DefaultPoolConfig())
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

func (a *Adapter) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, a.timeout)
}

// Hydrate returns the full passage for id, or (nil, nil) when it is absent.
func (a *Adapter) Hydrate(ctx context.Context, id string) (p *models.Passage, err error) {
	if a.store == nil {
		return nil, fmt.Errorf("%w: no store configured", ErrStoreUnavailable)
	}
	ctx, cancel := a.withTimeout(ctx)
	defer cancel()
	defer recoverStore(&err)

	p, err = a.store.GetPassage(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: get passage %s: %w", ErrStoreUnavailable, id, err)
	}
	return p, nil
}

// ScanFallback returns up to k passages containing the trimmed query, each scored with
// the fixed fallback score. A blank query or k <= 0 matches nothing.
func (a *Adapter) ScanFallback(ctx context.Context, query string, k int) (results []models.RankedResult, err error) {
	if a.store == nil {
		return nil, fmt.Errorf("%w: no store configured", ErrStoreUnavailable)
	}
	q := strings.TrimSpace(query)
	if q == "" || k <= 0 {
		return nil, nil
	}
	ctx, cancel := a.withTimeout(ctx)
	defer cancel()
	defer recoverStore(&err)

	passages, err := a.store.SearchText(ctx, ContainsPattern(q), k)
	if err != nil {
		return nil, fmt.Errorf("%w: scan: %w", ErrStoreUnavailable, err)
	}
	results = make([]models.RankedResult, 0, len(passages))
	for _, p := range passages {
		if p == nil {
			continue
		}
		results = append(results, models.RankedResult{
			Passage: p,
			Score:   a.fallbackScore,
			Source:  models.SourceFallback,
		})
		if len(results) == k {
			break
		}
	}
	a.logger.Debug("fallback scan", zap.Int("matches", len(results)), zap.Int("k", k))
	return results, nil
}

// Ping reports whether the store is reachable.
func (a *Adapter) Ping(ctx context.Context) error {
	if a.store == nil {
		return fmt.Errorf("%w: no store configured", ErrStoreUnavailable)
	}
	ctx, cancel := a.withTimeout(ctx)
	defer cancel()
	if err := a.store.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return nil
}

// Count returns the number of stored passages.
func (a *Adapter) Count(ctx context.Context) (n int64, err error) {
	if a.store == nil {
		return 0, fmt.Errorf("%w: no store configured", ErrStoreUnavailable)
	}
	ctx, cancel := a.withTimeout(ctx)
	defer cancel()
	defer recoverStore(&err)

	n, err = a.store.CountPassages(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: count passages: %w", ErrStoreUnavailable, err)
	}
	return n, nil
}

// Close closes the wrapped store.
func (a *Adapter) Close() error {
	if a.store == nil {
		return nil
	}
	return a.store.Close()
}

func recoverStore(err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("%w: store panic: %v", ErrStoreUnavailable, r)
	}
}
