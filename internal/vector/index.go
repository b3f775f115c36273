// Package vector provides read-only nearest-neighbor indexes over passage embeddings
// and the adapter that turns their raw hits into scored passage ids.
package vector

import (
	"context"
	"errors"
)

var (
	// ErrIndexUnavailable is returned when vector search cannot run: the index or id map
	// failed to load, dimensions disagree, no embedder is configured, or the index errored.
	ErrIndexUnavailable = errors.New("vector index unavailable")
	// ErrDimensionMismatch records that the index and embedder dimensions disagree.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
)

// Index is a loaded, immutable nearest-neighbor index.
type Index interface {
	// Search returns up to k neighbors ordered nearest first.
	Search(ctx context.Context, query []float32, k int) ([]Neighbor, error)
	Dimensions() int
	Size() int
	Close() error
}

// Neighbor is a raw index hit. Slot is the vector's position in the index;
// Distance is the index's native score (squared L2, or inner product for IP indexes).
type Neighbor struct {
	Slot     int64
	Distance float32
}
