// Package embedding provides text embedding providers and the embedding cache.
package embedding

import (
	"context"
	"errors"
)

// ErrEmbeddingUnavailable is returned when no vector could be produced for a text:
// the provider is missing, failed, timed out or returned an unusable vector.
var ErrEmbeddingUnavailable = errors.New("embedding unavailable")

// Embedder produces L2-normalized vector embeddings for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}
