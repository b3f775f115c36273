package embedding

import (
	"fmt"
	"strings"

	"github.com/hyperjump/kotae/internal/config"
)

// ONNXConfig configures the local ONNX Runtime embedder.
type ONNXConfig struct {
	ModelPath   string
	LibraryPath string
	OutputName  string
	Dimensions  int
	MaxTokens   int
}

// New constructs the provider selected by cfg.Provider.
func New(cfg config.EmbeddingConfig) (Embedder, error) {
	switch cfg.Provider {
	case config.ProviderONNX:
		e, err := NewONNXEmbedder(ONNXConfig{
			ModelPath:   cfg.ModelPath,
			LibraryPath: cfg.LibraryPath,
			Dimensions:  cfg.Dimensions,
			MaxTokens:   cfg.MaxTokens,
		})
		if err != nil {
			return nil, err
		}
		return e, nil
	case config.ProviderOpenAI:
		e, err := NewOpenAIEmbedder(OpenAIConfig{
			BaseURL:    cfg.BaseURL,
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			Timeout:    cfg.Timeout,

			RequestDimensions: strings.HasPrefix(cfg.Model, "text-embedding-3"),
		})
		if err != nil {
			return nil, err
		}
		return e, nil
	case config.ProviderMock:
		return NewMockEmbedder(cfg.Dimensions), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
}
