package config

import (
	"os"
	"time"
)

// Accepted values for the enumerated settings.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	IndexFlat  = "flat"
	IndexFAISS = "faiss"

	MetricL2           = "l2"
	MetricInnerProduct = "inner_product"

	ProviderONNX   = "onnx"
	ProviderOpenAI = "openai"
	ProviderMock   = "mock"
)

// Defaults for the retrieval pipeline.
const (
	DefaultTopK                = 5
	DefaultMaxK                = 50
	DefaultSimilarityThreshold = 0.40
	DefaultFallbackScore       = 0.55
	DefaultEmbeddingCacheSize  = 256
	DefaultQueryCacheSize      = 512
	DefaultHydrateConcurrency  = 4
	DefaultQueryTimeout        = 5 * time.Second
	DefaultEmbeddingTimeout    = 10 * time.Second
)

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}

	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = DriverSQLite
	}
	if cfg.Storage.Driver == DriverSQLite && cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/kotae/data/db/passages.db"
	}
	if cfg.Storage.Table == "" {
		if cfg.Storage.Driver == DriverPostgres {
			cfg.Storage.Table = "ivf_chunks"
		} else {
			cfg.Storage.Table = "passages"
		}
	}
	if cfg.Storage.QueryTimeout == 0 {
		cfg.Storage.QueryTimeout = DefaultQueryTimeout
	}

	if cfg.Index.Type == "" {
		cfg.Index.Type = IndexFlat
	}
	if cfg.Index.Path == "" {
		cfg.Index.Path = "/usr/local/var/kotae/data/index/passages.index"
	}
	if cfg.Index.IDMapPath == "" {
		cfg.Index.IDMapPath = "/usr/local/var/kotae/data/index/id_map.json"
	}
	if cfg.Index.Metric == "" {
		cfg.Index.Metric = MetricL2
	}
	if cfg.Index.MaxK == 0 {
		cfg.Index.MaxK = DefaultMaxK
	}

	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = ProviderONNX
	}
	if cfg.Embedding.Provider == ProviderONNX && cfg.Embedding.ModelPath == "" {
		cfg.Embedding.ModelPath = "/usr/local/var/kotae/data/models/all-MiniLM-L6-v2.onnx"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 384
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 256
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = DefaultEmbeddingCacheSize
	}
	if cfg.Embedding.Provider == ProviderOpenAI {
		if cfg.Embedding.APIKey == "" {
			cfg.Embedding.APIKey = os.Getenv("OPENAI_API_KEY")
		}
		if cfg.Embedding.Model == "" {
			cfg.Embedding.Model = "text-embedding-3-small"
		}
	}
	if cfg.Embedding.Timeout == 0 {
		cfg.Embedding.Timeout = DefaultEmbeddingTimeout
	}

	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = DefaultTopK
	}
	if cfg.Retrieval.SimilarityThreshold == 0 {
		cfg.Retrieval.SimilarityThreshold = DefaultSimilarityThreshold
	}
	if cfg.Retrieval.FallbackScore == 0 {
		cfg.Retrieval.FallbackScore = DefaultFallbackScore
	}
	if cfg.Retrieval.QueryCacheSize == 0 {
		cfg.Retrieval.QueryCacheSize = DefaultQueryCacheSize
	}
	if cfg.Retrieval.HydrateConcurrency == 0 {
		cfg.Retrieval.HydrateConcurrency = DefaultHydrateConcurrency
	}
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
