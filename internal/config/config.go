// Package config provides configuration loading and structs for the kotae server.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Index     IndexConfig     `yaml:"index"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Domain    DomainConfig    `yaml:"domain"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig selects and configures the passage store.
type StorageConfig struct {
	Driver       string        `yaml:"driver"`
	DatabasePath string        `yaml:"database_path"`
	DSN          string        `yaml:"dsn"`
	Table        string        `yaml:"table"`
	QueryTimeout time.Duration `yaml:"query_timeout"`
}

// IndexConfig locates the prebuilt vector index and its slot to passage id map.
type IndexConfig struct {
	Type      string `yaml:"type"`
	Path      string `yaml:"path"`
	IDMapPath string `yaml:"id_map_path"`
	Metric    string `yaml:"metric"`
	MaxK      int    `yaml:"max_k"`
}

// EmbeddingConfig selects the embedding provider. ONNX uses the model fields,
// OpenAI-compatible endpoints use base_url, api_key and model.
type EmbeddingConfig struct {
	Provider    string        `yaml:"provider"`
	ModelPath   string        `yaml:"model_path"`
	LibraryPath string        `yaml:"library_path"`
	Dimensions  int           `yaml:"dimensions"`
	MaxTokens   int           `yaml:"max_tokens"`
	CacheSize   int           `yaml:"cache_size"`
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model"`
	Timeout     time.Duration `yaml:"timeout"`
}

// RetrievalConfig holds the orchestrator's ranking and caching settings.
type RetrievalConfig struct {
	TopK                int     `yaml:"top_k"`
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
	FallbackScore       float64 `yaml:"fallback_score"`
	QueryCacheSize      int     `yaml:"query_cache_size"`
	HydrateConcurrency  int     `yaml:"hydrate_concurrency"`
}

// DomainConfig overrides the domain gate's keyword list.
type DomainConfig struct {
	Keywords []string `yaml:"keywords"`
}

// Load reads and parses the config file at path, applies defaults, expands paths and validates.
// Returns an error if the file cannot be read, parsed or validated.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Index.Path = expandPath(cfg.Index.Path, configDir)
	cfg.Index.IDMapPath = expandPath(cfg.Index.IDMapPath, configDir)
	if cfg.Embedding.ModelPath != "" {
		cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports configuration errors that would make the server unable to start.
func (c *Config) Validate() error {
	var errs []error
	switch c.Storage.Driver {
	case DriverSQLite:
		if c.Storage.DatabasePath == "" {
			errs = append(errs, errors.New("storage.database_path is required for sqlite"))
		}
	case DriverPostgres:
		if c.Storage.DSN == "" {
			errs = append(errs, errors.New("storage.dsn is required for postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.driver %q is not supported", c.Storage.Driver))
	}
	switch c.Index.Type {
	case IndexFlat, IndexFAISS:
	default:
		errs = append(errs, fmt.Errorf("index.type %q is not supported", c.Index.Type))
	}
	switch c.Index.Metric {
	case MetricL2, MetricInnerProduct:
	default:
		errs = append(errs, fmt.Errorf("index.metric %q is not supported", c.Index.Metric))
	}
	switch c.Embedding.Provider {
	case ProviderONNX, ProviderOpenAI, ProviderMock:
	default:
		errs = append(errs, fmt.Errorf("embedding.provider %q is not supported", c.Embedding.Provider))
	}
	r := c.Retrieval
	if r.SimilarityThreshold <= 0 || r.SimilarityThreshold > 1 {
		errs = append(errs, fmt.Errorf("retrieval.similarity_threshold must be in (0, 1], got %v", r.SimilarityThreshold))
	}
	if r.FallbackScore < r.SimilarityThreshold || r.FallbackScore > 1 {
		errs = append(errs, fmt.Errorf("retrieval.fallback_score must be in [similarity_threshold, 1], got %v", r.FallbackScore))
	}
	if r.TopK > c.Index.MaxK {
		errs = append(errs, fmt.Errorf("retrieval.top_k %d exceeds index.max_k %d", r.TopK, c.Index.MaxK))
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d is out of range", c.Server.Port))
	}
	return errors.Join(errs...)
}

// Addr returns the host:port the HTTP server listens on.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
