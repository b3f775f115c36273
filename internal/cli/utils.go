// Package cli renders retrieval output for the kotae command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/retrieval"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat maps a --output flag value to a format.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(s) {
	case OutputText, OutputJSON:
		return OutputFormat(s), nil
	default:
		return "", fmt.Errorf("unknown output format %q; use text or json", s)
	}
}

const bodyPreviewLen = 200

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteSearchResults writes a search outcome to w in the given format.
func WriteSearchResults(w io.Writer, outcome *retrieval.Outcome, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, outcome)
	}
	fmt.Fprintf(w, "\nFound %d results (path: %s, request: %s)\n", len(outcome.Results), outcome.Path, outcome.RequestID)
	for _, note := range outcome.Degraded {
		fmt.Fprintf(w, "degraded: %s\n", note)
	}
	fmt.Fprintln(w)
	for i, r := range outcome.Results {
		writeOneResult(w, i+1, r)
	}
	return nil
}

func writeOneResult(w io.Writer, rank int, r models.RankedResult) {
	if r.Passage == nil {
		return
	}
	fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
	fmt.Fprintf(w, "[%s] Rank: %d | Score: %.4f\n", r.Source, rank, r.Score)
	fmt.Fprintf(w, "ID: %s\n", r.Passage.ID)
	if r.Passage.Category != "" {
		fmt.Fprintf(w, "Category: %s\n", r.Passage.Category)
	}
	if r.Passage.Question != "" {
		fmt.Fprintf(w, "Q: %s\n", r.Passage.Question)
	}
	fmt.Fprintf(w, "\n%s\n\n", utils.Truncate(r.Passage.Body(), bodyPreviewLen))
}

// WriteContext writes a formatted context block.
func WriteContext(w io.Writer, context string, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, map[string]string{"context": context})
	}
	_, err := fmt.Fprintln(w, context)
	return err
}

// StatusConfig is the configuration summary shown by status.
type StatusConfig struct {
	IndexType           string  `json:"index_type"`
	IndexPath           string  `json:"index_path,omitempty"`
	Metric              string  `json:"metric"`
	EmbeddingProvider   string  `json:"embedding_provider"`
	EmbeddingDimensions int     `json:"embedding_dimensions,omitempty"`
	StorageDriver       string  `json:"storage_driver"`
	SimilarityThreshold float64 `json:"similarity_threshold"`
	TopK                int     `json:"top_k"`
}

// StatusReport is the output of the status command.
type StatusReport struct {
	Ready          bool                `json:"ready"`
	Readiness      retrieval.Readiness `json:"readiness"`
	Passages       *int64              `json:"passages,omitempty"`
	Disk           []storage.PathUsage `json:"disk,omitempty"`
	DiskUsageBytes *int64              `json:"disk_usage_bytes,omitempty"`
	Config         *StatusConfig       `json:"config,omitempty"`
}

// WriteStatus writes a status report in the given format.
func WriteStatus(w io.Writer, s *StatusReport, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, s)
	}
	r := s.Readiness
	fmt.Fprintf(w, "ready:                  %t\n", s.Ready)
	fmt.Fprintf(w, "index_loaded:           %t\n", r.IndexLoaded)
	fmt.Fprintf(w, "index_entries:          %d\n", r.IndexEntries)
	fmt.Fprintf(w, "id_map_size:            %d\n", r.IDMapSize)
	fmt.Fprintf(w, "vector_search_enabled:  %t\n", r.VectorSearchEnabled)
	if r.Reason != "" {
		fmt.Fprintf(w, "reason:                 %s\n", r.Reason)
	}
	fmt.Fprintf(w, "store_connected:        %t\n", r.StoreConnected)
	fmt.Fprintf(w, "embedder_ready:         %t\n", r.EmbedderReady)
	if s.Passages != nil {
		fmt.Fprintf(w, "passages:               %d\n", *s.Passages)
	}
	if s.DiskUsageBytes != nil {
		fmt.Fprintf(w, "disk_usage_bytes:       %d   # index + id map + database on disk\n", *s.DiskUsageBytes)
	}
	for _, u := range s.Disk {
		state := fmt.Sprintf("%d bytes", u.Bytes)
		if !u.Exists {
			state = "missing"
		}
		fmt.Fprintf(w, "  %s (%s)\n", u.Path, state)
	}
	if c := s.Config; c != nil {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "# configuration")
		fmt.Fprintf(w, "index_type:             %s\n", c.IndexType)
		if c.IndexPath != "" {
			fmt.Fprintf(w, "index_path:             %s\n", c.IndexPath)
		}
		fmt.Fprintf(w, "metric:                 %s\n", c.Metric)
		fmt.Fprintf(w, "embedding_provider:     %s\n", c.EmbeddingProvider)
		if c.EmbeddingDimensions > 0 {
			fmt.Fprintf(w, "embedding_dims:         %d\n", c.EmbeddingDimensions)
		}
		fmt.Fprintf(w, "storage_driver:         %s\n", c.StorageDriver)
		fmt.Fprintf(w, "similarity_threshold:   %s\n", strconv.FormatFloat(c.SimilarityThreshold, 'g', -1, 64))
		fmt.Fprintf(w, "top_k:                  %d\n", c.TopK)
	}
	return nil
}
