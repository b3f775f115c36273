package models

import "fmt"

// SearchQuery is a retrieval request as accepted by the HTTP host and CLI.
type SearchQuery struct {
	Query string `json:"query"`
	// K is the requested result width; zero means the configured default.
	K int `json:"k,omitempty"`
	// WithContext asks the host to include the formatted context block.
	WithContext bool `json:"with_context,omitempty"`
}

// Validate rejects empty queries and negative widths.
func (q *SearchQuery) Validate() error {
	if q.Query == "" {
		return fmt.Errorf("query cannot be empty")
	}
	if q.K < 0 {
		return fmt.Errorf("k cannot be negative")
	}
	return nil
}
