// Package models defines core data structures for passages, queries, and ranked results.
package models

// Passage is an atomic retrievable unit of domain knowledge. Passages are written by
// the offline ingestion pipeline and are read-only here.
type Passage struct {
	ID        string                 `json:"id" db:"id"`
	Category  string                 `json:"category,omitempty" db:"category"`
	Question  string                 `json:"question,omitempty" db:"question"`
	Answer    string                 `json:"answer,omitempty" db:"answer"`
	ChunkText string                 `json:"chunk_text,omitempty" db:"chunk_text"`
	Metadata  map[string]interface{} `json:"metadata,omitempty" db:"metadata"`
}

// Body returns the answer text, or the raw chunk text when the passage has no answer.
func (p *Passage) Body() string {
	if p.Answer != "" {
		return p.Answer
	}
	return p.ChunkText
}

// ScoredID is a passage id with its similarity score. The query cache stores only
// these so that passage content is always re-read from the store.
type ScoredID struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
}
