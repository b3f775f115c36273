package models

// ResultSource tells which retrieval path produced a ranked result.
type ResultSource string

const (
	// SourceVector is a fresh nearest-neighbour hit.
	SourceVector ResultSource = "vector"
	// SourceCache is a ranking served from the query cache and re-hydrated.
	SourceCache ResultSource = "cache"
	// SourceFallback is a substring match with the fixed fallback score.
	SourceFallback ResultSource = "fallback"
)

// RankedResult is a passage enriched with its similarity score in [0,1].
type RankedResult struct {
	Passage *Passage     `json:"passage"`
	Score   float64      `json:"score"`
	Source  ResultSource `json:"source"`
}

// IDs returns the passage ids of results in rank order.
func IDs(results []RankedResult) []string {
	ids := make([]string, 0, len(results))
	for _, r := range results {
		if r.Passage != nil {
			ids = append(ids, r.Passage.ID)
		}
	}
	return ids
}
