package retrieval

import (
	"fmt"
	"strings"

	"github.com/hyperjump/kotae/internal/models"
)

const (
	contextHeader   = "Relevant IVF Information:"
	noContext       = "No relevant IVF information found."
	defaultCategory = "General"
)

// FormatContext renders results as a numbered prompt context block. An empty list yields
// a fixed sentinel sentence.
func FormatContext(results []models.RankedResult) string {
	var b strings.Builder
	n := 0
	for _, r := range results {
		p := r.Passage
		if p == nil {
			continue
		}
		n++
		if n == 1 {
			b.WriteString(contextHeader)
		}
		category := p.Category
		if category == "" {
			category = defaultCategory
		}
		fmt.Fprintf(&b, "\n\n%d. [Category: %s]", n, category)
		if p.Question != "" {
			fmt.Fprintf(&b, "\n   Q: %s", p.Question)
		}
		fmt.Fprintf(&b, "\n   A: %s", p.Body())
	}
	if n == 0 {
		return noContext
	}
	return b.String()
}
