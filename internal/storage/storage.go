// Package storage provides read access to the passage store: point lookups by id for
// hydration and substring scans for the degraded fallback path.
package storage

import (
	"context"
	"errors"
	"strings"

	"github.com/hyperjump/kotae/internal/models"
)

// ErrStoreUnavailable is returned when the passage store cannot be reached or a query fails.
var ErrStoreUnavailable = errors.New("passage store unavailable")

// PassageStore is a read-mostly view of the passage table.
type PassageStore interface {
	// GetPassage returns the passage with id, or (nil, nil) when no such passage exists.
	GetPassage(ctx context.Context, id string) (*models.Passage, error)
	// SearchText returns up to limit passages whose chunk text or answer contains the
	// escaped LIKE pattern, case-insensitively, ordered by id.
	SearchText(ctx context.Context, pattern string, limit int) ([]*models.Passage, error)
	// CountPassages returns the number of rows in the passage table.
	CountPassages(ctx context.Context) (int64, error)
	Ping(ctx context.Context) error
	Close() error
}

// likeEscape is the escape character used in LIKE patterns built by ContainsPattern.
const likeEscape = `\`

// ContainsPattern builds a LIKE pattern matching text anywhere in a column,
// with %, _ and the escape character in text matched literally.
func ContainsPattern(text string) string {
	r := strings.NewReplacer(likeEscape, likeEscape+likeEscape, "%", likeEscape+"%", "_", likeEscape+"_")
	return "%" + r.Replace(text) + "%"
}
