package reader

import (
	"fmt"
	"regexp"

	"github.com/draftline/draftline/internal/engine/record"
)

// mutatingKeywords rejects caller-supplied raw predicates that try to smuggle
// a mutation into the read path. The whole call fails before any query runs.
var mutatingKeywords = regexp.MustCompile(`(?i)\b(DROP|DELETE|UPDATE|INSERT|TRUNCATE|ALTER|CREATE)\b`)

// ScreenPredicate validates a raw caller-supplied predicate. Plain column
// comparisons pass; anything containing a mutating keyword is rejected.
func ScreenPredicate(raw string) error {
	if raw == "" {
		return nil
	}
	if match := mutatingKeywords.FindString(raw); match != "" {
		return fmt.Errorf("%w: predicate contains %q", record.ErrInvalidPredicate, match)
	}
	return nil
}
