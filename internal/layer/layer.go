// Package layer wraps each memory store's native search behind one
// uniform adapter contract. Adapters normalize heterogeneous result
// shapes into models.LayerResult and carry no ranking logic; layer-
// specific fields travel only in the result metadata.
package layer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/lucidmem/kioku/internal/models"
)

// Error taxonomy for adapter failures. Zero matches is not an error.
var (
	// ErrTimeout marks a layer that could not answer within its deadline.
	ErrTimeout = errors.New("layer timeout")
	// ErrUnavailable marks a backend/connection failure.
	ErrUnavailable = errors.New("layer unavailable")
)

// Input is the uniform query shape every adapter accepts.
type Input struct {
	Text    string
	K       int
	Filters map[string]interface{}
}

// Adapter is the uniform search contract over one memory layer.
// Implementations must respect the deadline on ctx, must not block past
// it, and must not mutate caller-visible state.
type Adapter interface {
	Name() models.LayerID
	Query(ctx context.Context, in *Input) ([]*models.LayerResult, error)
}

// wrapErr maps a backend error to the adapter taxonomy for layer id.
func wrapErr(ctx context.Context, id models.LayerID, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", id, ErrTimeout)
	}
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w", id, ErrTimeout)
	}
	return fmt.Errorf("%s: %w: %v", id, ErrUnavailable, err)
}

// stopwords excluded from term matching against the stores.
var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "by": true, "did": true, "do": true, "does": true, "for": true,
	"from": true, "how": true, "i": true, "in": true, "is": true, "it": true,
	"of": true, "on": true, "or": true, "the": true, "to": true, "was": true,
	"what": true, "when": true, "where": true, "which": true, "who": true,
	"with": true,
}

// queryTerms lowercases text and returns its non-stopword terms.
func queryTerms(text string) []string {
	fields := strings.Fields(strings.ToLower(text))
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, ".,;:!?\"'()")
		if f == "" || stopwords[f] {
			continue
		}
		terms = append(terms, f)
	}
	return terms
}
