package layer

import (
	"context"

	"github.com/lucidmem/kioku/internal/models"
	"github.com/lucidmem/kioku/internal/store"
)

// Meta adapts the memory-quality store. The raw score is the recorded
// expertise for the matched domain. It also serves expertise lookups
// for the confidence scorer.
type Meta struct {
	store *store.SQLite
}

// NewMeta creates the meta adapter.
func NewMeta(s *store.SQLite) *Meta {
	return &Meta{store: s}
}

// Name returns the layer ID.
func (a *Meta) Name() models.LayerID {
	return models.LayerMeta
}

// Query matches quality entries against the query terms.
func (a *Meta) Query(ctx context.Context, in *Input) ([]*models.LayerResult, error) {
	terms := queryTerms(in.Text)
	if len(terms) == 0 {
		return nil, nil
	}
	recs, err := a.store.SearchQuality(ctx, terms, in.K)
	if err != nil {
		return nil, wrapErr(ctx, a.Name(), err)
	}
	return recordsToResults(a.Name(), recs), nil
}

// DomainExpertise returns the recorded expertise for a domain, if any.
// The confidence scorer uses it to adjust source-quality baselines.
func (a *Meta) DomainExpertise(ctx context.Context, domain string) (float64, bool) {
	score, ok, err := a.store.DomainExpertise(ctx, domain)
	if err != nil || !ok {
		return 0, false
	}
	return score, true
}
