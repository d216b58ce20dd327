package layer

import (
	"context"

	"github.com/lucidmem/kioku/internal/models"
	"github.com/lucidmem/kioku/internal/store"
)

// Prospective adapts the task store. Only pending tasks are returned,
// earliest due date first.
type Prospective struct {
	store *store.SQLite
}

// NewProspective creates the prospective adapter.
func NewProspective(s *store.SQLite) *Prospective {
	return &Prospective{store: s}
}

// Name returns the layer ID.
func (a *Prospective) Name() models.LayerID {
	return models.LayerProspective
}

// Query matches pending tasks against the query terms.
func (a *Prospective) Query(ctx context.Context, in *Input) ([]*models.LayerResult, error) {
	terms := queryTerms(in.Text)
	if len(terms) == 0 {
		return nil, nil
	}
	recs, err := a.store.SearchTasks(ctx, terms, in.K)
	if err != nil {
		return nil, wrapErr(ctx, a.Name(), err)
	}
	return recordsToResults(a.Name(), recs), nil
}
