package layer

import (
	"context"

	"github.com/lucidmem/kioku/internal/models"
	"github.com/lucidmem/kioku/internal/store"
)

// Procedural adapts the workflow template store.
type Procedural struct {
	store *store.SQLite
}

// NewProcedural creates the procedural adapter.
func NewProcedural(s *store.SQLite) *Procedural {
	return &Procedural{store: s}
}

// Name returns the layer ID.
func (a *Procedural) Name() models.LayerID {
	return models.LayerProcedural
}

// Query matches workflow names, steps, and tags against the query terms.
func (a *Procedural) Query(ctx context.Context, in *Input) ([]*models.LayerResult, error) {
	terms := queryTerms(in.Text)
	if len(terms) == 0 {
		return nil, nil
	}
	recs, err := a.store.SearchWorkflows(ctx, terms, in.K)
	if err != nil {
		return nil, wrapErr(ctx, a.Name(), err)
	}
	return recordsToResults(a.Name(), recs), nil
}
