package layer

import (
	"context"

	"github.com/lucidmem/kioku/internal/models"
	"github.com/lucidmem/kioku/internal/store"
)

// Episodic adapts the time-ordered event log. Results come back most
// recent first; the raw score is the term-match fraction.
type Episodic struct {
	store *store.SQLite
}

// NewEpisodic creates the episodic adapter.
func NewEpisodic(s *store.SQLite) *Episodic {
	return &Episodic{store: s}
}

// Name returns the layer ID.
func (a *Episodic) Name() models.LayerID {
	return models.LayerEpisodic
}

// Query searches the event log.
func (a *Episodic) Query(ctx context.Context, in *Input) ([]*models.LayerResult, error) {
	terms := queryTerms(in.Text)
	if len(terms) == 0 {
		return nil, nil
	}
	recs, err := a.store.SearchEvents(ctx, terms, in.K)
	if err != nil {
		return nil, wrapErr(ctx, a.Name(), err)
	}
	return recordsToResults(a.Name(), recs), nil
}

// recordsToResults converts store records to the common result shape.
func recordsToResults(id models.LayerID, recs []*store.Record) []*models.LayerResult {
	out := make([]*models.LayerResult, 0, len(recs))
	for _, r := range recs {
		out = append(out, &models.LayerResult{
			Layer:     id,
			ID:        r.ID,
			Content:   r.Content,
			RawScore:  r.Score,
			Timestamp: r.Timestamp,
			Tags:      r.Tags,
			Metadata:  r.Metadata,
		})
	}
	return out
}
