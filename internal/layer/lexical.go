package layer

import (
	"context"

	"github.com/lucidmem/kioku/internal/keyword"
	"github.com/lucidmem/kioku/internal/models"
	"github.com/lucidmem/kioku/internal/store"
)

// Lexical adapts the BM25 index over the fact store. The raw score is
// bleve's BM25 score (unbounded; normalized downstream).
type Lexical struct {
	index keyword.Index
	store *store.SQLite
}

// NewLexical creates the lexical adapter.
func NewLexical(idx keyword.Index, s *store.SQLite) *Lexical {
	return &Lexical{index: idx, store: s}
}

// Name returns the layer ID.
func (a *Lexical) Name() models.LayerID {
	return models.LayerLexical
}

// Query runs a keyword match over fact content and tags.
func (a *Lexical) Query(ctx context.Context, in *Input) ([]*models.LayerResult, error) {
	hits, err := a.index.Search(ctx, in.Text, in.K)
	if err != nil {
		return nil, wrapErr(ctx, a.Name(), err)
	}
	out := make([]*models.LayerResult, 0, len(hits))
	for _, hit := range hits {
		if ctx.Err() != nil {
			return nil, wrapErr(ctx, a.Name(), ctx.Err())
		}
		fact, err := a.store.GetFact(ctx, hit.ID)
		if err != nil {
			continue
		}
		out = append(out, &models.LayerResult{
			Layer:     a.Name(),
			ID:        fact.ID,
			Content:   fact.Content,
			RawScore:  hit.Score,
			Timestamp: fact.Timestamp,
			Tags:      fact.Tags,
			Metadata:  fact.Metadata,
		})
	}
	return out, nil
}
