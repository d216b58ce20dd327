package layer

import (
	"context"

	"github.com/lucidmem/kioku/internal/embedding"
	"github.com/lucidmem/kioku/internal/models"
	"github.com/lucidmem/kioku/internal/store"
	"github.com/lucidmem/kioku/internal/vector"
)

// Semantic adapts the fact store's vector search. The raw score is the
// cosine similarity of the query embedding to the fact embedding.
type Semantic struct {
	embedder embedding.Embedder
	index    vector.Index
	store    *store.SQLite
}

// NewSemantic creates the semantic adapter.
func NewSemantic(e embedding.Embedder, idx vector.Index, s *store.SQLite) *Semantic {
	return &Semantic{embedder: e, index: idx, store: s}
}

// Name returns the layer ID.
func (a *Semantic) Name() models.LayerID {
	return models.LayerSemantic
}

// Query embeds the text and searches the vector index, hydrating hits
// from the fact store. Facts deleted since indexing are skipped.
func (a *Semantic) Query(ctx context.Context, in *Input) ([]*models.LayerResult, error) {
	emb, err := a.embedder.Embed(ctx, in.Text)
	if err != nil {
		return nil, wrapErr(ctx, a.Name(), err)
	}
	hits, err := a.index.Search(ctx, emb, in.K)
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
