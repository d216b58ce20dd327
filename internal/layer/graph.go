package layer

import (
	"context"

	"github.com/lucidmem/kioku/internal/models"
	"github.com/lucidmem/kioku/internal/store"
)

// Graph adapts the knowledge graph: entity nodes matching the query
// plus their one-hop neighborhood. Neighbors score below the matched
// node that pulled them in.
type Graph struct {
	store *store.SQLite
}

// neighborDamping discounts a neighbor's score relative to its matched node.
const neighborDamping = 0.5

// NewGraph creates the graph adapter.
func NewGraph(s *store.SQLite) *Graph {
	return &Graph{store: s}
}

// Name returns the layer ID.
func (a *Graph) Name() models.LayerID {
	return models.LayerGraph
}

// Query finds nodes matching the query terms and expands each match one
// hop, deduplicating by node ID.
func (a *Graph) Query(ctx context.Context, in *Input) ([]*models.LayerResult, error) {
	terms := queryTerms(in.Text)
	if len(terms) == 0 {
		return nil, nil
	}
	nodes, err := a.store.SearchNodes(ctx, terms, in.K)
	if err != nil {
		return nil, wrapErr(ctx, a.Name(), err)
	}

	seen := make(map[string]bool)
	var out []*models.LayerResult
	for _, n := range nodes {
		if seen[n.ID] {
			continue
		}
		seen[n.ID] = true
		out = append(out, &models.LayerResult{
			Layer:     a.Name(),
			ID:        n.ID,
			Content:   n.Content,
			RawScore:  n.Score,
			Timestamp: n.Timestamp,
			Tags:      n.Tags,
			Metadata:  n.Metadata,
		})
	}
	// One-hop expansion from matched nodes.
	for _, n := range nodes {
		if len(out) >= in.K {
			break
		}
		if ctx.Err() != nil {
			return nil, wrapErr(ctx, a.Name(), ctx.Err())
		}
		neighbors, err := a.store.Neighbors(ctx, n.ID, in.K)
		if err != nil {
			return nil, wrapErr(ctx, a.Name(), err)
		}
		for _, nb := range neighbors {
			if seen[nb.ID] {
				continue
			}
			seen[nb.ID] = true
			out = append(out, &models.LayerResult{
				Layer:     a.Name(),
				ID:        nb.ID,
				Content:   nb.Content,
				RawScore:  n.Score * neighborDamping,
				Timestamp: nb.Timestamp,
				Tags:      nb.Tags,
				Metadata:  nb.Metadata,
			})
			if len(out) >= in.K {
				break
			}
		}
	}
	if len(out) > in.K {
		out = out[:in.K]
	}
	return out, nil
}
