// Package fusion merges ranked result lists from multiple layers into
// one list via Reciprocal Rank Fusion. Cross-layer merging during a
// cascade feeds additional source lists into the same call; there is no
// second merge algorithm.
package fusion

import (
	"fmt"
	"sort"

	"github.com/lucidmem/kioku/internal/models"
)

// Engine performs Reciprocal Rank Fusion with a fixed smoothing
// constant kappa. An item ranked r in a source list contributes
// 1/(r+kappa); items appearing in several lists accumulate their
// contributions, which is the fusion's advantage over any single
// ranking.
type Engine struct {
	kappa float64
}

// NewEngine creates a fusion engine. kappa must be positive (validated
// at config load; 60 is the conventional value).
func NewEngine(kappa float64) *Engine {
	return &Engine{kappa: kappa}
}

type fusedEntry struct {
	result *models.LayerResult
	score  float64
	seq    int // first-seen order, for the deterministic final tie-break
}

// Fuse merges the source lists and returns the top k by fused score.
// Each source list is taken in its native order with ranks starting at
// 1. Duplicate (layer, id) pairs merge into one entry before scoring,
// and the semantic and lexical views of one fact count as the same
// entry: a fact found by both hybrid sources accumulates both
// contributions instead of occupying two of the top-k slots. Ties break
// by higher raw score, then more recent timestamp, then first-seen
// order; the output is fully deterministic for identical inputs.
func (e *Engine) Fuse(sources [][]*models.LayerResult, k int) []*models.FusedResult {
	if k <= 0 {
		return nil
	}

	entries := make(map[string]*fusedEntry)
	order := make([]*fusedEntry, 0)
	seq := 0

	for _, source := range sources {
		for i, r := range source {
			if r == nil {
				continue
			}
			rank := i + 1
			contribution := 1.0 / (float64(rank) + e.kappa)
			key := fuseKey(r.Layer, r.ID)
			if entry, ok := entries[key]; ok {
				entry.score += contribution
				entry.merge(r)
				continue
			}
			entry := &fusedEntry{result: r, score: contribution, seq: seq}
			seq++
			entries[key] = entry
			order = append(order, entry)
		}
	}

	sort.SliceStable(order, func(i, j int) bool {
		a, b := order[i], order[j]
		if a.score != b.score {
			return a.score > b.score
		}
		if a.result.RawScore != b.result.RawScore {
			return a.result.RawScore > b.result.RawScore
		}
		if !a.result.Timestamp.Equal(b.result.Timestamp) {
			return a.result.Timestamp.After(b.result.Timestamp)
		}
		return a.seq < b.seq
	})

	if k > len(order) {
		k = len(order)
	}
	out := make([]*models.FusedResult, k)
	for i := 0; i < k; i++ {
		out[i] = &models.FusedResult{
			LayerResult: *order[i].result,
			FusedScore:  order[i].score,
			FusionRank:  i,
		}
	}
	return out
}

// merge folds a duplicate sighting into the entry. When the hybrid
// views of one fact both surface it, the semantic sighting is kept as
// the representative; within a single view the stronger raw score wins
// the tie-break. Raw scores are never compared across layers.
func (e *fusedEntry) merge(r *models.LayerResult) {
	if e.result.Layer != r.Layer {
		if r.Layer == models.LayerSemantic {
			e.result = r
		}
		return
	}
	if r.RawScore > e.result.RawScore {
		e.result = r
	}
}

// fuseKey is the fusion identity. Fact layers share one namespace so
// the semantic and lexical views of the same row merge.
func fuseKey(layer models.LayerID, id string) string {
	if models.FactLayer(layer) {
		return "facts/" + id
	}
	return fmt.Sprintf("%s/%s", layer, id)
}
