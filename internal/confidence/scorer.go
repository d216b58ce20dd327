// Package confidence computes the five-factor confidence score attached
// to every fused result. All weights, baselines, and level cut points
// come from validated configuration; nothing numeric is decided here.
package confidence

import (
	"context"
	"strings"
	"time"

	"github.com/lucidmem/kioku/internal/config"
	"github.com/lucidmem/kioku/internal/models"
	"github.com/lucidmem/kioku/pkg/utils"
)

// neutralFactor substitutes for a factor whose inputs are missing
// (e.g. no timestamp for recency). Degrading one factor beats aborting
// the whole result.
const neutralFactor = 0.5

// ExpertiseFunc looks up the meta layer's expertise signal for a domain.
type ExpertiseFunc func(ctx context.Context, domain string) (float64, bool)

// Scorer computes ConfidenceScores for fused results.
type Scorer struct {
	weights   config.ConfidenceWeights
	cuts      config.LevelCuts
	baselines map[models.LayerID]float64
	expertise ExpertiseFunc
}

// NewScorer creates a scorer from validated retrieval configuration.
// expertise may be nil when no meta layer is wired.
func NewScorer(cfg *config.RetrievalConfig, expertise ExpertiseFunc) *Scorer {
	return &Scorer{
		weights:   cfg.Weights,
		cuts:      cfg.LevelCuts,
		baselines: cfg.QualityBaselines,
		expertise: expertise,
	}
}

// ScoreBatch scores every result in a fused batch. Consistency is a
// batch-level property (cross-layer corroboration), so results are
// scored together rather than one at a time. domain optionally names
// the query's domain for the meta-expertise adjustment; now anchors
// recency.
func (s *Scorer) ScoreBatch(ctx context.Context, results []*models.FusedResult, domain string, now time.Time) []*models.ScoredResult {
	if len(results) == 0 {
		return nil
	}

	maxFused := 0.0
	for _, r := range results {
		if r.FusedScore > maxFused {
			maxFused = r.FusedScore
		}
	}

	var domainExpertise float64
	haveExpertise := false
	if s.expertise != nil && domain != "" {
		domainExpertise, haveExpertise = s.expertise(ctx, domain)
	}

	termSets := make([]map[string]bool, len(results))
	for i, r := range results {
		termSets[i] = contentTerms(r.Content)
	}

	out := make([]*models.ScoredResult, len(results))
	for i, r := range results {
		scores := models.ConfidenceScores{
			SemanticRelevance: relevance(r.FusedScore, maxFused),
			SourceQuality:     s.sourceQuality(r.Layer, domainExpertise, haveExpertise),
			Recency:           s.recency(r, now),
			Consistency:       consistency(i, results, termSets),
			Completeness:      completeness(r),
		}
		scores.Overall = utils.Clamp01(
			s.weights.SemanticRelevance*scores.SemanticRelevance +
				s.weights.SourceQuality*scores.SourceQuality +
				s.weights.Recency*scores.Recency +
				s.weights.Consistency*scores.Consistency +
				s.weights.Completeness*scores.Completeness)
		scores.Level = s.level(scores.Overall)

		out[i] = &models.ScoredResult{FusedResult: *r, Confidence: scores}
	}
	return out
}

// MeanOverall returns the mean overall confidence of a scored batch,
// 0.0 for an empty batch. This is the aggregate the cascade controller
// compares against its threshold.
func MeanOverall(results []*models.ScoredResult) float64 {
	if len(results) == 0 {
		return 0
	}
	sum := 0.0
	for _, r := range results {
		sum += r.Confidence.Overall
	}
	return sum / float64(len(results))
}

// relevance normalizes the fused score by the batch maximum.
func relevance(fused, maxFused float64) float64 {
	if maxFused <= 0 {
		return neutralFactor
	}
	return utils.Clamp01(fused / maxFused)
}

// sourceQuality starts from the layer's static baseline and blends in
// the meta layer's domain-expertise signal when available.
func (s *Scorer) sourceQuality(layer models.LayerID, expertise float64, haveExpertise bool) float64 {
	baseline, ok := s.baselines[layer]
	if !ok {
		return neutralFactor
	}
	if !haveExpertise {
		return baseline
	}
	return utils.Clamp01(0.7*baseline + 0.3*expertise)
}

func (s *Scorer) recency(r *models.FusedResult, now time.Time) float64 {
	if !r.HasTimestamp() {
		return neutralFactor
	}
	return RecencyScore(now.Sub(r.Timestamp))
}

// consistency measures cross-layer corroboration: the best term overlap
// between this result and any batch result from a different layer,
// scaled up from a neutral base. A result no other layer corroborates
// keeps the neutral score.
func consistency(i int, results []*models.FusedResult, termSets []map[string]bool) float64 {
	best := 0.0
	for j, other := range results {
		if j == i || other.Layer == results[i].Layer {
			continue
		}
		if o := overlap(termSets[i], termSets[j]); o > best {
			best = o
		}
	}
	return utils.Clamp01(neutralFactor + neutralFactor*best)
}

// overlap is the Jaccard similarity of two term sets.
func overlap(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for t := range a {
		if b[t] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// completeness scores metadata richness: populated tags, structured
// metadata, a timestamp, and non-trivial content each add to the score.
func completeness(r *models.FusedResult) float64 {
	score := 0.3
	if len(r.Tags) > 0 {
		score += 0.25
	}
	if len(r.Metadata) > 0 {
		score += 0.25
	}
	if r.HasTimestamp() {
		score += 0.1
	}
	if len(r.Content) >= 40 {
		score += 0.1
	}
	return utils.Clamp01(score)
}

// level buckets overall into the five non-overlapping ranges defined by
// the configured cut points.
func (s *Scorer) level(overall float64) models.ConfidenceLevel {
	switch {
	case overall >= s.cuts.VeryHigh:
		return models.ConfidenceVeryHigh
	case overall >= s.cuts.High:
		return models.ConfidenceHigh
	case overall >= s.cuts.Medium:
		return models.ConfidenceMedium
	case overall >= s.cuts.Low:
		return models.ConfidenceLow
	default:
		return models.ConfidenceVeryLow
	}
}

// contentTerms returns the lowercased term set of a result's content.
func contentTerms(content string) map[string]bool {
	terms := make(map[string]bool)
	for _, f := range strings.Fields(strings.ToLower(content)) {
		f = strings.Trim(f, ".,;:!?\"'()")
		if len(f) > 2 {
			terms[f] = true
		}
	}
	return terms
}
