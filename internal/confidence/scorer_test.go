package confidence

import (
	"context"
	"testing"
	"time"

	"github.com/lucidmem/kioku/internal/config"
	"github.com/lucidmem/kioku/internal/models"
)

func testScorer(t *testing.T, expertise ExpertiseFunc) *Scorer {
	t.Helper()
	cfg := config.Default()
	return NewScorer(&cfg.Retrieval, expertise)
}

func fusedResult(layer models.LayerID, id, content string, score float64) *models.FusedResult {
	return &models.FusedResult{
		LayerResult: models.LayerResult{Layer: layer, ID: id, Content: content},
		FusedScore:  score,
	}
}

func TestScoreBatch_factorsInRange(t *testing.T) {
	s := testScorer(t, nil)
	now := time.Now()
	batch := []*models.FusedResult{
		fusedResult(models.LayerSemantic, "1", "postgres connection pooling configuration", 0.03),
		fusedResult(models.LayerEpisodic, "2", "deployed the billing service", 0.02),
		fusedResult(models.LayerGraph, "3", "", 0.001),
	}
	batch[0].Timestamp = now.Add(-2 * time.Hour)
	batch[0].Tags = []string{"infra"}

	scored := s.ScoreBatch(context.Background(), batch, "", now)
	if len(scored) != 3 {
		t.Fatalf("expected 3 scored results, got %d", len(scored))
	}
	for i, r := range scored {
		c := r.Confidence
		for name, v := range map[string]float64{
			"semantic_relevance": c.SemanticRelevance,
			"source_quality":     c.SourceQuality,
			"recency":            c.Recency,
			"consistency":        c.Consistency,
			"completeness":       c.Completeness,
			"overall":            c.Overall,
		} {
			if v < 0 || v > 1 {
				t.Errorf("result %d: %s = %v outside [0,1]", i, name, v)
			}
		}
		if c.Level == "" {
			t.Errorf("result %d: level not set", i)
		}
	}

	// The batch leader's relevance normalizes to 1.
	if scored[0].Confidence.SemanticRelevance != 1.0 {
		t.Errorf("top result relevance = %v, want 1.0", scored[0].Confidence.SemanticRelevance)
	}
}

func TestScoreBatch_weightedOverall(t *testing.T) {
	// With the default weights, factors of (0.9, 0.8, 0.95, 0.75, 0.85)
	// must aggregate to 0.855.
	s := testScorer(t, nil)
	overall := s.weights.SemanticRelevance*0.9 +
		s.weights.SourceQuality*0.8 +
		s.weights.Recency*0.95 +
		s.weights.Consistency*0.75 +
		s.weights.Completeness*0.85
	if diff := overall - 0.855; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("weighted aggregate = %v, want 0.855", overall)
	}
	if level := s.level(overall); level != models.ConfidenceVeryHigh {
		t.Errorf("level(%v) = %s, want very_high", overall, level)
	}
	if level := s.level(0.75); level != models.ConfidenceHigh {
		t.Errorf("level(0.75) = %s, want high", s.level(0.75))
	}
}

func TestLevel_buckets(t *testing.T) {
	s := testScorer(t, nil)
	tests := []struct {
		overall float64
		want    models.ConfidenceLevel
	}{
		{0.95, models.ConfidenceVeryHigh},
		{0.85, models.ConfidenceVeryHigh},
		{0.84, models.ConfidenceHigh},
		{0.70, models.ConfidenceHigh},
		{0.69, models.ConfidenceMedium},
		{0.50, models.ConfidenceMedium},
		{0.49, models.ConfidenceLow},
		{0.30, models.ConfidenceLow},
		{0.29, models.ConfidenceVeryLow},
		{0.0, models.ConfidenceVeryLow},
	}
	for _, tt := range tests {
		if got := s.level(tt.overall); got != tt.want {
			t.Errorf("level(%v) = %s, want %s", tt.overall, got, tt.want)
		}
	}
}

func TestScoreBatch_missingTimestampIsNeutral(t *testing.T) {
	s := testScorer(t, nil)
	batch := []*models.FusedResult{
		fusedResult(models.LayerSemantic, "1", "no timestamp here", 0.02),
	}
	scored := s.ScoreBatch(context.Background(), batch, "", time.Now())
	if scored[0].Confidence.Recency != 0.5 {
		t.Errorf("recency without timestamp = %v, want 0.5", scored[0].Confidence.Recency)
	}
}

func TestScoreBatch_consistency(t *testing.T) {
	s := testScorer(t, nil)
	now := time.Now()

	// Identical content in two different layers corroborates fully.
	batch := []*models.FusedResult{
		fusedResult(models.LayerSemantic, "1", "redis cache eviction policy", 0.03),
		fusedResult(models.LayerEpisodic, "2", "redis cache eviction policy", 0.02),
	}
	scored := s.ScoreBatch(context.Background(), batch, "", now)
	if scored[0].Confidence.Consistency != 1.0 {
		t.Errorf("fully corroborated consistency = %v, want 1.0", scored[0].Confidence.Consistency)
	}

	// A result corroborated by nothing outside its own layer stays neutral.
	batch = []*models.FusedResult{
		fusedResult(models.LayerSemantic, "1", "redis cache eviction policy", 0.03),
		fusedResult(models.LayerSemantic, "2", "redis cache eviction policy", 0.02),
	}
	scored = s.ScoreBatch(context.Background(), batch, "", now)
	if scored[0].Confidence.Consistency != 0.5 {
		t.Errorf("same-layer consistency = %v, want 0.5", scored[0].Confidence.Consistency)
	}
}

func TestScoreBatch_sourceQuality(t *testing.T) {
	cfg := config.Default()
	baseline := cfg.Retrieval.QualityBaselines[models.LayerEpisodic]

	// Without expertise the baseline is used directly.
	s := NewScorer(&cfg.Retrieval, nil)
	batch := []*models.FusedResult{fusedResult(models.LayerEpisodic, "1", "x", 0.02)}
	scored := s.ScoreBatch(context.Background(), batch, "", time.Now())
	if scored[0].Confidence.SourceQuality != baseline {
		t.Errorf("source quality = %v, want baseline %v", scored[0].Confidence.SourceQuality, baseline)
	}

	// With a domain expertise signal the baseline is blended 70/30.
	s = NewScorer(&cfg.Retrieval, func(ctx context.Context, domain string) (float64, bool) {
		if domain != "databases" {
			t.Errorf("unexpected domain %q", domain)
		}
		return 0.9, true
	})
	scored = s.ScoreBatch(context.Background(), batch, "databases", time.Now())
	want := 0.7*baseline + 0.3*0.9
	if diff := scored[0].Confidence.SourceQuality - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("blended source quality = %v, want %v", scored[0].Confidence.SourceQuality, want)
	}
}

func TestScoreBatch_completeness(t *testing.T) {
	s := testScorer(t, nil)
	rich := fusedResult(models.LayerSemantic, "1",
		"the payments service retries failed charges three times with backoff", 0.02)
	rich.Tags = []string{"payments"}
	rich.Metadata = map[string]interface{}{"source": "incident-42"}
	rich.Timestamp = time.Now()
	bare := fusedResult(models.LayerEpisodic, "2", "x", 0.02)

	scored := s.ScoreBatch(context.Background(), []*models.FusedResult{rich, bare}, "", time.Now())
	if scored[0].Confidence.Completeness != 1.0 {
		t.Errorf("fully populated completeness = %v, want 1.0", scored[0].Confidence.Completeness)
	}
	if scored[1].Confidence.Completeness != 0.3 {
		t.Errorf("bare completeness = %v, want 0.3", scored[1].Confidence.Completeness)
	}
}

func TestMeanOverall(t *testing.T) {
	if got := MeanOverall(nil); got != 0 {
		t.Errorf("MeanOverall(nil) = %v, want 0", got)
	}
	results := []*models.ScoredResult{
		{Confidence: models.ConfidenceScores{Overall: 0.4}},
		{Confidence: models.ConfidenceScores{Overall: 0.8}},
	}
	if got := MeanOverall(results); got != 0.6 {
		t.Errorf("MeanOverall = %v, want 0.6", got)
	}
}

func TestScoreBatch_empty(t *testing.T) {
	s := testScorer(t, nil)
	if out := s.ScoreBatch(context.Background(), nil, "", time.Now()); out != nil {
		t.Errorf("empty batch should score to nil, got %v", out)
	}
}
