package models

// FusedResult is a LayerResult after rank fusion. FusedScore is the
// accumulated reciprocal-rank contribution across all source lists the
// result appeared in; FusionRank is its position in the merged list.
type FusedResult struct {
	LayerResult
	FusedScore float64 `json:"fused_score"`
	FusionRank int     `json:"fusion_rank"`
}

// ConfidenceLevel is a discrete bucket of the overall confidence scalar.
type ConfidenceLevel string

// Confidence levels from strongest to weakest.
const (
	ConfidenceVeryHigh ConfidenceLevel = "very_high"
	ConfidenceHigh     ConfidenceLevel = "high"
	ConfidenceMedium   ConfidenceLevel = "medium"
	ConfidenceLow      ConfidenceLevel = "low"
	ConfidenceVeryLow  ConfidenceLevel = "very_low"
)

// ConfidenceScores holds the five confidence factors, their weighted
// aggregate, and the derived level. All factors and Overall are in [0,1].
type ConfidenceScores struct {
	SemanticRelevance float64         `json:"semantic_relevance"`
	SourceQuality     float64         `json:"source_quality"`
	Recency           float64         `json:"recency"`
	Consistency       float64         `json:"consistency"`
	Completeness      float64         `json:"completeness"`
	Overall           float64         `json:"overall"`
	Level             ConfidenceLevel `json:"level"`
}

// ScoredResult is a fused result with its confidence attached.
type ScoredResult struct {
	FusedResult
	Confidence ConfidenceScores `json:"confidence"`
}

// CascadeReason says why a cascade step fired.
type CascadeReason string

// Cascade reasons.
const (
	ReasonLowConfidence   CascadeReason = "low_confidence"
	ReasonEmptyPrimary    CascadeReason = "empty_primary"
	ReasonExplicitRequest CascadeReason = "explicit_request"
)

// CascadeStep records one escalation to an additional layer.
type CascadeStep struct {
	Layer LayerID `json:"layer"`
	// TriggeringConfidence is the aggregate confidence that caused the step.
	TriggeringConfidence float64       `json:"triggering_confidence"`
	Reason               CascadeReason `json:"reason"`
}

// LayerError records a non-fatal per-layer failure encountered during a pass.
type LayerError struct {
	Layer LayerID `json:"layer"`
	Kind  string  `json:"kind"`
}

// Explanation is the decision trail for one retrieval call. It lets
// callers distinguish "nothing matched" from "layers were unreachable".
type Explanation struct {
	QueryType      QueryType     `json:"query_type"`
	LayersSearched []LayerID     `json:"layers_searched"`
	CascadePath    []CascadeStep `json:"cascade_path"`
	Errors         []LayerError  `json:"errors_encountered,omitempty"`
}

// RetrievalResponse is the final answer for one retrieval call.
type RetrievalResponse struct {
	Results     map[LayerID][]*ScoredResult `json:"results_by_layer"`
	Explanation *Explanation                `json:"explanation,omitempty"`
	// Partial is set when the caller's deadline expired before the
	// cascade finished; Results holds whatever was assembled by then.
	Partial   bool   `json:"partial,omitempty"`
	RequestID string `json:"request_id"`
	QueryTime int64  `json:"query_time_ms"`
}

// TotalResults returns the number of scored results across all layers.
func (r *RetrievalResponse) TotalResults() int {
	n := 0
	for _, rs := range r.Results {
		n += len(rs)
	}
	return n
}
