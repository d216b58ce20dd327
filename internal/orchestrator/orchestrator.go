// Package orchestrator sequences one retrieval call: classification,
// concurrent layer dispatch, rank fusion, confidence scoring, and the
// confidence-triggered cascade. The orchestrator is stateless and
// reentrant; concurrent calls share only immutable configuration and
// the dispatch worker pool.
package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lucidmem/kioku/internal/cascade"
	"github.com/lucidmem/kioku/internal/classifier"
	"github.com/lucidmem/kioku/internal/config"
	"github.com/lucidmem/kioku/internal/confidence"
	"github.com/lucidmem/kioku/internal/fusion"
	"github.com/lucidmem/kioku/internal/layer"
	"github.com/lucidmem/kioku/internal/models"
)

// ErrAllLayersFailed is returned alongside the (empty) response when
// every queried layer failed in every attempted pass. Callers get the
// response with errors_encountered populated either way, so "nothing
// matched" and "nothing was reachable" stay distinguishable.
var ErrAllLayersFailed = errors.New("all layers failed")

// Options control one retrieve call.
type Options struct {
	// K overrides the query's k when positive.
	K int
	// Deadline overrides the configured overall deadline when positive.
	Deadline time.Duration
	// Explain attaches the decision trail to the response.
	Explain bool
	// Exhaustive cascades through the full fallback order regardless of
	// confidence.
	Exhaustive bool
}

// Orchestrator is the public retrieval entry point.
type Orchestrator struct {
	classifier *classifier.Classifier
	adapters   map[models.LayerID]layer.Adapter
	fuser      *fusion.Engine
	scorer     *confidence.Scorer
	cfg        *config.RetrievalConfig
	logger     *zap.Logger
	// workers bounds concurrent adapter queries across all requests.
	workers chan struct{}
	// now is the clock for recency scoring; identical queries against
	// unchanged layers score identically under a fixed clock.
	now func() time.Time
}

// New creates an orchestrator. adapters must cover every layer named in
// the configuration's primary and fallback tables (validated at config
// load against the known layer set).
func New(
	c *classifier.Classifier,
	adapters map[models.LayerID]layer.Adapter,
	fuser *fusion.Engine,
	scorer *confidence.Scorer,
	cfg *config.RetrievalConfig,
	logger *zap.Logger,
) *Orchestrator {
	return &Orchestrator{
		classifier: c,
		adapters:   adapters,
		fuser:      fuser,
		scorer:     scorer,
		cfg:        cfg,
		logger:     logger,
		workers:    make(chan struct{}, cfg.WorkerPoolSize),
		now:        time.Now,
	}
}

// Retrieve answers one query. It never fails on individual layer
// errors; those are recorded in the explanation and the remaining
// layers carry the response. The returned response is non-nil even when
// err is ErrAllLayersFailed.
func (o *Orchestrator) Retrieve(ctx context.Context, q *models.RetrievalQuery, opts *Options) (*models.RetrievalResponse, error) {
	start := o.now()
	if opts == nil {
		opts = &Options{Explain: true}
	}
	if opts.K > 0 {
		q.K = opts.K
	}
	if err := q.Validate(o.cfg.DefaultK, o.cfg.MaxK); err != nil {
		return nil, err
	}

	deadline := o.cfg.Deadline.Std()
	if opts.Deadline > 0 {
		deadline = opts.Deadline
	}
	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	requestID := uuid.NewString()
	queryType := o.classifier.Classify(q)
	o.logger.Debug("retrieve",
		zap.String("request_id", requestID),
		zap.String("query_type", string(queryType)),
		zap.Int("k", q.K),
	)

	ctrl := cascade.New(o.cfg, queryType, opts.Exhaustive)
	explain := &models.Explanation{QueryType: queryType}

	in := &layer.Input{Text: q.Text, K: o.cfg.TopKCandidates, Filters: q.Context}
	domain, _ := contextString(q.Context, "domain")
	now := start

	// Primary pass.
	primary := o.cfg.PrimaryLayers[queryType]
	ctrl.MarkQueried(primary...)
	explain.LayersSearched = append(explain.LayersSearched, primary...)
	sources, passErrs := o.dispatch(ctx, primary, in)
	explain.Errors = append(explain.Errors, passErrs...)

	var scored []*models.ScoredResult
	partial := false
	for {
		fused := o.fuser.Fuse(sources, q.K)
		scored = o.scorer.ScoreBatch(ctx, fused, domain, now)
		aggregate := confidence.MeanOverall(scored)

		if ctx.Err() != nil {
			partial = true
			break
		}
		next, ok := ctrl.Next(aggregate, len(scored))
		if !ok {
			break
		}
		o.logger.Debug("cascade step",
			zap.String("request_id", requestID),
			zap.String("layer", string(next)),
			zap.Float64("aggregate_confidence", aggregate),
		)
		explain.LayersSearched = append(explain.LayersSearched, next)
		stepSources, stepErrs := o.dispatch(ctx, []models.LayerID{next}, in)
		sources = append(sources, stepSources...)
		explain.Errors = append(explain.Errors, stepErrs...)
	}
	explain.CascadePath = ctrl.Path()

	resp := &models.RetrievalResponse{
		Results:   groupByLayer(projectFields(scored, q.Fields)),
		RequestID: requestID,
		Partial:   partial,
		QueryTime: o.now().Sub(start).Milliseconds(),
	}
	if opts.Explain {
		resp.Explanation = explain
	}

	if len(scored) == 0 && len(explain.Errors) > 0 && allFailed(explain) {
		o.logger.Warn("all layers failed",
			zap.String("request_id", requestID),
			zap.Int("errors", len(explain.Errors)),
		)
		return resp, ErrAllLayersFailed
	}
	return resp, nil
}

// allFailed reports whether every layer searched produced an error.
func allFailed(explain *models.Explanation) bool {
	failed := make(map[models.LayerID]bool, len(explain.Errors))
	for _, e := range explain.Errors {
		failed[e.Layer] = true
	}
	for _, l := range explain.LayersSearched {
		if !failed[l] {
			return false
		}
	}
	return len(explain.LayersSearched) > 0
}

// groupByLayer splits the merged top-k back out per layer, preserving
// fusion order within each layer's list.
func groupByLayer(scored []*models.ScoredResult) map[models.LayerID][]*models.ScoredResult {
	out := make(map[models.LayerID][]*models.ScoredResult)
	for _, r := range scored {
		out[r.Layer] = append(out[r.Layer], r)
	}
	return out
}

// projectFields applies the query's field projection. An empty list
// keeps everything; otherwise only the named result fields survive.
func projectFields(scored []*models.ScoredResult, fields []string) []*models.ScoredResult {
	if len(fields) == 0 {
		return scored
	}
	keep := make(map[string]bool, len(fields))
	for _, f := range fields {
		keep[f] = true
	}
	out := make([]*models.ScoredResult, len(scored))
	for i, r := range scored {
		projected := *r
		if !keep["content"] {
			projected.Content = ""
		}
		if !keep["tags"] {
			projected.Tags = nil
		}
		if !keep["metadata"] {
			projected.Metadata = nil
		}
		out[i] = &projected
	}
	return out
}

func contextString(ctx map[string]interface{}, key string) (string, bool) {
	if ctx == nil {
		return "", false
	}
	s, ok := ctx[key].(string)
	return s, ok && s != ""
}
