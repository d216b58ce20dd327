// Package cascade decides when retrieval escalates to additional
// layers. The controller is an explicit state machine rather than
// nested fallback conditionals: states and transitions are enumerated,
// escalation depth is bounded, and every transition is recorded for the
// response explanation.
package cascade

import (
	"github.com/lucidmem/kioku/internal/config"
	"github.com/lucidmem/kioku/internal/models"
)

// State of the controller.
type State string

// Controller states. A request starts in primary, escalates zero or
// more times, and always ends terminal.
const (
	StatePrimary    State = "primary"
	StateEscalating State = "escalating"
	StateTerminal   State = "terminal"
)

// Controller drives the cascade for one retrieval request. It is not
// safe for concurrent use; each request gets its own controller.
type Controller struct {
	threshold float64
	maxDepth  int
	fallback  []models.LayerID
	// force escalates through the fallback order regardless of
	// confidence (caller asked for an exhaustive search).
	force bool

	state   State
	depth   int
	queried map[models.LayerID]bool
	path    []models.CascadeStep
}

// New creates a controller for one request of the given query type.
func New(cfg *config.RetrievalConfig, queryType models.QueryType, force bool) *Controller {
	return &Controller{
		threshold: cfg.CascadeThreshold,
		maxDepth:  cfg.MaxCascadeDepth,
		fallback:  cfg.FallbackOrder[queryType],
		force:     force,
		state:     StatePrimary,
		queried:   make(map[models.LayerID]bool),
	}
}

// MarkQueried records layers that have been queried in this request.
// A marked layer is never selected again, which guarantees termination
// independent of the depth bound.
func (c *Controller) MarkQueried(layers ...models.LayerID) {
	for _, l := range layers {
		c.queried[l] = true
	}
}

// Queried reports whether a layer has already been queried.
func (c *Controller) Queried(layer models.LayerID) bool {
	return c.queried[layer]
}

// Next evaluates the merged batch after a pass and either returns the
// next layer to escalate into, or transitions to terminal and returns
// ok=false. confidence is the aggregate (mean overall) of the current
// top-k; resultCount its size.
func (c *Controller) Next(confidence float64, resultCount int) (models.LayerID, bool) {
	if c.state == StateTerminal {
		return "", false
	}

	reason, shouldEscalate := c.trigger(confidence, resultCount)
	if !shouldEscalate || c.depth >= c.maxDepth {
		c.state = StateTerminal
		return "", false
	}

	layer, ok := c.nextFallback()
	if !ok {
		// Fallback order exhausted.
		c.state = StateTerminal
		return "", false
	}

	c.state = StateEscalating
	c.depth++
	c.queried[layer] = true
	c.path = append(c.path, models.CascadeStep{
		Layer:                layer,
		TriggeringConfidence: confidence,
		Reason:               reason,
	})
	return layer, true
}

func (c *Controller) trigger(confidence float64, resultCount int) (models.CascadeReason, bool) {
	if c.force {
		return models.ReasonExplicitRequest, true
	}
	if resultCount == 0 && c.state == StatePrimary {
		return models.ReasonEmptyPrimary, true
	}
	if confidence < c.threshold {
		return models.ReasonLowConfidence, true
	}
	return "", false
}

func (c *Controller) nextFallback() (models.LayerID, bool) {
	for _, l := range c.fallback {
		if !c.queried[l] {
			return l, true
		}
	}
	return "", false
}

// State returns the controller's current state.
func (c *Controller) State() State {
	return c.state
}

// Path returns the cascade steps taken so far.
func (c *Controller) Path() []models.CascadeStep {
	return c.path
}
