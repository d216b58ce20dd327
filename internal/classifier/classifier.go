// Package classifier maps query text to a query type using an ordered,
// data-driven rule table. Rules are evaluated in priority order because
// the vocabularies overlap: planning phrases must win over generic
// "how to" matching, so the planning rule sits earlier in the table.
package classifier

import (
	"strings"
	"sync"

	"github.com/lucidmem/kioku/internal/models"
)

// Rule maps a set of trigger phrases to a query type. A rule matches
// when any phrase occurs in the lowercased query text.
type Rule struct {
	Type    models.QueryType `yaml:"type"`
	Phrases []string         `yaml:"phrases"`
}

// Classifier evaluates rules in order and falls back to factual.
// It is safe for concurrent use; Replace swaps the table atomically.
type Classifier struct {
	mu    sync.RWMutex
	rules []Rule
}

// New creates a classifier with the given rule table. A nil or empty
// table means every query classifies as factual.
func New(rules []Rule) *Classifier {
	return &Classifier{rules: rules}
}

// Classify returns the query type for q. Recent conversation turns are
// included in matching so that a short follow-up query ("and before
// that?") inherits the vocabulary of the exchange. Never fails; no match
// is the factual default, not an error.
func (c *Classifier) Classify(q *models.RetrievalQuery) models.QueryType {
	text := strings.ToLower(q.Text)

	c.mu.RLock()
	rules := c.rules
	c.mu.RUnlock()

	if t, ok := matchRules(rules, text); ok {
		return t
	}
	// Fall back to the last couple of turns for context.
	for i := len(q.History) - 1; i >= 0 && i >= len(q.History)-2; i-- {
		if t, ok := matchRules(rules, strings.ToLower(q.History[i].Content)); ok {
			return t
		}
	}
	return models.QueryFactual
}

// Replace atomically swaps the rule table.
func (c *Classifier) Replace(rules []Rule) {
	c.mu.Lock()
	c.rules = rules
	c.mu.Unlock()
}

// Rules returns the current rule table (shared slice; callers must not
// mutate it).
func (c *Classifier) Rules() []Rule {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.rules
}

func matchRules(rules []Rule, text string) (models.QueryType, bool) {
	for _, r := range rules {
		for _, p := range r.Phrases {
			if p != "" && strings.Contains(text, p) {
				return r.Type, true
			}
		}
	}
	return "", false
}

// DefaultRules returns the built-in rule table. Order matters: planning
// before procedural, so "strategy to deploy" is planning, not procedural.
func DefaultRules() []Rule {
	return []Rule{
		{Type: models.QueryTemporal, Phrases: []string{
			"what happened", "when did", "last week", "last month", "yesterday",
			"recently", "earlier today", "history of", "timeline", "in the past",
		}},
		{Type: models.QueryRelational, Phrases: []string{
			"related to", "connected to", "relationship between", "depends on",
			"who owns", "linked to", "associated with",
		}},
		{Type: models.QueryPlanning, Phrases: []string{
			"plan for", "decompose", "strategy", "break down", "roadmap",
			"approach for", "steps to achieve",
		}},
		{Type: models.QueryProcedural, Phrases: []string{
			"how do i", "how to", "procedure", "workflow", "deploy",
			"set up", "configure", "install", "run the",
		}},
		{Type: models.QueryProspective, Phrases: []string{
			"remind", "todo", "to do", "due", "upcoming", "scheduled",
			"don't forget", "pending task",
		}},
		{Type: models.QueryMeta, Phrases: []string{
			"how reliable", "how confident", "do you know about",
			"memory quality", "how well do you know", "expertise in",
		}},
	}
}
