// Package models defines the shared data structures for Kioku: memory
// layers, retrieval queries, fused results, and confidence scores.
package models

import "time"

// LayerID names one of the memory layers.
type LayerID string

// The seven memory layers.
const (
	LayerEpisodic    LayerID = "episodic"
	LayerSemantic    LayerID = "semantic"
	LayerLexical     LayerID = "lexical"
	LayerProcedural  LayerID = "procedural"
	LayerProspective LayerID = "prospective"
	LayerGraph       LayerID = "graph"
	LayerMeta        LayerID = "meta"
)

// AllLayers lists every layer in a fixed order.
var AllLayers = []LayerID{
	LayerEpisodic,
	LayerSemantic,
	LayerLexical,
	LayerProcedural,
	LayerProspective,
	LayerGraph,
	LayerMeta,
}

// KnownLayer reports whether id names one of the memory layers.
func KnownLayer(id LayerID) bool {
	for _, l := range AllLayers {
		if l == id {
			return true
		}
	}
	return false
}

// FactLayer reports whether id names a view over the shared fact
// store. The semantic and lexical layers retrieve differently but
// hydrate the same fact rows, so their hits carry one identity through
// fusion and the write path maintains both indices together.
func FactLayer(id LayerID) bool {
	return id == LayerSemantic || id == LayerLexical
}

// MemoryInput is one record to store into a layer.
type MemoryInput struct {
	Layer    LayerID                `json:"layer"`
	Content  string                 `json:"content"`
	Tags     []string               `json:"tags,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
	// Timestamp defaults to now when zero.
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// LayerResult is one raw hit returned by a layer adapter, before fusion.
// RawScore is the layer's native relevance in [0,1]; scores are only
// compared within a single layer's list, never across layers.
type LayerResult struct {
	Layer     LayerID                `json:"layer"`
	ID        string                 `json:"id"`
	Content   string                 `json:"content"`
	RawScore  float64                `json:"raw_score"`
	Timestamp time.Time              `json:"timestamp,omitempty"`
	Tags      []string               `json:"tags,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// HasTimestamp reports whether the result carries a usable timestamp.
func (r *LayerResult) HasTimestamp() bool {
	return !r.Timestamp.IsZero()
}
