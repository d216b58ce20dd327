// Package store provides the SQLite-backed memory store behind the
// retrieval layers.
package store

import (
	"time"
)

// Record is one memory row in its layer-neutral shape. Score is the
// store's native match score for the search that produced the record;
// layer adapters normalize it into a LayerResult.
type Record struct {
	ID        string
	Content   string
	Tags      []string
	Metadata  map[string]interface{}
	Timestamp time.Time
	Score     float64
}
