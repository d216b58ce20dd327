// Package vector provides an in-memory vector index over fact embeddings.
package vector

import "context"

// Result is a single similarity hit.
type Result struct {
	ID    string
	Score float64 // cosine similarity for unit vectors
}

// Index defines embedding storage and similarity search for the
// semantic layer.
type Index interface {
	Add(ctx context.Context, id string, embedding []float32) error
	Search(ctx context.Context, query []float32, k int) ([]*Result, error)
	Remove(ctx context.Context, id string) error
	Save(path string) error
	Load(path string) error
	Size() int
}
