// Package keyword provides the BM25 lexical index over fact memories.
package keyword

import "context"

// Result is a single lexical search hit.
type Result struct {
	ID    string
	Score float64
}

// Fields is what the lexical index stores per fact.
type Fields struct {
	Content string `json:"content"`
	Tags    string `json:"tags"`
}

// Index defines lexical indexing and search for the lexical layer.
type Index interface {
	Index(ctx context.Context, id string, fields *Fields) error
	Search(ctx context.Context, query string, limit int) ([]*Result, error)
	Delete(ctx context.Context, id string) error
	Count() (uint64, error)
	Close() error
}
