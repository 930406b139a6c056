// Package vector provides a transient in-memory vector index used to rank
// search results against a query embedding.
package vector

import "context"

// Index stores vectors under string IDs and answers top-k similarity queries.
type Index interface {
	Add(ctx context.Context, ids []string, vectors [][]float32) error
	Search(ctx context.Context, query []float32, k int) ([]*Result, error)
	Size() int
	Close() error
}

// Result is a single similarity hit.
type Result struct {
	ID    string
	Score float64 // inner product; cosine similarity when inputs are normalized
}
