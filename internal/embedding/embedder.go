// Package embedding turns text into vectors for semantic ranking, either through a
// remote embedding API or a deterministic local hash.
package embedding

import "context"

// Embedder produces one vector per input text, in input order.
// An empty input yields an empty output without contacting any provider.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Name() string
	Close() error
}
