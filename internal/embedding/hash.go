package embedding

import (
	"context"

	"github.com/hyperjump/querylinker/pkg/utils"
)

// HashEmbedder is the development fallback. It scatters each rune's code point into a
// fixed-size accumulator at a slot derived from its position and value, then
// L2-normalizes. The same text always yields the same vector; the vectors carry no
// semantics.
type HashEmbedder struct {
	dimensions int
}

// NewHashEmbedder returns a hash embedder producing vectors of the given dimensions.
func NewHashEmbedder(dimensions int) *HashEmbedder {
	if dimensions <= 0 {
		dimensions = 384
	}
	return &HashEmbedder{dimensions: dimensions}
}

// Embed returns one hash vector per text.
func (e *HashEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		embeddings[i] = e.vector(text)
	}
	return embeddings, nil
}

func (e *HashEmbedder) vector(text string) []float32 {
	acc := make([]float32, e.dimensions)
	pos := 0
	for _, r := range text {
		code := int(r)
		acc[(pos*31+code)%e.dimensions] += float32(code) / 255
		pos++
	}
	utils.NormalizeL2(acc)
	return acc
}

// Dimensions returns the embedding dimension.
func (e *HashEmbedder) Dimensions() int {
	return e.dimensions
}

// Name identifies the provider in logs and status output.
func (e *HashEmbedder) Name() string {
	return "hash"
}

// Close is a no-op for HashEmbedder.
func (e *HashEmbedder) Close() error {
	return nil
}
