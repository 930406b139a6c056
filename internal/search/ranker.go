package search

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/hyperjump/querylinker/internal/embedding"
	"github.com/hyperjump/querylinker/internal/models"
	"github.com/hyperjump/querylinker/internal/vector"
)

// ErrSemanticRanking wraps any failure to embed or score results.
var ErrSemanticRanking = errors.New("semantic ranking failed")

// Ranker orders results by similarity between the query and each result's text.
type Ranker struct {
	embedder embedding.Embedder
	newIndex func(dimensions int) (vector.Index, error)
}

func NewRanker(embedder embedding.Embedder) *Ranker {
	return &Ranker{embedder: embedder, newIndex: newMemoryIndex}
}

func newMemoryIndex(dimensions int) (vector.Index, error) {
	return vector.NewMemoryIndex(dimensions)
}

// Rank embeds the query and every result in one batch, sets each result's Score
// and reorders results in place by descending score. Ties keep their order.
func (r *Ranker) Rank(ctx context.Context, query string, results []*models.SearchResult) error {
	if len(results) == 0 {
		return nil
	}
	if r.embedder == nil {
		return fmt.Errorf("%w: no embedder configured", ErrSemanticRanking)
	}

	texts := make([]string, 0, len(results)+1)
	texts = append(texts, query)
	for _, res := range results {
		texts = append(texts, res.Title+" "+res.Snippet)
	}
	vecs, err := r.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSemanticRanking, err)
	}
	if len(vecs) != len(texts) || len(vecs[0]) == 0 {
		return fmt.Errorf("%w: expected %d embeddings, got %d", ErrSemanticRanking, len(texts), len(vecs))
	}

	idx, err := r.newIndex(len(vecs[0]))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSemanticRanking, err)
	}
	defer idx.Close()

	ids := make([]string, len(results))
	for i := range results {
		ids[i] = strconv.Itoa(i)
	}
	if err := idx.Add(ctx, ids, vecs[1:]); err != nil {
		return fmt.Errorf("%w: %w", ErrSemanticRanking, err)
	}
	if n := idx.Size(); n != len(results) {
		return fmt.Errorf("%w: indexed %d of %d results", ErrSemanticRanking, n, len(results))
	}
	hits, err := idx.Search(ctx, vecs[0], len(results))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSemanticRanking, err)
	}

	ranked := make([]*models.SearchResult, 0, len(results))
	for _, h := range hits {
		i, _ := strconv.Atoi(h.ID)
		res := results[i]
		res.Score = h.Score
		ranked = append(ranked, res)
	}
	copy(results, ranked)
	return nil
}
