// Package search fans a query out to the configured connectors and merges
// their results, optionally re-ranking them by semantic similarity.
package search

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hyperjump/querylinker/internal/config"
	"github.com/hyperjump/querylinker/internal/connectors"
	"github.com/hyperjump/querylinker/internal/embedding"
	"github.com/hyperjump/querylinker/internal/models"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrUnknownSystem is returned when a request names a system with no configured connector.
var ErrUnknownSystem = errors.New("unknown system")

// Engine runs federated searches.
type Engine struct {
	registry *connectors.Registry
	ranker   *Ranker
	config   config.SearchConfig
	logger   *zap.Logger
}

// NewEngine creates a search engine. embedder may be nil, in which case semantic
// requests fail with ErrSemanticRanking.
func NewEngine(registry *connectors.Registry, embedder embedding.Embedder, cfg config.SearchConfig, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		registry: registry,
		ranker:   NewRanker(embedder),
		config:   cfg,
		logger:   logger,
	}
}

// Systems lists the systems a request may target.
func (e *Engine) Systems() []string {
	return e.registry.Systems()
}

// Search validates req in place, queries every target connector concurrently and
// returns the merged response. A connector failure is reported in Errors and
// does not fail the search.
func (e *Engine) Search(ctx context.Context, req *models.SearchRequest) (*models.SearchResponse, error) {
	startTime := time.Now()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if e.config.MaxResults > 0 && req.MaxResults > e.config.MaxResults {
		req.MaxResults = e.config.MaxResults
	}

	targets, err := e.resolve(req.Systems)
	if err != nil {
		return nil, err
	}

	perSystem := make([][]*models.SearchResult, len(targets))
	failures := make(map[string]string)
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	if e.config.MaxConcurrent > 0 {
		g.SetLimit(e.config.MaxConcurrent)
	}
	for i, c := range targets {
		g.Go(func() error {
			cctx := gctx
			if e.config.ConnectorTimeout > 0 {
				var cancel context.CancelFunc
				cctx, cancel = context.WithTimeout(gctx, e.config.ConnectorTimeout)
				defer cancel()
			}
			results, err := c.Search(cctx, req.Query, req.MaxResults)
			if err != nil {
				var apiErr *connectors.APIError
				if errors.As(err, &apiErr) && apiErr.IsAuthError() {
					e.logger.Error("connector rejected credentials",
						zap.String("system", c.System()),
						zap.Int("status", apiErr.StatusCode),
					)
				} else {
					e.logger.Warn("connector search failed",
						zap.String("system", c.System()),
						zap.Error(err),
					)
				}
				mu.Lock()
				failures[c.System()] = err.Error()
				mu.Unlock()
				return nil
			}
			perSystem[i] = results
			return nil
		})
	}
	// Connector failures land in failures so one system cannot cancel the
	// others; Wait only reports a nil error.
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	suggestions := aggregate(perSystem, req.MaxResults)
	if req.UseSemantic {
		if err := e.ranker.Rank(ctx, req.Query, suggestions); err != nil {
			return nil, err
		}
	}

	resp := &models.SearchResponse{
		Suggestions: suggestions,
		Query:       req.Query,
		QueryTime:   time.Since(startTime).Milliseconds(),
		Semantic:    req.UseSemantic,
	}
	if len(failures) > 0 {
		resp.Errors = failures
	}
	e.logger.Debug("search completed",
		zap.String("query", req.Query),
		zap.Int("systems", len(targets)),
		zap.Int("results", len(suggestions)),
		zap.Int("failed", len(failures)),
		zap.Int64("query_time_ms", resp.QueryTime),
	)
	return resp, nil
}

// resolve maps requested systems to connectors. An empty request targets all of them.
func (e *Engine) resolve(systems []string) ([]connectors.Connector, error) {
	if len(systems) == 0 {
		systems = e.registry.Systems()
	}
	targets := make([]connectors.Connector, 0, len(systems))
	for _, s := range systems {
		c, ok := e.registry.Get(s)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownSystem, s)
		}
		targets = append(targets, c)
	}
	return targets, nil
}

// aggregate concatenates per-system results in target order and caps the total.
func aggregate(perSystem [][]*models.SearchResult, limit int) []*models.SearchResult {
	out := make([]*models.SearchResult, 0, limit)
	for _, results := range perSystem {
		for _, r := range results {
			if len(out) == limit {
				return out
			}
			out = append(out, r)
		}
	}
	return out
}
