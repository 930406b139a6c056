package connectors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	gh "github.com/google/go-github/v80/github"
	"github.com/hyperjump/querylinker/internal/config"
	"github.com/hyperjump/querylinker/internal/models"
	"github.com/hyperjump/querylinker/pkg/utils"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

// GitHub searches issues and pull requests through the GitHub search API.
type GitHub struct {
	gh      *gh.Client
	org     string
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewGitHub creates a GitHub connector. A non-empty BaseURL targets GitHub Enterprise.
func NewGitHub(cfg config.GitHubConfig, limit rate.Limit, logger *zap.Logger) (*GitHub, error) {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token})
	tc := oauth2.NewClient(context.Background(), ts)
	tc.Timeout = defaultHTTPTimeout

	client := gh.NewClient(tc)
	if cfg.BaseURL != "" {
		var err error
		client, err = client.WithEnterpriseURLs(cfg.BaseURL, cfg.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("github: invalid base url: %w", err)
		}
	}
	if limit <= 0 {
		limit = rate.Inf
	}
	return &GitHub{
		gh:      client,
		org:     cfg.Org,
		limiter: rate.NewLimiter(limit, 1),
		logger:  utils.Named(logger, SystemGitHub),
	}, nil
}

func (g *GitHub) System() string { return SystemGitHub }

func (g *GitHub) Search(ctx context.Context, query string, limit int) ([]*models.SearchResult, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	q := query
	if g.org != "" {
		q += " org:" + g.org
	}
	perPage := limit
	if perPage <= 0 || perPage > 100 {
		perPage = 100
	}
	res, _, err := g.gh.Search.Issues(ctx, q, &gh.SearchOptions{
		ListOptions: gh.ListOptions{PerPage: perPage},
	})
	if err != nil {
		return nil, g.wrapError(err)
	}

	results := make([]*models.SearchResult, 0, len(res.Issues))
	for _, issue := range res.Issues {
		results = append(results, &models.SearchResult{
			System:  SystemGitHub,
			Title:   issue.GetTitle(),
			ID:      fmt.Sprintf("%s#%d", repoFullName(issue.GetRepositoryURL()), issue.GetNumber()),
			Snippet: snippet(issue.GetBody()),
			Link:    issue.GetHTMLURL(),
		})
	}
	g.logger.Debug("search completed", zap.Int("total", res.GetTotal()), zap.Int("returned", len(results)))
	return limitResults(results, limit), nil
}

func (g *GitHub) wrapError(err error) error {
	var rateErr *gh.RateLimitError
	if errors.As(err, &rateErr) {
		return &APIError{System: SystemGitHub, StatusCode: http.StatusTooManyRequests, Message: rateErr.Message}
	}
	var ghErr *gh.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil {
		return &APIError{System: SystemGitHub, StatusCode: ghErr.Response.StatusCode, Message: ghErr.Message}
	}
	return fmt.Errorf("github search: %w", err)
}

// repoFullName turns https://api.github.com/repos/owner/name into owner/name.
func repoFullName(repositoryURL string) string {
	if i := strings.Index(repositoryURL, "/repos/"); i >= 0 {
		return repositoryURL[i+len("/repos/"):]
	}
	return repositoryURL
}
