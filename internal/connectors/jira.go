package connectors

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/hyperjump/querylinker/internal/config"
	"github.com/hyperjump/querylinker/internal/models"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Jira searches issues with JQL full-text matching.
type Jira struct {
	client *jsonClient
}

func NewJira(cfg config.AtlassianConfig, limit rate.Limit, logger *zap.Logger) *Jira {
	return &Jira{
		client: newJSONClient(SystemJira, cfg.BaseURL, limit, func(r *http.Request) {
			r.SetBasicAuth(cfg.Email, cfg.APIToken)
		}, logger),
	}
}

func (j *Jira) System() string { return SystemJira }

type jiraSearchResponse struct {
	Issues []struct {
		ID     string `json:"id"`
		Key    string `json:"key"`
		Fields struct {
			Summary     string `json:"summary"`
			Description string `json:"description"`
		} `json:"fields"`
	} `json:"issues"`
}

func (j *Jira) Search(ctx context.Context, query string, limit int) ([]*models.SearchResult, error) {
	params := url.Values{}
	params.Set("jql", "text ~ "+quoteQuery(query)+" ORDER BY updated DESC")
	params.Set("maxResults", strconv.Itoa(limit))
	params.Set("fields", "summary,description")

	var resp jiraSearchResponse
	if err := j.client.get(ctx, "/rest/api/2/search", params, &resp); err != nil {
		return nil, err
	}

	results := make([]*models.SearchResult, 0, len(resp.Issues))
	for _, issue := range resp.Issues {
		results = append(results, &models.SearchResult{
			System:  SystemJira,
			Title:   issue.Fields.Summary,
			ID:      issue.Key,
			Snippet: snippet(issue.Fields.Description),
			Link:    j.client.baseURL + "/browse/" + issue.Key,
		})
	}
	return limitResults(results, limit), nil
}

func limitResults(results []*models.SearchResult, limit int) []*models.SearchResult {
	if limit > 0 && len(results) > limit {
		return results[:limit]
	}
	return results
}
