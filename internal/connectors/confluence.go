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

// Confluence searches page content with CQL.
type Confluence struct {
	client *jsonClient
}

func NewConfluence(cfg config.AtlassianConfig, limit rate.Limit, logger *zap.Logger) *Confluence {
	return &Confluence{
		client: newJSONClient(SystemConfluence, cfg.BaseURL, limit, func(r *http.Request) {
			r.SetBasicAuth(cfg.Email, cfg.APIToken)
		}, logger),
	}
}

func (c *Confluence) System() string { return SystemConfluence }

type confluenceSearchResponse struct {
	Results []struct {
		ID      string `json:"id"`
		Title   string `json:"title"`
		Excerpt string `json:"excerpt"`
		Links   struct {
			WebUI string `json:"webui"`
		} `json:"_links"`
	} `json:"results"`
}

func (c *Confluence) Search(ctx context.Context, query string, limit int) ([]*models.SearchResult, error) {
	params := url.Values{}
	params.Set("cql", "text ~ "+quoteQuery(query))
	params.Set("limit", strconv.Itoa(limit))

	var resp confluenceSearchResponse
	if err := c.client.get(ctx, "/wiki/rest/api/content/search", params, &resp); err != nil {
		return nil, err
	}

	results := make([]*models.SearchResult, 0, len(resp.Results))
	for _, r := range resp.Results {
		results = append(results, &models.SearchResult{
			System:  SystemConfluence,
			Title:   r.Title,
			ID:      r.ID,
			Snippet: snippet(r.Excerpt),
			Link:    c.client.baseURL + "/wiki" + r.Links.WebUI,
		})
	}
	return limitResults(results, limit), nil
}
