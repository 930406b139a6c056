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

// Slack searches messages visible to the configured user token.
type Slack struct {
	client *jsonClient
}

func NewSlack(cfg config.SlackConfig, limit rate.Limit, logger *zap.Logger) *Slack {
	return &Slack{
		client: newJSONClient(SystemSlack, cfg.BaseURL, limit, func(r *http.Request) {
			r.Header.Set("Authorization", "Bearer "+cfg.Token)
		}, logger),
	}
}

func (s *Slack) System() string { return SystemSlack }

type slackSearchResponse struct {
	OK       bool   `json:"ok"`
	Error    string `json:"error"`
	Messages struct {
		Matches []struct {
			IID       string `json:"iid"`
			TS        string `json:"ts"`
			Text      string `json:"text"`
			Permalink string `json:"permalink"`
			Username  string `json:"username"`
			Channel   struct {
				Name string `json:"name"`
			} `json:"channel"`
		} `json:"matches"`
	} `json:"messages"`
}

func (s *Slack) Search(ctx context.Context, query string, limit int) ([]*models.SearchResult, error) {
	params := url.Values{}
	params.Set("query", query)
	params.Set("count", strconv.Itoa(limit))

	var resp slackSearchResponse
	if err := s.client.get(ctx, "/search.messages", params, &resp); err != nil {
		return nil, err
	}
	// Slack reports failures in the body with a 200 status.
	if !resp.OK {
		return nil, &APIError{System: SystemSlack, StatusCode: http.StatusOK, Message: resp.Error}
	}

	results := make([]*models.SearchResult, 0, len(resp.Messages.Matches))
	for _, m := range resp.Messages.Matches {
		title := "#" + m.Channel.Name
		if m.Username != "" {
			title += " (" + m.Username + ")"
		}
		id := m.IID
		if id == "" {
			id = m.TS
		}
		results = append(results, &models.SearchResult{
			System:  SystemSlack,
			Title:   title,
			ID:      id,
			Snippet: snippet(m.Text),
			Link:    m.Permalink,
		})
	}
	return limitResults(results, limit), nil
}
