// Package models defines the data exchanged between the HTTP API, the search
// orchestrator, the auth adapter and the mail dispatcher.
package models

import (
	"errors"
	"strings"
)

// Result limits applied by SearchRequest.Validate.
const (
	DefaultMaxResults = 10
	MaxResultsCap     = 100
)

// ErrEmptyQuery is returned when a search request carries no query text.
var ErrEmptyQuery = errors.New("query cannot be empty")

// SearchRequest is a single search submission from the UI.
type SearchRequest struct {
	Query       string   `json:"query"`
	Systems     []string `json:"systems,omitempty"`
	MaxResults  int      `json:"maxResults,omitempty"`
	UseSemantic bool     `json:"use_semantic,omitempty"`
}

// Validate trims the query, normalizes the system set and clamps MaxResults.
// Systems are lower-cased and de-duplicated keeping first-seen order.
func (r *SearchRequest) Validate() error {
	r.Query = strings.TrimSpace(r.Query)
	if r.Query == "" {
		return ErrEmptyQuery
	}
	if r.MaxResults <= 0 {
		r.MaxResults = DefaultMaxResults
	}
	if r.MaxResults > MaxResultsCap {
		r.MaxResults = MaxResultsCap
	}
	seen := make(map[string]bool, len(r.Systems))
	systems := make([]string, 0, len(r.Systems))
	for _, s := range r.Systems {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		systems = append(systems, s)
	}
	r.Systems = systems
	return nil
}

// SearchResult is one hit returned by a connector.
type SearchResult struct {
	System  string  `json:"system"`
	Title   string  `json:"title"`
	ID      string  `json:"id"`
	Snippet string  `json:"snippet"`
	Link    string  `json:"link"`
	Score   float64 `json:"score,omitempty"`
}

// SearchResponse is the body of a successful enhanced-search call.
type SearchResponse struct {
	Suggestions []*SearchResult `json:"suggestions"`
	Query       string          `json:"query"`
	QueryTime   int64           `json:"query_time_ms"`
	// Semantic is true when Suggestions are ordered by similarity score.
	Semantic bool `json:"semantic"`
	// Errors maps a system to the reason its connector failed; other systems still contribute.
	Errors map[string]string `json:"errors,omitempty"`
}
