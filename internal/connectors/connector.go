// Package connectors queries the external systems support staff search across.
// Each connector turns a free-text query into at most limit SearchResults.
package connectors

import (
	"context"
	"sort"
	"sync"

	"github.com/hyperjump/querylinker/internal/config"
	"github.com/hyperjump/querylinker/internal/models"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// System identifiers as they appear in SearchRequest.Systems.
const (
	SystemJira       = "jira"
	SystemConfluence = "confluence"
	SystemGitHub     = "github"
	SystemServiceNow = "servicenow"
	SystemSlack      = "slack"
)

// systemOrder is the order used when a request does not name any systems.
var systemOrder = []string{SystemJira, SystemConfluence, SystemGitHub, SystemServiceNow, SystemSlack}

// snippetMaxLen bounds snippet length in runes.
const snippetMaxLen = 300

// Connector searches one external system.
type Connector interface {
	System() string
	Search(ctx context.Context, query string, limit int) ([]*models.SearchResult, error)
}

// Registry holds the connectors that are configured for this deployment.
type Registry struct {
	mu         sync.RWMutex
	connectors map[string]Connector
}

// NewRegistry registers a connector for every system with credentials in cfg.
func NewRegistry(cfg config.ConnectorsConfig, logger *zap.Logger) (*Registry, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Registry{connectors: make(map[string]Connector)}
	limit := rate.Limit(cfg.RequestsPerSecond)

	if cfg.Jira.Enabled() {
		r.Register(NewJira(cfg.Jira, limit, logger))
	}
	if cfg.Confluence.Enabled() {
		r.Register(NewConfluence(cfg.Confluence, limit, logger))
	}
	if cfg.GitHub.Enabled() {
		gh, err := NewGitHub(cfg.GitHub, limit, logger)
		if err != nil {
			return nil, err
		}
		r.Register(gh)
	}
	if cfg.ServiceNow.Enabled() {
		r.Register(NewServiceNow(cfg.ServiceNow, limit, logger))
	}
	if cfg.Slack.Enabled() {
		r.Register(NewSlack(cfg.Slack, limit, logger))
	}

	logger.Info("connectors registered", zap.Strings("systems", r.Systems()))
	return r, nil
}

// NewStaticRegistry builds a registry from ready-made connectors.
func NewStaticRegistry(connectors ...Connector) *Registry {
	r := &Registry{connectors: make(map[string]Connector, len(connectors))}
	for _, c := range connectors {
		r.Register(c)
	}
	return r
}

// Register adds or replaces the connector for c.System().
func (r *Registry) Register(c Connector) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connectors[c.System()] = c
}

// Get returns the connector for system.
func (r *Registry) Get(system string) (Connector, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.connectors[system]
	return c, ok
}

// Systems lists the registered systems, known systems first in their usual order.
func (r *Registry) Systems() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.connectors))
	known := make(map[string]bool, len(systemOrder))
	for _, s := range systemOrder {
		known[s] = true
		if _, ok := r.connectors[s]; ok {
			out = append(out, s)
		}
	}
	var extra []string
	for s := range r.connectors {
		if !known[s] {
			extra = append(extra, s)
		}
	}
	sort.Strings(extra)
	return append(out, extra...)
}
