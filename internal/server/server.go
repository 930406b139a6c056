// Package server provides the HTTP API consumed by the QueryLinker UI.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hyperjump/querylinker/internal/auth"
	"github.com/hyperjump/querylinker/internal/config"
	"github.com/hyperjump/querylinker/internal/models"
	"github.com/hyperjump/querylinker/internal/storage"
	"go.uber.org/zap"
)

// Searcher runs federated searches. *search.Engine implements it.
type Searcher interface {
	Search(ctx context.Context, req *models.SearchRequest) (*models.SearchResponse, error)
	Systems() []string
}

// Mailer sends transactional email. *mail.Dispatcher implements it.
type Mailer interface {
	SendEmail(ctx context.Context, recipient, subject, html, text string) models.EmailResult
	SendPasswordReset(ctx context.Context, name, resetLink, recipient string) models.EmailResult
}

// Dependencies are the services the HTTP handlers call into.
type Dependencies struct {
	Search   Searcher
	Google   *auth.GoogleAuth
	Tokens   *auth.Tokens
	Users    storage.UserStore
	Mailer   Mailer
	Embedder string // name of the configured embedding provider, for status output
}

// Server is the HTTP server for the QueryLinker API.
type Server struct {
	deps   Dependencies
	config *config.Config
	logger *zap.Logger
	server *http.Server
}

// NewServer creates a server with the given dependencies.
func NewServer(deps Dependencies, cfg *config.Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		deps:   deps,
		config: cfg,
		logger: logger,
	}
}

// Router builds the HTTP handler with all routes and middleware.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Compress(5))

	r.Get("/health", s.handleHealth)
	r.Get("/api/status", s.handleStatus)

	r.Route("/api/querylinker", func(r chi.Router) {
		r.Post("/enhanced-search", s.handleEnhancedSearch)
		r.Get("/systems", s.handleSystems)
	})

	r.Route("/api/auth", func(r chi.Router) {
		r.Get("/google/url", s.handleGoogleURL)
		r.Post("/google/callback", s.handleGoogleCallback)
		r.Post("/google/verify", s.handleGoogleVerify)
		r.Get("/me", s.handleMe)
		r.Post("/password-reset", s.handlePasswordReset)
		r.Post("/password-reset/verify", s.handlePasswordResetVerify)
	})

	r.Post("/api/email/test", s.handleTestEmail)
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
