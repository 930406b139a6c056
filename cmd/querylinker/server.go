package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/hyperjump/querylinker/internal/auth"
	"github.com/hyperjump/querylinker/internal/config"
	"github.com/hyperjump/querylinker/internal/connectors"
	"github.com/hyperjump/querylinker/internal/embedding"
	"github.com/hyperjump/querylinker/internal/mail"
	"github.com/hyperjump/querylinker/internal/search"
	"github.com/hyperjump/querylinker/internal/server"
	"github.com/hyperjump/querylinker/internal/storage"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServerCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "server",
		Short: "Start the HTTP API server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := opts.setup()
			if err != nil {
				return err
			}
			defer logger.Sync()
			return runServer(cfg, logger)
		},
	}
}

// Components holds initialized services.
type Components struct {
	Users      *storage.SQLiteStorage
	Embedder   embedding.Embedder
	Registry   *connectors.Registry
	Engine     *search.Engine
	Google     *auth.GoogleAuth
	Tokens     *auth.Tokens
	Dispatcher *mail.Dispatcher
}

func (c *Components) Close() {
	if c.Users != nil {
		_ = c.Users.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.Dispatcher != nil {
		_ = c.Dispatcher.Close()
	}
}

func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Components, error) {
	c := &Components{}
	if dir := filepath.Dir(cfg.Storage.DatabasePath); cfg.Storage.DatabasePath != ":memory:" && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	users, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	c.Users = users

	embedder, err := embedding.NewEmbedder(ctx, cfg.Embedding, logger.Named("embedding"))
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}
	c.Embedder = embedder

	registry, err := connectors.NewRegistry(cfg.Connectors, logger.Named("connectors"))
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize connectors: %w", err)
	}
	c.Registry = registry
	c.Engine = search.NewEngine(registry, embedder, cfg.Search, logger.Named("search"))

	c.Google = auth.NewGoogleAuth(cfg.Auth.Google, logger.Named("auth"))
	tokens, err := auth.NewTokens(cfg.Auth.Session, logger.Named("auth"))
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize session tokens: %w", err)
	}
	c.Tokens = tokens
	c.Dispatcher = mail.NewDispatcher(cfg.Mail, logger.Named("mail"))
	return c, nil
}

func runServer(cfg *config.Config, logger *zap.Logger) error {
	components, err := initializeComponents(context.Background(), cfg, logger)
	if err != nil {
		return err
	}
	defer components.Close()

	if size, err := storage.DatabaseSize(cfg.Storage.DatabasePath); err == nil {
		logger.Info("user database opened",
			zap.String("path", cfg.Storage.DatabasePath),
			zap.Int64("bytes", size),
		)
	}
	logger.Info("components initialized",
		zap.Strings("systems", components.Registry.Systems()),
		zap.String("embedding", components.Embedder.Name()),
		zap.String("mail_transport", cfg.Mail.Transport),
		zap.Bool("google_oauth", components.Google.Configured()),
	)

	srv := server.NewServer(server.Dependencies{
		Search:   components.Engine,
		Google:   components.Google,
		Tokens:   components.Tokens,
		Users:    components.Users,
		Mailer:   components.Dispatcher,
		Embedder: components.Embedder.Name(),
	}, cfg, logger.Named("server"))

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-sigChan:
	}

	logger.Info("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Stop(ctx)
}
