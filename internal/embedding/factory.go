package embedding

import (
	"context"
	"fmt"

	"github.com/hyperjump/querylinker/internal/config"
	"go.uber.org/zap"
)

// NewEmbedder builds the provider named in cfg. Remote providers require their API
// key; the hash provider is only meant for development and logs a warning.
func NewEmbedder(ctx context.Context, cfg config.EmbeddingConfig, logger *zap.Logger) (Embedder, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch cfg.Provider {
	case config.EmbeddingProviderOpenAI:
		c := NewOpenAIConfig().
			WithAPIKey(cfg.OpenAIAPIKey).
			WithLogger(logger)
		if cfg.OpenAIBaseURL != "" {
			c = c.WithBaseURL(cfg.OpenAIBaseURL)
		}
		if cfg.Model != "" {
			c = c.WithModel(cfg.Model)
		}
		if cfg.Dimensions > 0 {
			c = c.WithDimensions(cfg.Dimensions)
		}
		if cfg.Timeout > 0 {
			c = c.WithTimeout(cfg.Timeout)
		}
		if cfg.RetryAttempts > 0 {
			c = c.WithRetryAttempts(cfg.RetryAttempts)
		}
		e, err := NewOpenAIEmbedder(c)
		if err != nil {
			return nil, err
		}
		return e, nil
	case config.EmbeddingProviderGemini:
		c := NewGeminiConfig().
			WithAPIKey(cfg.GeminiAPIKey).
			WithLogger(logger)
		if cfg.Model != "" {
			c = c.WithModel(cfg.Model)
		}
		if cfg.Dimensions > 0 {
			c = c.WithDimensions(cfg.Dimensions)
		}
		if cfg.RetryAttempts > 0 {
			c = c.WithRetryAttempts(cfg.RetryAttempts)
		}
		e, err := NewGeminiEmbedder(ctx, c)
		if err != nil {
			return nil, err
		}
		return e, nil
	case config.EmbeddingProviderHash, "":
		logger.Warn("using hash embeddings; semantic ranking will not reflect meaning",
			zap.Int("dimensions", cfg.Dimensions))
		return NewHashEmbedder(cfg.Dimensions), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", cfg.Provider)
	}
}
