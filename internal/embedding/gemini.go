package embedding

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/google/generative-ai-go/genai"
	"github.com/googleapis/gax-go/v2/apierror"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
)

// GeminiConfig holds configuration for the Gemini embedding service
type GeminiConfig struct {
	APIKey        string
	Model         string
	Dimensions    int
	RetryAttempts uint
	Logger        *zap.Logger
}

func NewGeminiConfig() GeminiConfig {
	return GeminiConfig{
		Model:         "text-embedding-004",
		Dimensions:    768,
		RetryAttempts: 1,
	}
}

func (c GeminiConfig) WithAPIKey(apiKey string) GeminiConfig {
	c.APIKey = apiKey
	return c
}
func (c GeminiConfig) WithModel(model string) GeminiConfig {
	c.Model = model
	return c
}
func (c GeminiConfig) WithDimensions(dimensions int) GeminiConfig {
	c.Dimensions = dimensions
	return c
}
func (c GeminiConfig) WithRetryAttempts(attempts uint) GeminiConfig {
	c.RetryAttempts = attempts
	return c
}
func (c GeminiConfig) WithLogger(logger *zap.Logger) GeminiConfig {
	c.Logger = logger
	return c
}

func (c GeminiConfig) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("%w: gemini api key is required", ErrConfigurationMissing)
	}
	if c.Model == "" {
		return fmt.Errorf("model name is required")
	}
	if c.RetryAttempts == 0 {
		return fmt.Errorf("retry attempts must be greater than 0")
	}
	return nil
}

type GeminiEmbedder struct {
	config GeminiConfig
	client *genai.Client
	model  *genai.EmbeddingModel
	logger *zap.Logger
}

func NewGeminiEmbedder(ctx context.Context, config GeminiConfig) (*GeminiEmbedder, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(config.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &GeminiEmbedder{
		config: config,
		client: client,
		model:  client.EmbeddingModel(config.Model),
		logger: logger,
	}, nil
}

// Embed sends all texts as one BatchEmbedContents call.
func (p *GeminiEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	start := time.Now()
	var embeddings [][]float32
	err := retry.Do(
		func() error {
			batch := p.model.NewBatch()
			for _, text := range texts {
				batch.AddContent(genai.Text(text))
			}
			resp, err := p.model.BatchEmbedContents(ctx, batch)
			if err != nil {
				return &RemoteError{Provider: p.Name(), StatusCode: geminiStatus(err), Err: err}
			}
			if resp == nil || len(resp.Embeddings) != len(texts) {
				got := 0
				if resp != nil {
					got = len(resp.Embeddings)
				}
				return &RemoteError{
					Provider:   p.Name(),
					StatusCode: http.StatusOK,
					Err:        fmt.Errorf("expected %d embeddings, got %d", len(texts), got),
				}
			}
			out := make([][]float32, len(texts))
			for i, e := range resp.Embeddings {
				if e == nil {
					return &RemoteError{Provider: p.Name(), StatusCode: http.StatusOK, Err: fmt.Errorf("missing embedding %d", i)}
				}
				out[i] = e.Values
			}
			embeddings = out
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(p.config.RetryAttempts),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(IsRetryable),
		retry.OnRetry(func(n uint, err error) {
			p.logger.Warn("retrying gemini embedding request",
				zap.Uint("attempt", n+1),
				zap.Uint("max_attempts", p.config.RetryAttempts),
				zap.Error(err),
			)
		}),
	)
	if err != nil {
		return nil, err
	}
	p.logger.Debug("generated gemini embeddings",
		zap.Int("texts", len(texts)),
		zap.String("model", p.config.Model),
		zap.Duration("duration", time.Since(start)),
	)
	return embeddings, nil
}

// geminiStatus maps a Gemini API error onto an HTTP-like status so RemoteError can
// classify it; 0 means no response was received.
func geminiStatus(err error) int {
	var apiErr *apierror.APIError
	if !errors.As(err, &apiErr) {
		return 0
	}
	if code := apiErr.HTTPCode(); code > 0 {
		return code
	}
	switch apiErr.GRPCStatus().Code() {
	case codes.ResourceExhausted:
		return http.StatusTooManyRequests
	case codes.Unavailable, codes.DeadlineExceeded:
		return http.StatusServiceUnavailable
	case codes.Unauthenticated:
		return http.StatusUnauthorized
	case codes.PermissionDenied:
		return http.StatusForbidden
	case codes.InvalidArgument, codes.FailedPrecondition:
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func (p *GeminiEmbedder) Dimensions() int {
	return p.config.Dimensions
}

func (p *GeminiEmbedder) Name() string {
	return "gemini"
}

func (p *GeminiEmbedder) Close() error {
	if p.client != nil {
		return p.client.Close()
	}
	return nil
}
