package embedding

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/avast/retry-go/v4"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// OpenAIConfig holds configuration for an OpenAI-compatible embeddings endpoint.
type OpenAIConfig struct {
	APIKey        string
	BaseURL       string // e.g. https://api.openai.com/v1
	Model         string
	Dimensions    int
	Timeout       time.Duration
	RetryAttempts uint
	Logger        *zap.Logger
}

func NewOpenAIConfig() OpenAIConfig {
	return OpenAIConfig{
		BaseURL:       "https://api.openai.com/v1",
		Model:         "text-embedding-3-small",
		Dimensions:    1536,
		Timeout:       30 * time.Second,
		RetryAttempts: 1,
	}
}

func (c OpenAIConfig) WithAPIKey(apiKey string) OpenAIConfig {
	c.APIKey = apiKey
	return c
}
func (c OpenAIConfig) WithBaseURL(baseURL string) OpenAIConfig {
	c.BaseURL = baseURL
	return c
}
func (c OpenAIConfig) WithModel(model string) OpenAIConfig {
	c.Model = model
	return c
}
func (c OpenAIConfig) WithDimensions(dimensions int) OpenAIConfig {
	c.Dimensions = dimensions
	return c
}
func (c OpenAIConfig) WithTimeout(timeout time.Duration) OpenAIConfig {
	c.Timeout = timeout
	return c
}
func (c OpenAIConfig) WithRetryAttempts(attempts uint) OpenAIConfig {
	c.RetryAttempts = attempts
	return c
}
func (c OpenAIConfig) WithLogger(logger *zap.Logger) OpenAIConfig {
	c.Logger = logger
	return c
}

func (c OpenAIConfig) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("%w: openai api key is required", ErrConfigurationMissing)
	}
	if c.Model == "" {
		return fmt.Errorf("model name is required")
	}
	if c.RetryAttempts == 0 {
		return fmt.Errorf("retry attempts must be greater than 0")
	}
	return nil
}

// OpenAIEmbedder implements Embedder against the OpenAI embeddings API
// (or a compatible server such as Ollama or LM Studio).
type OpenAIEmbedder struct {
	config OpenAIConfig
	client *openai.Client
	logger *zap.Logger
}

func NewOpenAIEmbedder(config OpenAIConfig) (*OpenAIEmbedder, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg := openai.DefaultConfig(config.APIKey)
	cfg.BaseURL = config.BaseURL
	cfg.HTTPClient = &http.Client{Timeout: config.Timeout}
	return &OpenAIEmbedder{
		config: config,
		client: openai.NewClientWithConfig(cfg),
		logger: logger,
	}, nil
}

// Embed sends every text in one batched request and returns the vectors verbatim,
// placed by the index the API reports for each.
func (p *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	start := time.Now()
	var embeddings [][]float32
	err := retry.Do(
		func() error {
			resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
				Model: openai.EmbeddingModel(p.config.Model),
				Input: texts,
			})
			if err != nil {
				return openAIRemoteError(err)
			}
			out, err := orderOpenAIEmbeddings(resp.Data, len(texts))
			if err != nil {
				return &RemoteError{Provider: p.Name(), StatusCode: http.StatusOK, Err: err}
			}
			embeddings = out
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(p.config.RetryAttempts),
		retry.DelayType(retry.BackOffDelay),
		retry.Delay(200*time.Millisecond),
		retry.LastErrorOnly(true),
		retry.RetryIf(IsRetryable),
		retry.OnRetry(func(n uint, err error) {
			p.logger.Warn("retrying openai embedding request",
				zap.Uint("attempt", n+1),
				zap.Uint("max_attempts", p.config.RetryAttempts),
				zap.Error(err),
			)
		}),
	)
	if err != nil {
		return nil, err
	}
	p.logger.Debug("generated openai embeddings",
		zap.Int("texts", len(texts)),
		zap.String("model", p.config.Model),
		zap.Duration("duration", time.Since(start)),
	)
	return embeddings, nil
}

func orderOpenAIEmbeddings(data []openai.Embedding, want int) ([][]float32, error) {
	if len(data) != want {
		return nil, fmt.Errorf("expected %d embeddings, got %d", want, len(data))
	}
	out := make([][]float32, want)
	for _, d := range data {
		if d.Index < 0 || d.Index >= want || out[d.Index] != nil {
			return nil, fmt.Errorf("invalid embedding index %d", d.Index)
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}

func openAIRemoteError(err error) error {
	re := &RemoteError{Provider: "openai", Err: err}
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		re.StatusCode = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		re.StatusCode = reqErr.HTTPStatusCode
	}
	return re
}

// Dimensions returns the configured vector size.
func (p *OpenAIEmbedder) Dimensions() int {
	return p.config.Dimensions
}

func (p *OpenAIEmbedder) Name() string {
	return "openai"
}

func (p *OpenAIEmbedder) Close() error {
	return nil
}
