package connectors

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hyperjump/querylinker/pkg/utils"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const defaultHTTPTimeout = 30 * time.Second

// jsonClient performs rate-limited JSON GETs against one system's REST API.
type jsonClient struct {
	system    string
	baseURL   string
	http      *http.Client
	limiter   *rate.Limiter
	authorize func(*http.Request)
	logger    *zap.Logger
}

func newJSONClient(system, baseURL string, limit rate.Limit, authorize func(*http.Request), logger *zap.Logger) *jsonClient {
	if limit <= 0 {
		limit = rate.Inf
	}
	return &jsonClient{
		system:    system,
		baseURL:   strings.TrimRight(baseURL, "/"),
		http:      &http.Client{Timeout: defaultHTTPTimeout},
		limiter:   rate.NewLimiter(limit, 1),
		authorize: authorize,
		logger:    utils.Named(logger, system),
	}
}

// get fetches baseURL+path with params and decodes the JSON body into out.
func (c *jsonClient) get(ctx context.Context, path string, params url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.authorize != nil {
		c.authorize(req)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s request: %w", c.system, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("request completed",
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &APIError{
			System:     c.system,
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(body)),
		}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", c.system, err)
	}
	return nil
}

// snippet flattens whitespace and bounds the length of connector-provided text.
func snippet(s string) string {
	return utils.Truncate(utils.CollapseWhitespace(s), snippetMaxLen)
}

// quoteQuery escapes q for use inside a double-quoted JQL/CQL string literal.
func quoteQuery(q string) string {
	q = strings.ReplaceAll(q, `\`, `\\`)
	q = strings.ReplaceAll(q, `"`, `\"`)
	return `"` + q + `"`
}
