package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hyperjump/querylinker/internal/models"
)

// Client calls a running QueryLinker server.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient returns a client for the server at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 90 * time.Second},
	}
}

// WithToken sets the session token sent as a bearer credential.
func (c *Client) WithToken(token string) *Client {
	c.token = strings.TrimSpace(token)
	return c
}

// Search runs an enhanced search.
func (c *Client) Search(ctx context.Context, req *models.SearchRequest) (*models.SearchResponse, error) {
	var resp models.SearchResponse
	if err := c.do(ctx, http.MethodPost, "/api/querylinker/enhanced-search", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Systems lists the systems the server can search.
func (c *Client) Systems(ctx context.Context) ([]string, error) {
	var resp struct {
		Systems []string `json:"systems"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/querylinker/systems", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Systems, nil
}

// SendTestEmail asks the server to deliver a test message to recipient. The
// server requires a session token (see WithToken). A failed delivery is
// reported in the result, not as an error.
func (c *Client) SendTestEmail(ctx context.Context, recipient string) (*models.EmailResult, error) {
	var result models.EmailResult
	err := c.do(ctx, http.MethodPost, "/api/email/test", map[string]string{"to": recipient}, &result)
	if err != nil && !isStatus(err, http.StatusBadGateway) {
		return nil, err
	}
	return &result, nil
}

// GoogleAuthURL fetches a sign-in URL and its state value.
func (c *Client) GoogleAuthURL(ctx context.Context) (authURL, state string, err error) {
	var resp struct {
		URL   string `json:"url"`
		State string `json:"state"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/auth/google/url", nil, &resp); err != nil {
		return "", "", err
	}
	return resp.URL, resp.State, nil
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

func isStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == code
}

// do sends body as JSON and decodes the response into out. On a non-2xx status
// out is still decoded when possible and a *StatusError is returned.
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		msg := strings.TrimSpace(string(data))
		if json.Unmarshal(data, &e) == nil && e.Error != "" {
			msg = e.Error
		}
		if out != nil {
			_ = json.Unmarshal(data, out)
		}
		return &StatusError{StatusCode: resp.StatusCode, Message: msg}
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
