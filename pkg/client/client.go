// Package client talks to a running imagine server's JSON endpoints.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/pario-ai/imagine/pkg/models"
	"github.com/pario-ai/imagine/pkg/provider"
)

// Client calls POST /generate and GET /usage.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New returns a Client for the server at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 5 * time.Minute},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Generate submits prompt and returns the image reference. Server-side
// failures come back as *provider.Error carrying the relayed status.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(models.GenerateRequest{Prompt: prompt})
	if err != nil {
		return "", goerr.Wrap(err, "marshal generate request")
	}

	var out models.GenerateResponse
	if err := c.do(ctx, http.MethodPost, "/generate", body, &out); err != nil {
		return "", err
	}
	return out.ImageURL, nil
}

// Usage returns the provider quota counters.
func (c *Client) Usage(ctx context.Context) (models.UsageInfo, error) {
	var out models.UsageInfo
	if err := c.do(ctx, http.MethodGet, "/usage", nil, &out); err != nil {
		return models.UsageInfo{}, err
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return goerr.Wrap(err, "create request", goerr.V("path", path))
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return goerr.Wrap(err, "request imagine server", goerr.V("url", c.baseURL+path))
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return goerr.Wrap(err, "read response", goerr.V("path", path))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var er models.ErrorResponse
		msg := http.StatusText(resp.StatusCode)
		if json.Unmarshal(data, &er) == nil && er.Error != "" {
			msg = er.Error
		}
		return &provider.Error{StatusCode: resp.StatusCode, Message: msg}
	}

	if err := json.Unmarshal(data, out); err != nil {
		return goerr.Wrap(err, "decode response", goerr.V("path", path))
	}
	return nil
}
