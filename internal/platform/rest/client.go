// Package rest is the small JSON-over-HTTP client shared by the market-data
// provider adapters.
package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/alanyoungcy/signalledger/internal/domain"
)

// maxBodySize bounds how much of a provider response is read.
const maxBodySize = 4 << 20

// Client issues GET requests against one provider base URL.
type Client struct {
	baseURL    string
	headers    map[string]string
	httpClient *http.Client
}

// New creates a Client. The http.Client timeout is only a backstop; callers
// bound each request with their context.
func New(baseURL string, headers map[string]string) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		headers: headers,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// WithHTTPClient replaces the underlying http.Client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

// BaseURL returns the configured base URL without a trailing slash.
func (c *Client) BaseURL() string { return c.baseURL }

// GetJSON performs a GET on baseURL+path and decodes the body into out. A 404
// maps to domain.ErrAssetNotFound and a 429 to domain.ErrRateLimited.
func (c *Client) GetJSON(ctx context.Context, path string, out any) error {
	body, err := c.doGet(ctx, path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) doGet(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := checkHTTPStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}
	return body, nil
}

func checkHTTPStatus(code int, body []byte) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusNotFound:
		return domain.ErrAssetNotFound
	case code == http.StatusTooManyRequests:
		return fmt.Errorf("http 429: %w", domain.ErrRateLimited)
	default:
		snippet := string(body)
		if len(snippet) > 256 {
			snippet = snippet[:256]
		}
		return fmt.Errorf("unexpected status %d: %s", code, snippet)
	}
}
