// Package client provides a REST client for the snapshot and project APIs.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/raphaelgruber/sitesnap/internal/metrics"
)

const (
	// DefaultTimeout bounds a single request.
	DefaultTimeout = 30 * time.Second
	// DefaultPageSize is the number of projects fetched per list request.
	DefaultPageSize = 100

	// slowRequestThreshold is the duration above which requests are logged at WARN level.
	slowRequestThreshold = 5 * time.Second
	// maxQueryLogLen is the maximum length of a logged query string.
	maxQueryLogLen = 200

	authScheme = "scitran-user"
	userAgent  = "sitesnap"
)

// Option configures a Client.
type Option func(*Client)

// Client talks to the site REST API. It performs no retries of its own.
// After creation the client is immutable and safe for concurrent use.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	pageSize   int
	metrics    *metrics.Collector
	logger     *slog.Logger
}

// New creates a client for apiKey.
// Unless WithBaseURL is given, the base URL is derived from the key,
// which has the form "<host>[:<port>]:<secret>".
func New(apiKey string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("api key is required")
	}

	c := &Client{
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		pageSize:   DefaultPageSize,
		logger:     slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.baseURL == "" {
		base, err := BaseURLFromKey(apiKey)
		if err != nil {
			return nil, err
		}
		c.baseURL = base
	}
	c.baseURL = strings.TrimRight(c.baseURL, "/")

	return c, nil
}

// WithBaseURL sets the API base URL, e.g. "https://site.example.com".
func WithBaseURL(u string) Option {
	return func(c *Client) {
		c.baseURL = u
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient.Timeout = timeout
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithPageSize sets how many projects are requested per page.
func WithPageSize(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

// WithCollector records call timings into m.
func WithCollector(m *metrics.Collector) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithLogger sets the logger used for request tracing.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// BaseURL returns the resolved API base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// BaseURLFromKey derives the site URL from an API key.
func BaseURLFromKey(apiKey string) (string, error) {
	i := strings.LastIndex(apiKey, ":")
	if i <= 0 {
		return "", errors.New("cannot derive site URL from api key; set a base URL")
	}
	return "https://" + apiKey[:i], nil
}

// do sends a JSON request and decodes a JSON response into result (if non-nil).
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, result any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", authScheme+" "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("api request failed",
			"method", method,
			"path", path,
			"duration_ms", time.Since(start).Milliseconds(),
			"error", err,
		)
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	c.logRequest(method, path, query, resp.StatusCode, time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return newAPIError(method, path, resp.StatusCode, respBody)
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}

	return nil
}

// logRequest logs a completed request. Slow requests are logged at WARN.
func (c *Client) logRequest(method, path string, query url.Values, status int, duration time.Duration) {
	attrs := []any{
		"method", method,
		"path", path,
		"status", status,
		"duration_ms", duration.Milliseconds(),
	}
	if len(query) > 0 {
		attrs = append(attrs, "query", truncate(query.Encode(), maxQueryLogLen))
	}

	if duration > slowRequestThreshold {
		c.logger.Warn("slow api request", attrs...)
		return
	}
	c.logger.Debug("api request", attrs...)
}

// truncate shortens a string to maxLen, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen < 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
