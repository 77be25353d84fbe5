// Package remote provides the HTTP client for the remote data service that
// executes list queries and computes metrics.
package remote

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog/log"

	"github.com/tracebase-eu/tracebase/internal/config"
	"github.com/tracebase-eu/tracebase/internal/observability"
	"github.com/tracebase-eu/tracebase/internal/preset"
	"github.com/tracebase-eu/tracebase/internal/query"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Client talks to the remote data service of one outbreak
type Client struct {
	baseURL    *url.URL
	outbreakID string
	token      string
	userAgent  string
	httpClient *http.Client
	metrics    *observability.Metrics
}

// Option configures the client
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithMetrics records requests on m
func WithMetrics(m *observability.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithUserAgent sets the User-Agent header
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// New creates a client from the remote configuration
func New(cfg config.RemoteConfig, opts ...Option) (*Client, error) {
	u, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid base URL %q: scheme must be http or https", cfg.BaseURL)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	c := &Client{
		baseURL:    u,
		outbreakID: cfg.OutbreakID,
		token:      cfg.Token,
		userAgent:  "tracebase/1.0",
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// ResolveIDs computes a metric and returns the ids of the matching entities.
// It implements preset.MetricService.
func (c *Client) ResolveIDs(ctx context.Context, metric preset.Metric, req preset.MetricRequest) ([]string, error) {
	body := map[string]interface{}{
		"date": req.Date.UTC().Format(query.TimeLayout),
	}
	if req.Days > 0 {
		body["days"] = req.Days
	}
	if len(req.Filter) > 0 {
		body["filter"] = req.Filter
	}

	var result struct {
		IDs []string `json:"ids"`
	}
	path := c.outbreakPath("metrics", string(metric))
	if err := c.do(ctx, "metric", string(metric), http.MethodPost, path, nil, body, &result); err != nil {
		return nil, err
	}
	if result.IDs == nil {
		result.IDs = []string{}
	}
	return result.IDs, nil
}

// List executes qb against the entity collection and returns the raw records
func (c *Client) List(ctx context.Context, entity preset.Entity, qb *query.QueryBuilder) ([]map[string]interface{}, error) {
	filter, err := qb.BuildQueryString()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize query: %w", err)
	}

	var records []map[string]interface{}
	params := url.Values{"filter": {filter}}
	if err := c.do(ctx, "list", string(entity), http.MethodGet, c.outbreakPath(string(entity)), params, nil, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// Count returns the number of entity records matching the where clause of qb
func (c *Client) Count(ctx context.Context, entity preset.Entity, qb *query.QueryBuilder) (int, error) {
	where, err := qb.Filter.GenerateConditionString()
	if err != nil {
		return 0, fmt.Errorf("failed to serialize where clause: %w", err)
	}

	var result struct {
		Count int `json:"count"`
	}
	params := url.Values{"where": {where}}
	if err := c.do(ctx, "count", string(entity), http.MethodGet, c.outbreakPath(string(entity), "count"), params, nil, &result); err != nil {
		return 0, err
	}
	return result.Count, nil
}

func (c *Client) outbreakPath(parts ...string) string {
	segments := append([]string{"outbreaks", url.PathEscape(c.outbreakID)}, parts...)
	return "/" + strings.Join(segments, "/")
}

// do sends one request and decodes a 2xx JSON response into target
func (c *Client) do(ctx context.Context, operation, target, method, path string, params url.Values, body, out interface{}) (err error) {
	start := time.Now()
	ctx, span := observability.StartRemoteSpan(ctx, operation, target)
	defer func() {
		observability.EndSpan(span, err)
		c.metrics.RecordRemoteRequest(operation, time.Since(start), err)
	}()

	u := *c.baseURL
	u.Path = strings.TrimSuffix(u.Path, "/") + path
	if params != nil {
		u.RawQuery = params.Encode()
	}

	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	log.Debug().
		Str("method", method).
		Str("path", u.Path).
		Str("operation", operation).
		Msg("Remote request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	return decodeBody(resp, out)
}

// decodeBody decodes the response body into target
func decodeBody(resp *http.Response, target interface{}) error {
	if resp.StatusCode >= 400 {
		return parseErrorBody(resp)
	}
	if target == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// parseErrorBody parses an error response body
func parseErrorBody(resp *http.Response) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("failed to read error response: %v", err),
		}
	}

	var envelope struct {
		Error *APIError `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error != nil {
		envelope.Error.StatusCode = resp.StatusCode
		return envelope.Error
	}

	var apiErr APIError
	if err := json.Unmarshal(body, &apiErr); err != nil || (apiErr.Message == "" && apiErr.Code == "") {
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(body)),
		}
	}
	apiErr.StatusCode = resp.StatusCode
	return &apiErr
}

// APIError represents an error response of the remote data service
type APIError struct {
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
	Code       string `json:"code"`
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("remote service returned %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("remote service returned status %d", e.StatusCode)
}
