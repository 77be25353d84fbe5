// Package client provides the HTTP client for the tracebase preset API.
package client

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

	"github.com/tracebase-eu/tracebase/cli/util"
	"github.com/tracebase-eu/tracebase/internal/api"
	"github.com/tracebase-eu/tracebase/internal/preset"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Client is the tracebase API client
type Client struct {
	// BaseURL is the tracebase server URL
	BaseURL string

	// Token is sent as a bearer token when set
	Token string

	// HTTPClient is the underlying HTTP client
	HTTPClient *http.Client

	// Debug enables debug logging
	Debug bool

	// UserAgent to use for requests
	UserAgent string
}

// ClientOption configures the client
type ClientOption func(*Client)

// NewClient creates a new API client
func NewClient(server, token string, opts ...ClientOption) *Client {
	c := &Client{
		BaseURL: server,
		Token:   token,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		UserAgent: "tracebase-cli/1.0",
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// WithDebug enables debug mode
func WithDebug(debug bool) ClientOption {
	return func(c *Client) {
		c.Debug = debug
	}
}

// WithTimeout sets the HTTP timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.HTTPClient.Timeout = timeout
	}
}

// ResolveOptions carries the navigation state of a resolve call
type ResolveOptions struct {
	X       string
	Global  string
	Params  url.Values
	Execute bool
	Count   bool
	Entity  string
}

// ListPresets returns the preset catalogue
func (c *Client) ListPresets(ctx context.Context) ([]preset.Descriptor, error) {
	var presets []preset.Descriptor
	if err := c.DoGet(ctx, "/api/v1/presets", nil, &presets); err != nil {
		return nil, err
	}
	return presets, nil
}

// ResolvePreset resolves id on the server
func (c *Client) ResolvePreset(ctx context.Context, id string, opts ResolveOptions) (*api.ResolveResponse, error) {
	query := url.Values{}
	for key, vals := range opts.Params {
		query[key] = append([]string(nil), vals...)
	}
	if opts.X != "" {
		query.Set("x", opts.X)
	}
	if opts.Global != "" {
		query.Set("global", opts.Global)
	}
	if opts.Execute {
		query.Set("execute", "true")
	}
	if opts.Count {
		query.Set("count", "true")
	}
	if opts.Entity != "" {
		query.Set("entity", opts.Entity)
	}

	var resp api.ResolveResponse
	path := "/api/v1/presets/" + url.PathEscape(id) + "/resolve"
	if err := c.DoGet(ctx, path, query, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RequestWithQuery makes an authenticated API request with query parameters
func (c *Client) RequestWithQuery(ctx context.Context, method, path string, body interface{}, query url.Values) (*http.Response, error) {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + path
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.UserAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	if c.Debug {
		fmt.Printf("DEBUG: %s %s (token %s)\n", method, u.String(), util.MaskToken(c.Token))
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	return resp, nil
}

// DoGet performs a GET request and decodes the response into target
func (c *Client) DoGet(ctx context.Context, path string, query url.Values, target interface{}) error {
	resp, err := c.RequestWithQuery(ctx, http.MethodGet, path, nil, query)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	return decodeBody(resp, target)
}

// decodeBody decodes the response body into target
func decodeBody(resp *http.Response, target interface{}) error {
	if resp.StatusCode >= 400 {
		return parseErrorBody(resp)
	}
	if target == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(target)
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

	var apiErr APIError
	if err := json.Unmarshal(body, &apiErr); err != nil {
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(body)),
		}
	}

	apiErr.StatusCode = resp.StatusCode
	return &apiErr
}

// APIError represents an API error response
type APIError struct {
	StatusCode int    `json:"-"`
	Message    string `json:"error"`
	RequestID  string `json:"request_id"`
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("API error with status %d", e.StatusCode)
}
