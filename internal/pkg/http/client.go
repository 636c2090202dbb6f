package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Config holds HTTP client configuration
type Config struct {
	BaseURL string
	Timeout time.Duration
	// Token, when set, is sent as a bearer Authorization header.
	Token string
}

// Client is a generic JSON HTTP client for communicating with backend services
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a new HTTP client
func NewClient(config Config) *Client {
	timeout := config.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		token:   config.Token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Do executes a request against the configured base URL. A non-nil body is
// JSON-encoded. The caller owns the response body.
func (c *Client) Do(ctx context.Context, method, endpoint string, body interface{}) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request to %s %s failed: %w", method, endpoint, err)
	}
	return resp, nil
}

// Get performs a GET request
func (c *Client) Get(ctx context.Context, endpoint string) (*http.Response, error) {
	return c.Do(ctx, http.MethodGet, endpoint, nil)
}

// Post performs a POST request with a JSON body
func (c *Client) Post(ctx context.Context, endpoint string, body interface{}) (*http.Response, error) {
	return c.Do(ctx, http.MethodPost, endpoint, body)
}

// Put performs a PUT request with a JSON body
func (c *Client) Put(ctx context.Context, endpoint string, body interface{}) (*http.Response, error) {
	return c.Do(ctx, http.MethodPut, endpoint, body)
}

// Patch performs a PATCH request with a JSON body
func (c *Client) Patch(ctx context.Context, endpoint string, body interface{}) (*http.Response, error) {
	return c.Do(ctx, http.MethodPatch, endpoint, body)
}

// Delete performs a DELETE request
func (c *Client) Delete(ctx context.Context, endpoint string) (*http.Response, error) {
	return c.Do(ctx, http.MethodDelete, endpoint, nil)
}

// DecodeJSON drains and decodes a response body into out, closing the body.
func DecodeJSON(resp *http.Response, out interface{}) error {
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response body: %w", err)
	}
	return nil
}

// Discard drains and closes a response body so the connection can be reused.
func Discard(resp *http.Response) {
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}

// HTTPError represents a non-success HTTP status
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http status %d: %s", e.StatusCode, e.Message)
}
