// Package upstream talks to the Ollama server the gateway fronts. Ollama
// exposes a model-listing endpoint (/api/tags) and an OpenAI-compatible
// chat-completions endpoint (/v1/chat/completions) that supports streaming.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

const (
	defaultBaseURL = "http://localhost:11434"

	// The catalog call is small and bounded; the chat call is not, so the
	// client carries no overall timeout. Connect and response-header
	// timeouts on the transport are a hardening addition: the original
	// design specified none.
	defaultConnectTimeout = 5 * time.Second
	defaultHeaderTimeout  = 30 * time.Second
	defaultCatalogTimeout = 10 * time.Second
)

// ErrUnavailable is returned when the Ollama server cannot be reached or
// answers a catalog request with a non-success status. Handlers map it to
// 503.
var ErrUnavailable = errors.New("upstream unavailable")

// Client is a reusable HTTP client for the Ollama server.
type Client struct {
	baseURL        string
	client         *http.Client
	catalogTimeout time.Duration
}

// Config holds upstream connection settings.
type Config struct {
	BaseURL        string
	ConnectTimeout time.Duration
	HeaderTimeout  time.Duration
	CatalogTimeout time.Duration
}

// NewClient creates a client with a shared transport.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	if cfg.HeaderTimeout <= 0 {
		cfg.HeaderTimeout = defaultHeaderTimeout
	}
	if cfg.CatalogTimeout <= 0 {
		cfg.CatalogTimeout = defaultCatalogTimeout
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout: cfg.ConnectTimeout,
		}).DialContext,
		ResponseHeaderTimeout: cfg.HeaderTimeout,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
	}

	return &Client{
		baseURL:        cfg.BaseURL,
		client:         &http.Client{Transport: transport},
		catalogTimeout: cfg.CatalogTimeout,
	}
}

// BaseURL returns the configured upstream base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// ListModels queries the Ollama server for the models currently available.
// Each call is a fresh query: availability changes between calls and
// issuance correctness depends on freshness, so nothing is cached.
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.catalogTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: model listing returned status %d", ErrUnavailable, resp.StatusCode)
	}

	var payload struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: failed to decode model listing: %v", ErrUnavailable, err)
	}

	names := make([]string, 0, len(payload.Models))
	for _, m := range payload.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

// ChatCompletions posts the caller's JSON body, byte for byte, to the chat
// endpoint and returns the response with its body still open so the caller
// can relay it incrementally. The request is bound to ctx: when the original
// caller disconnects, the upstream connection is torn down with it.
func (c *Client) ChatCompletions(ctx context.Context, body []byte) (*http.Response, error) {
	url := c.baseURL + "/v1/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return resp, nil
}

// Close releases idle connections held by the shared transport.
func (c *Client) Close() error {
	c.client.CloseIdleConnections()
	return nil
}
