// Package payload provides the HTTP client for the Payload CMS REST API
// together with the document types the cache stores.
package payload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/payload-cache/pkg/query"
	"github.com/rs/zerolog"
)

// Config holds the client configuration.
type Config struct {
	// BaseURL of the Payload REST API, e.g. "https://cms.example.com/api".
	BaseURL string

	// UserAgent header sent with every request.
	UserAgent string

	// Timeout bounds a single attempt, including reading the body.
	Timeout time.Duration

	// Retry controls retries of 5xx and network failures.
	Retry RetryConfig

	// HTTPClient overrides the default client (for testing).
	HTTPClient *http.Client
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:   baseURL,
		UserAgent: "payload-cache/0.1.0",
		Timeout:   5 * time.Second,
		Retry:     DefaultRetryConfig(),
	}
}

// Client fetches documents from the Payload REST API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	config     Config
	logger     zerolog.Logger
}

// New creates a new Payload client.
func New(cfg Config, logger zerolog.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	if !strings.HasPrefix(cfg.BaseURL, "http://") && !strings.HasPrefix(cfg.BaseURL, "https://") {
		return nil, fmt.Errorf("base url must be http(s), got %q", cfg.BaseURL)
	}
	if cfg.Timeout <= 0 {
		return nil, fmt.Errorf("timeout must be positive (got %s)", cfg.Timeout)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: httpClient,
		config:     cfg,
		logger:     logger,
	}, nil
}

// URL builds the request URL for endpoint and params.
func (c *Client) URL(endpoint string, params query.Params) string {
	u := c.baseURL + "/" + strings.TrimLeft(endpoint, "/")
	if encoded := params.Encode(); encoded != "" {
		u += "?" + encoded
	}
	return u
}

// Fetch performs GET <base>/<endpoint>?<params> and decodes the JSON body.
// Non-2xx answers and transport failures are returned as *APIError; server
// and network failures are retried per Config.Retry.
func (c *Client) Fetch(ctx context.Context, endpoint string, params query.Params) (Document, error) {
	target := c.URL(endpoint, params)

	startTime := time.Now()
	defer func() {
		upstreamRequestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	}()

	c.logger.Debug().
		Str("endpoint", endpoint).
		Str("url", target).
		Msg("Fetching from Payload")

	var doc Document
	err := retryWithBackoff(ctx, c.config.Retry, c.logger, func() error {
		var attemptErr error
		doc, attemptErr = c.do(ctx, endpoint, target)
		return attemptErr
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// do runs a single attempt bounded by Config.Timeout.
func (c *Client) do(ctx context.Context, endpoint, target string) (Document, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		upstreamRequestsTotal.WithLabelValues(endpoint, "network_error").Inc()
		c.logger.Warn().Err(err).Str("endpoint", endpoint).Msg("Payload request failed")
		return nil, &APIError{
			Class:   ErrorClassNetwork,
			Message: "request failed",
			Err:     err,
		}
	}
	defer resp.Body.Close()

	upstreamRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode >= 400 {
		class := classifyStatus(resp.StatusCode)
		c.logger.Warn().
			Str("endpoint", endpoint).
			Int("status", resp.StatusCode).
			Str("error_class", string(class)).
			Msg("Payload request error")

		// drain a little so the connection can be reused
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Class:      class,
			Message:    resp.Status,
		}
	}

	doc, err := DecodeDocument(resp.Body)
	if err != nil {
		if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
			return nil, &APIError{
				StatusCode: resp.StatusCode,
				Class:      ErrorClassNetwork,
				Message:    "timeout reading body",
				Err:        err,
			}
		}
		return nil, fmt.Errorf("decode %s response: %w", endpoint, err)
	}
	return doc, nil
}
