package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const maxResponseBodySize = 1 << 20 // 1MB

// DefaultTimeout bounds a request when the client is built with a
// non-positive timeout.
const DefaultTimeout = 5 * time.Second

// connection pooling limits; flockwatch talks to a single host
const (
	defaultMaxIdleConns        = 10
	defaultMaxIdleConnsPerHost = 4
	defaultMaxConnsPerHost     = 4
	defaultIdleConnTimeout     = 60 * time.Second // conservative: matches common ALB defaults
)

// Fetcher is the subset of [Client] used by the poller and the command
// dispatcher. Tests substitute their own implementation.
type Fetcher interface {
	FetchJSON(ctx context.Context, url string) (any, error)
}

// Client is an HTTP client wrapper for JSON GET requests.
//
// Client applies its timeout per request via context rather than through
// http.Client.Timeout, so a caller's own deadline still wins when it is
// shorter. Response bodies are limited to 1MB.
type Client struct {
	httpClient *http.Client
	timeout    time.Duration
}

// NewClient creates a [Client] whose requests are bounded by timeout.
// A non-positive timeout selects [DefaultTimeout].
func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		httpClient: &http.Client{
			// no default timeout - we use per-request timeouts via context
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        defaultMaxIdleConns,
				MaxIdleConnsPerHost: defaultMaxIdleConnsPerHost,
				MaxConnsPerHost:     defaultMaxConnsPerHost,
				IdleConnTimeout:     defaultIdleConnTimeout,
			},
		},
		timeout: timeout,
	}
}

// Timeout returns the per-request timeout.
func (c *Client) Timeout() time.Duration {
	return c.timeout
}

// FetchJSON issues a GET request to url and decodes the JSON body.
//
// Numbers are decoded as [json.Number] so callers can check integers
// strictly. The returned error is a [*NetworkError], [*HTTPError] or
// [*ParseError]; a request that exceeds the timeout is a [*NetworkError].
func (c *Client) FetchJSON(ctx context.Context, url string) (any, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &NetworkError{URL: url, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &NetworkError{URL: url, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	// read body with size limit
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	if err != nil {
		return nil, &NetworkError{URL: url, Err: fmt.Errorf("failed to read response body: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPError{URL: url, StatusCode: resp.StatusCode, Body: body}
	}

	value, err := DecodeJSON(body)
	if err != nil {
		return nil, &ParseError{URL: url, Err: err}
	}
	return value, nil
}

// DecodeJSON decodes a single JSON document, keeping numbers as
// [json.Number]. Trailing data after the document is an error.
func DecodeJSON(body []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var value any
	if err := dec.Decode(&value); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("unexpected data after JSON document")
	}
	return value, nil
}

// Close closes all idle connections in the client's connection pool.
//
// Safe to call multiple times and on a nil receiver. After Close, the client
// remains usable but new connections will be established as needed.
func (c *Client) Close() {
	if c == nil || c.httpClient == nil {
		return
	}
	if transport, ok := c.httpClient.Transport.(*http.Transport); ok {
		transport.CloseIdleConnections()
	}
}
