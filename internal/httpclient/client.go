// Package httpclient is the sync agent's HTTP client for the docsync
// server's push/pull surface: retry, backoff, and structured logging over
// a static API key header rather than an OAuth2 bearer token.
package httpclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/cloudtext/docsync/internal/netstate"
)

const userAgent = "docsync-agent/0.1"

// Client is an HTTP client for the docsync server's /files surface, with
// retry, backoff, and structured logging matching the sync agent's
// connectivity and error-classification conventions.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
	backoff    netstate.BackoffConfig
	sleep      netstate.SleepFunc

	maxAttempts int
}

// Option configures a Client at construction.
type Option func(*Client)

// WithBackoff overrides the default backoff policy.
func WithBackoff(cfg netstate.BackoffConfig) Option {
	return func(c *Client) { c.backoff = cfg }
}

// WithSleepFunc overrides the sleep implementation; used by tests to avoid
// real delays.
func WithSleepFunc(fn netstate.SleepFunc) Option {
	return func(c *Client) { c.sleep = fn }
}

// WithMaxAttempts overrides the default retry attempt ceiling.
func WithMaxAttempts(n int) Option {
	return func(c *Client) { c.maxAttempts = n }
}

// WithHTTPClient overrides the underlying *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New creates a Client targeting baseURL with apiKey sent as a bearer
// credential.
func New(baseURL, apiKey string, logger *slog.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	c := &Client{
		baseURL:     baseURL,
		apiKey:      apiKey,
		httpClient:  http.DefaultClient,
		logger:      logger,
		backoff:     netstate.DefaultBackoffConfig(),
		sleep:       netstate.DefaultSleep,
		maxAttempts: 3,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// RequestOptions carries per-call extras: extra headers (If-Match,
// If-None-Match) and a body.
type RequestOptions struct {
	Headers http.Header
	Body    io.Reader
}

// Do issues method against baseURL+path, retrying transient failures with
// backoff up to maxAttempts. The caller must close the response body on a
// non-nil, non-error return.
//
// opts.Body is read fully up front and replayed from memory on every
// attempt, so a retry after a body-consuming failure (e.g. a PUT that hits
// a 5xx) resends the same content instead of an empty body.
func (c *Client) Do(ctx context.Context, method, path string, opts RequestOptions) (*http.Response, error) {
	hasBody := opts.Body != nil

	var bodyBytes []byte

	if hasBody {
		b, err := io.ReadAll(opts.Body)
		if err != nil {
			return nil, fmt.Errorf("httpclient: read request body: %w", err)
		}

		bodyBytes = b
	}

	var resp *http.Response

	err := netstate.WithBackoff(ctx, c.backoff, c.sleep, c.maxAttempts, func(ctx context.Context) error {
		attemptOpts := opts
		if hasBody {
			attemptOpts.Body = bytes.NewReader(bodyBytes)
		}

		r, err := c.doOnce(ctx, method, path, attemptOpts)
		if err != nil {
			return err
		}

		if r.StatusCode >= 500 {
			body, _ := io.ReadAll(r.Body)
			r.Body.Close()

			return fmt.Errorf("httpclient: %s %s: server error %d: %s", method, path, r.StatusCode, string(body))
		}

		resp = r

		return nil
	})
	if err != nil {
		return nil, err
	}

	return resp, nil
}

func (c *Client) doOnce(ctx context.Context, method, path string, opts RequestOptions) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, opts.Body)
	if err != nil {
		return nil, fmt.Errorf("httpclient: build request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("User-Agent", userAgent)

	if opts.Body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	for k, vals := range opts.Headers {
		for _, v := range vals {
			req.Header.Add(k, v)
		}
	}

	c.logger.Debug("sync request",
		slog.String("method", method),
		slog.String("path", path),
	)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("httpclient: %s %s: %w", method, path, err)
	}

	c.logger.Debug("sync response",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", resp.StatusCode),
	)

	return resp, nil
}
