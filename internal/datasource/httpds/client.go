// Package httpds is the HTTP transport used by the pipeline: the public
// character API is read through it and webhook notifications are posted
// through it.
//
// Design goals:
//
//   - Keep a tiny, explicit API (Do, Get, Post, GetJSON, PostJSON).
//   - Retry transient failures (transport errors, 429, 5xx) with capped
//     exponential backoff. Retries are off unless MaxRetries > 0.
//   - Surface every non-2xx answer as an *APIError carrying status and body.
//   - Respect context cancellation during requests and backoff waits.
//   - Be easy to test by injecting a custom RoundTripper and sleep function.
package httpds

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Config configures the client. Zero values get defaults:
//
//   - Timeout:        30s
//   - MaxRetries:     0 (single attempt)
//   - InitialBackoff: 200ms
//   - MaxBackoff:     5s
type Config struct {
	// Timeout is the per-request timeout applied at the http.Client level.
	Timeout time.Duration

	// MaxRetries is the number of retry attempts after the initial request.
	MaxRetries int

	// InitialBackoff is the wait before the first retry. Each further retry
	// doubles it, up to MaxBackoff.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	// InsecureSkipVerify disables TLS certificate verification on the
	// default transport.
	InsecureSkipVerify bool

	// BaseHeaders are added to every request. Per-request headers win.
	BaseHeaders http.Header

	// Transport replaces the default *http.Transport when set.
	Transport http.RoundTripper

	// Logger receives one debug event per retry.
	Logger zerolog.Logger
}

// Client wraps an http.Client with retry and backoff behavior.
type Client struct {
	httpClient     *http.Client
	maxRetries     int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	baseHeaders    http.Header
	log            zerolog.Logger

	// sleep is injectable to make tests fast and deterministic.
	sleep func(time.Duration)
}

// NewClient constructs a Client from Config, applying defaults for zero values.
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 200 * time.Millisecond
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 5 * time.Second
	}

	transport := cfg.Transport
	if transport == nil {
		transport = &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: cfg.InsecureSkipVerify, //nolint:gosec // explicitly configurable
			},
		}
	}

	return &Client{
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
		maxRetries:     cfg.MaxRetries,
		initialBackoff: cfg.InitialBackoff,
		maxBackoff:     cfg.MaxBackoff,
		baseHeaders:    cfg.BaseHeaders.Clone(),
		log:            cfg.Logger,
		sleep:          time.Sleep,
	}
}

// Do sends one request, retrying transport errors and retryable statuses.
// The body is a byte slice so it can be re-sent.
//
// When every attempt ends in a retryable status, the last response is
// returned with a nil error so the caller can inspect it. The caller must
// close the body of any returned response.
func (c *Client) Do(
	ctx context.Context,
	method, url string,
	body []byte,
	headers http.Header,
) (*http.Response, error) {
	if method == "" {
		return nil, fmt.Errorf("httpds: method must not be empty")
	}
	if url == "" {
		return nil, fmt.Errorf("httpds: url must not be empty")
	}

	attempts := c.maxRetries + 1
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("httpds: build request: %w", err)
		}
		for k, vs := range c.baseHeaders {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}
		for k, vs := range headers {
			req.Header.Del(k)
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}

		last := attempt+1 >= attempts
		resp, err := c.httpClient.Do(req)
		switch {
		case err != nil:
			if last {
				return nil, fmt.Errorf("httpds: %s %s: %w", method, url, err)
			}
			c.log.Debug().Err(err).Int("attempt", attempt+1).Str("url", url).Msg("request failed, retrying")
		case !isRetryableStatus(resp.StatusCode) || last:
			return resp, nil
		default:
			_ = resp.Body.Close()
			c.log.Debug().Int("status", resp.StatusCode).Int("attempt", attempt+1).Str("url", url).Msg("retryable status")
		}

		if err := sleepWithContext(ctx, c.sleep, backoffDuration(c.initialBackoff, attempt, c.maxBackoff)); err != nil {
			return nil, err
		}
	}
}

// Get is Do with GET. The caller must close the response body.
func (c *Client) Get(ctx context.Context, url string, headers http.Header) (*http.Response, error) {
	return c.Do(ctx, http.MethodGet, url, nil, headers)
}

// Post is Do with POST. The caller must close the response body.
func (c *Client) Post(ctx context.Context, url string, body []byte, headers http.Header) (*http.Response, error) {
	return c.Do(ctx, http.MethodPost, url, body, headers)
}

// isRetryableStatus reports whether code is transient: 429 or any 5xx.
func isRetryableStatus(code int) bool {
	if code == http.StatusTooManyRequests {
		return true
	}
	return code >= 500 && code <= 599
}

// backoffDuration returns initial * 2^attempt clamped to max.
func backoffDuration(initial time.Duration, attempt int, max time.Duration) time.Duration {
	if attempt <= 0 {
		return min(initial, max)
	}
	d := initial << attempt
	if d <= 0 || d > max {
		return max
	}
	return d
}

// sleepWithContext waits for d, returning early with ctx.Err() on
// cancellation.
func sleepWithContext(ctx context.Context, sleep func(time.Duration), d time.Duration) error {
	if err := ctx.Err(); err != nil || d <= 0 {
		return err
	}
	done := make(chan struct{})
	go func() {
		sleep(d)
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}
