// Package httpds is the HTTP client behind API data sources. A Request names
// one endpoint with its auth and extra headers; Fetch GETs it, retrying
// transient failures, and returns the body read up to a byte limit.
//
// Network errors, 429 and 5xx responses are retried with exponential
// backoff. Any other non-2xx status is final and reported as a *StatusError.
package httpds

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultMaxBody caps Fetch reads when a Request gives no limit.
const DefaultMaxBody = 64 << 20

// Config configures the client. Zero values take defaults: Timeout 30s,
// InitialBackoff 200ms, MaxBackoff 5s. MaxRetries counts retries after the
// first attempt.
type Config struct {
	Timeout        time.Duration
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	// Transport replaces http.DefaultTransport when set.
	Transport http.RoundTripper
}

// Request is one poll of an API endpoint.
type Request struct {
	URL string

	// AuthType and Secrets produce the Authorization header (see AuthHeader).
	AuthType string
	Secrets  map[string]string

	// Headers are set after auth, so they win on conflicts.
	Headers map[string]string

	// MaxBytes bounds the body; <= 0 means DefaultMaxBody.
	MaxBytes int64
}

// StatusError reports a final non-2xx response.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("httpds: GET %s returned status %d", e.URL, e.Code)
}

// Client polls API endpoints.
type Client struct {
	hc             *http.Client
	maxRetries     int
	initialBackoff time.Duration
	maxBackoff     time.Duration

	// wait blocks between attempts; tests replace it.
	wait func(ctx context.Context, d time.Duration) error
}

// NewClient builds a Client from cfg.
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
	return &Client{
		hc:             &http.Client{Timeout: cfg.Timeout, Transport: cfg.Transport},
		maxRetries:     cfg.MaxRetries,
		initialBackoff: cfg.InitialBackoff,
		maxBackoff:     cfg.MaxBackoff,
		wait:           waitContext,
	}
}

// Fetch GETs r.URL and returns the whole body.
//
// Auth is resolved before any request is sent, so bad credentials fail
// without touching the network. A body longer than the limit is an error.
func (c *Client) Fetch(ctx context.Context, r Request) ([]byte, error) {
	if r.URL == "" {
		return nil, fmt.Errorf("httpds: url must not be empty")
	}
	header, err := AuthHeader(r.AuthType, r.Secrets)
	if err != nil {
		return nil, err
	}
	for k, v := range r.Headers {
		header.Set(k, v)
	}
	limit := r.MaxBytes
	if limit <= 0 {
		limit = DefaultMaxBody
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			if err := c.wait(ctx, backoffDuration(c.initialBackoff, attempt-1, c.maxBackoff)); err != nil {
				return nil, err
			}
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		body, retry, err := c.once(ctx, r.URL, header, limit)
		if err == nil {
			return body, nil
		}
		if !retry {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

// once performs a single attempt and reports whether its failure is
// transient.
func (c *Client) once(ctx context.Context, url string, header http.Header, limit int64) ([]byte, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, false, fmt.Errorf("httpds: build request: %w", err)
	}
	req.Header = header.Clone()

	resp, err := c.hc.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, false, ctx.Err()
		}
		return nil, true, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, isRetryableStatus(resp.StatusCode), &StatusError{Code: resp.StatusCode, URL: url}
	}

	// One byte past the limit tells an oversize body from an exact fit.
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(&io.LimitedReader{R: resp.Body, N: limit + 1}); err != nil {
		return nil, false, fmt.Errorf("httpds: read body: %w", err)
	}
	if int64(buf.Len()) > limit {
		return nil, false, fmt.Errorf("httpds: body of %s exceeds %d bytes", url, limit)
	}
	return buf.Bytes(), false, nil
}

func isRetryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || (code >= 500 && code <= 599)
}

// backoffDuration is initial * 2^retry, clamped to max.
func backoffDuration(initial time.Duration, retry int, max time.Duration) time.Duration {
	if retry > 30 {
		return max
	}
	d := initial << retry
	if d <= 0 || d > max {
		return max
	}
	return d
}

func waitContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
