// Package fetch downloads source archives for the raw stage. A small
// retrying HTTP client scrapes the publisher's index page for zip
// links, streams each archive to disk, and extracts the tabular
// members. Transient failures are retried with exponential backoff,
// and both requests and backoff waits respect context cancellation.
package fetch

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// Config configures the fetch client.
//
// Zero values are given sensible defaults:
//   - HeaderTimeout:  30s
//   - InitialBackoff: 500ms
//   - MaxBackoff:     10s
//
// MaxRetries defaults to zero, a single attempt.
type Config struct {
	// HeaderTimeout bounds dialing, TLS, and waiting for response
	// headers. It deliberately does not bound the body read: archives
	// are large and their transfer time depends on the link, so only
	// the context can abort a download in flight.
	HeaderTimeout time.Duration

	// MaxRetries is the number of retry attempts after the initial
	// request. Zero means a single attempt.
	MaxRetries int

	// InitialBackoff is the wait before the first retry. Each further
	// retry doubles it, clamped to MaxBackoff.
	InitialBackoff time.Duration

	// MaxBackoff caps the exponential backoff duration.
	MaxBackoff time.Duration

	// UserAgent is sent with every request when non-empty. Some
	// government mirrors reject the default Go user agent.
	UserAgent string

	// InsecureSkipVerify disables TLS certificate verification. Old
	// publisher mirrors occasionally serve expired certificates.
	InsecureSkipVerify bool

	// Transport is an optional custom RoundTripper. When nil, a
	// default *http.Transport is constructed from the settings above.
	Transport http.RoundTripper
}

// Client performs the HTTP side of the raw stage: index pages and
// archive downloads, with retry and backoff.
type Client struct {
	hc             *http.Client
	maxRetries     int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	userAgent      string
}

// NewClient constructs a Client from Config, applying defaults for
// zero values.
func NewClient(cfg Config) *Client {
	if cfg.HeaderTimeout <= 0 {
		cfg.HeaderTimeout = 30 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 500 * time.Millisecond
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 10 * time.Second
	}

	transport := cfg.Transport
	if transport == nil {
		transport = &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			TLSHandshakeTimeout:   cfg.HeaderTimeout,
			ResponseHeaderTimeout: cfg.HeaderTimeout,
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: cfg.InsecureSkipVerify, //nolint:gosec // explicitly configurable
			},
		}
	}

	return &Client{
		hc:             &http.Client{Transport: transport},
		maxRetries:     cfg.MaxRetries,
		initialBackoff: cfg.InitialBackoff,
		maxBackoff:     cfg.MaxBackoff,
		userAgent:      cfg.UserAgent,
	}
}

// get issues a GET and retries transient failures. It returns only
// 200 responses; any other final status is an error. The caller must
// close the response body.
func (c *Client) get(ctx context.Context, url string) (*http.Response, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("fetch: build request: %w", err)
		}
		if c.userAgent != "" {
			req.Header.Set("User-Agent", c.userAgent)
		}

		resp, err := c.hc.Do(req)
		switch {
		case err != nil:
			// Network or transport-level error; retryable.
			lastErr = err
		case retryableStatus(resp.StatusCode):
			resp.Body.Close()
			lastErr = fmt.Errorf("fetch: status %s from %s", resp.Status, url)
		case resp.StatusCode != http.StatusOK:
			resp.Body.Close()
			return nil, fmt.Errorf("fetch: status %s from %s", resp.Status, url)
		default:
			return resp, nil
		}

		if attempt == c.maxRetries {
			break
		}
		if err := sleepWithContext(ctx, backoffDuration(c.initialBackoff, attempt, c.maxBackoff)); err != nil {
			return nil, err
		}
	}
	return nil, lastErr
}

// Download streams the resource at url into dest, creating parent
// directories as needed. The body is written to a temporary file next
// to dest and renamed into place on success, so a partial transfer
// never masquerades as a finished archive. Returns the byte count
// written.
func (c *Client) Download(ctx context.Context, url, dest string) (int64, error) {
	resp, err := c.get(ctx, url)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("fetch: download %s: %w", url, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(dest)+".part*")
	if err != nil {
		return 0, fmt.Errorf("fetch: download %s: %w", url, err)
	}

	n, err := io.Copy(tmp, resp.Body)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp.Name())
		return n, fmt.Errorf("fetch: download %s: %w", url, err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		os.Remove(tmp.Name())
		return n, fmt.Errorf("fetch: download %s: %w", url, err)
	}
	return n, nil
}

// retryableStatus reports whether the status code should trigger a
// retry. Conservative: 5xx and 429 are transient, everything else is
// final.
func retryableStatus(code int) bool {
	if code == http.StatusTooManyRequests {
		return true
	}
	return code >= 500 && code <= 599
}

// backoffDuration returns the exponential backoff for the given
// 0-based retry index, clamped to max.
func backoffDuration(initial time.Duration, attempt int, max time.Duration) time.Duration {
	d := initial << attempt
	if d > max || d <= 0 {
		return max
	}
	return d
}

// sleepWithContext waits for d, aborting early if ctx is canceled.
func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
