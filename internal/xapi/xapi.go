// Package xapi implements a read-only client for the X v2 REST API, covering
// recent search, single-post lookup, user lookup by handle, and the composite
// profile and thread operations built on top of them.
//
// The client holds no credential of its own: every call takes the bearer
// token of the user on whose behalf it is made.
package xapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefBaseURL is the production API base.
	DefBaseURL = "https://api.x.com/2"

	// DefPageDelay is the pause inserted between consecutive pages of a
	// multi-page search, to stay within the upstream rate budget.
	DefPageDelay = 350 * time.Millisecond

	// DefTimeout bounds every upstream HTTP call.  The upstream imposes no
	// timeout of its own, so we set one explicitly.
	DefTimeout = 60 * time.Second

	// defRateLimitWait is assumed when a 429 response carries no usable
	// reset header.
	defRateLimitWait = 60 * time.Second

	// maxBodyExcerpt limits the response body carried inside a StatusError.
	maxBodyExcerpt = 200
)

// Client issues authenticated calls against the upstream API.  It is safe for
// concurrent use.
type Client struct {
	cl      *http.Client
	baseURL string
	pages   *rate.Limiter // paces consecutive pages within one search
	logger  *slog.Logger
}

// Option configures the Client.
type Option func(*Client)

// WithBaseURL overrides the upstream base URL (used by tests).
func WithBaseURL(u string) Option {
	return func(c *Client) {
		c.baseURL = u
	}
}

// WithHTTPClient substitutes the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.cl = hc
		}
	}
}

// WithPageDelay sets the minimum interval between page fetches within one
// multi-page search.
func WithPageDelay(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.pages = rate.NewLimiter(rate.Every(d), 1)
		}
	}
}

// WithLogger sets the logger.  A nil logger falls back to slog.Default.
func WithLogger(lg *slog.Logger) Option {
	return func(c *Client) {
		if lg != nil {
			c.logger = lg
		}
	}
}

// New creates a Client with the given options.
func New(opts ...Option) *Client {
	c := &Client{
		cl:      &http.Client{Timeout: DefTimeout},
		baseURL: DefBaseURL,
		pages:   rate.NewLimiter(rate.Every(DefPageDelay), 1),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// get issues a bearer-authenticated GET against path (relative to the base
// URL, including any query string) and decodes the JSON response into out.
// A 429 response is converted into a *RateLimitedError, any other
// non-success status into a *StatusError.
func (c *Client) get(ctx context.Context, credential, pathAndQuery string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+pathAndQuery, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+credential)

	resp, err := c.cl.Do(req)
	if err != nil {
		return fmt.Errorf("upstream request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return &RateLimitedError{RetryAfter: resetWait(resp.Header, time.Now())}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Code: resp.StatusCode, Body: bodyExcerpt(resp.Body)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// resetWait computes the wait duration from the rate-limit reset header.
// Floor is 1 second; absent or malformed headers yield the default wait.
func resetWait(h http.Header, now time.Time) time.Duration {
	v := h.Get("x-rate-limit-reset")
	if v == "" {
		return defRateLimitWait
	}
	reset, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defRateLimitWait
	}
	wait := time.Unix(reset, 0).Sub(now)
	if wait < time.Second {
		return time.Second
	}
	return wait
}

func bodyExcerpt(r io.Reader) string {
	b, err := io.ReadAll(io.LimitReader(r, maxBodyExcerpt))
	if err != nil {
		return ""
	}
	return string(b)
}
