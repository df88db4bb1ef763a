package xapi

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when the upstream API has no record for the
// requested handle or post.
var ErrNotFound = errors.New("not found")

// RateLimitedError is returned when the upstream API responds with HTTP 429.
// RetryAfter is derived from the x-rate-limit-reset header, or defaults to 60
// seconds when the header is absent.  This layer never retries on its own;
// the caller decides what to do with the wait time.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited by upstream, retry after %s", e.RetryAfter)
}

func (e *RateLimitedError) Is(target error) bool {
	_, ok := target.(*RateLimitedError)
	return ok
}

// StatusError is returned for any non-success upstream response other than a
// rate limit.  Body holds at most 200 characters of the response body.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream returned HTTP %d: %s", e.Code, e.Body)
}

func (e *StatusError) Is(target error) bool {
	t, ok := target.(*StatusError)
	return ok && (t.Code == 0 || t.Code == e.Code)
}
