package resolve

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for the resolve package.
// Use errors.Is() to check for these errors.
var (
	// ErrLookupRequired is returned by New when no directory lookup is configured.
	ErrLookupRequired = errors.New("resolve: lookup is required")

	// ErrClosed is returned when operations are attempted on a closed engine.
	ErrClosed = errors.New("resolve: engine closed")

	// ErrRateLimited indicates the directory backend throttled a lookup.
	// Lookup implementations should return an error matching this sentinel
	// (directly, wrapped, or via ThrottleError) so the engine backs off
	// instead of failing the batch.
	ErrRateLimited = errors.New("resolve: rate limited")

	// ErrNotFound indicates a directory object does not exist or is not
	// visible to the caller. Not retryable.
	ErrNotFound = errors.New("resolve: object not found")

	// ErrMalformedResponse indicates the backend returned a response the
	// engine could not interpret. Treated as a batch failure and retried
	// under the same bounded policy as transient errors.
	ErrMalformedResponse = errors.New("resolve: malformed lookup response")
)

// ThrottleError is a rate-limit signal carrying the backend status code and
// an optional server-suggested delay. It matches ErrRateLimited via errors.Is.
type ThrottleError struct {
	// Status is the HTTP-equivalent status code (429 or 503).
	Status int
	// RetryAfter is the server-suggested delay, zero if none was given.
	RetryAfter time.Duration
}

func (e *ThrottleError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("resolve: rate limited (status %d, retry after %s)", e.Status, e.RetryAfter)
	}
	return fmt.Sprintf("resolve: rate limited (status %d)", e.Status)
}

func (e *ThrottleError) Is(target error) bool {
	return target == ErrRateLimited
}

// Retryable marks throttle errors as retryable for the retry package.
func (e *ThrottleError) Retryable() bool {
	return true
}

// IsRateLimited reports whether err is a rate-limit signal from the backend.
func IsRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimited)
}

// isRetryableLookupError classifies lookup failures for the retry policy.
// Rate limits and unknown errors (assumed transient network/5xx conditions)
// are retried; explicit not-found conditions are not.
func isRetryableLookupError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNotFound) {
		return false
	}
	if errors.Is(err, ErrRateLimited) {
		return true
	}
	var retryable interface{ Retryable() bool }
	if errors.As(err, &retryable) {
		return retryable.Retryable()
	}
	// Unknown errors are assumed transient (timeouts, connection resets).
	return true
}
