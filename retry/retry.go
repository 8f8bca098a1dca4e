// Package retry provides bounded exponential-backoff retry for rate-limited
// and transient lookup failures.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// Default policy values. Tuned for directory lookup endpoints that throttle
// with 429/503: start at half a second, double per attempt, never wait more
// than eight seconds, and give up after four attempts total.
const (
	DefaultMaxAttempts = 4
	DefaultBaseDelay   = 500 * time.Millisecond
	DefaultMaxDelay    = 8 * time.Second
	DefaultMultiplier  = 2.0
	DefaultJitter      = 0.2
)

// Config configures retry behavior.
type Config struct {
	// MaxAttempts is the total number of attempts, including the first
	// (default: 4). Values below 1 are treated as 1.
	MaxAttempts int

	// BaseDelay is the delay before the first retry (default: 500ms).
	BaseDelay time.Duration

	// MaxDelay caps the computed backoff (default: 8s).
	MaxDelay time.Duration

	// Multiplier grows the delay after each attempt (default: 2.0).
	Multiplier float64

	// Jitter randomizes each delay by +/- the given fraction to avoid
	// synchronized resubmission (default: 0.2). Clamped to [0, 1].
	Jitter float64

	// IsRetryable decides whether an error is worth another attempt.
	// If nil, DefaultIsRetryable is used.
	IsRetryable func(error) bool
}

// DefaultConfig returns a Config with the package defaults.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   DefaultBaseDelay,
		MaxDelay:    DefaultMaxDelay,
		Multiplier:  DefaultMultiplier,
		Jitter:      DefaultJitter,
		IsRetryable: DefaultIsRetryable,
	}
}

// Sentinel errors.
var (
	// ErrAttemptsExhausted is returned when every attempt failed.
	ErrAttemptsExhausted = errors.New("retry: attempts exhausted")

	// ErrNotRetryable wraps errors the policy refused to retry.
	ErrNotRetryable = errors.New("retry: error is not retryable")

	// ErrCanceled wraps context cancellation during an attempt or backoff wait.
	ErrCanceled = errors.New("retry: canceled")
)

// Func is retried until it succeeds or the policy gives up. The attempt
// argument is zero-based, letting callers track per-item attempt counters.
type Func func(ctx context.Context, attempt int) error

// Do executes fn under cfg. It returns nil on the first success, or an
// *Error describing why the policy gave up.
func Do(ctx context.Context, cfg Config, fn Func) error {
	cfg = applyDefaults(cfg)

	var lastErr error
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		if ctx.Err() != nil {
			return &Error{Cause: coalesce(lastErr, ctx.Err()), Attempts: attempt, Err: ErrCanceled}
		}

		err := fn(ctx, attempt)
		if err == nil {
			return nil
		}
		lastErr = err

		if !cfg.IsRetryable(err) {
			return &Error{Cause: err, Attempts: attempt + 1, Err: ErrNotRetryable}
		}

		// No wait after the final attempt.
		if attempt == cfg.MaxAttempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return &Error{Cause: lastErr, Attempts: attempt + 1, Err: ErrCanceled}
		case <-time.After(backoff(cfg, attempt)):
		}
	}

	return &Error{Cause: lastErr, Attempts: cfg.MaxAttempts, Err: ErrAttemptsExhausted}
}

// Error describes a failed retry sequence.
type Error struct {
	// Cause is the last error returned by the function.
	Cause error

	// Attempts is the number of attempts made.
	Attempts int

	// Err is the sentinel (ErrAttemptsExhausted, ErrNotRetryable, or ErrCanceled).
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("retry failed after %d attempts (%s): %s", e.Attempts, e.Err, e.Cause)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func (e *Error) Is(target error) bool {
	return errors.Is(e.Err, target) || errors.Is(e.Cause, target)
}

// backoff computes the wait before the retry following the given zero-based
// attempt: min(base * multiplier^attempt, max), randomized by the jitter
// fraction.
func backoff(cfg Config, attempt int) time.Duration {
	d := float64(cfg.BaseDelay) * math.Pow(cfg.Multiplier, float64(attempt))
	if d > float64(cfg.MaxDelay) {
		d = float64(cfg.MaxDelay)
	}
	if cfg.Jitter > 0 {
		spread := d * cfg.Jitter
		d = d - spread + rand.Float64()*2*spread
	}
	return time.Duration(d)
}

func applyDefaults(cfg Config) Config {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = DefaultBaseDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = DefaultMaxDelay
	}
	if cfg.Multiplier <= 0 {
		cfg.Multiplier = DefaultMultiplier
	}
	if cfg.Jitter < 0 {
		cfg.Jitter = 0
	}
	if cfg.Jitter > 1 {
		cfg.Jitter = 1
	}
	if cfg.IsRetryable == nil {
		cfg.IsRetryable = DefaultIsRetryable
	}
	return cfg
}

// DefaultIsRetryable treats errors as retryable unless they are explicitly
// marked otherwise. Errors implementing Retryable() bool decide for
// themselves; unknown errors are assumed transient.
func DefaultIsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNotRetryable) {
		return false
	}
	var retryable interface{ Retryable() bool }
	if errors.As(err, &retryable) {
		return retryable.Retryable()
	}
	return true
}

func coalesce(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
