package resolve

import (
	"log/slog"
	"testing"
	"time"

	"github.com/rbaliyan/resolve/retry"
)

func TestNewOptions(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		o := newOptions()
		if o.maxBatchSize != DefaultMaxBatchSize {
			t.Errorf("maxBatchSize = %d, want %d", o.maxBatchSize, DefaultMaxBatchSize)
		}
		if o.maxConcurrentBatches != DefaultMaxConcurrentBatches {
			t.Errorf("maxConcurrentBatches = %d, want %d", o.maxConcurrentBatches, DefaultMaxConcurrentBatches)
		}
		if o.retry.MaxAttempts != retry.DefaultMaxAttempts {
			t.Errorf("retry.MaxAttempts = %d, want %d", o.retry.MaxAttempts, retry.DefaultMaxAttempts)
		}
		if o.logger == nil {
			t.Error("logger must default to slog.Default()")
		}
		if o.tenant != "" {
			t.Errorf("tenant = %q, want empty", o.tenant)
		}
	})

	t.Run("invalid values ignored", func(t *testing.T) {
		o := newOptions(
			WithMaxBatchSize(0),
			WithMaxBatchSize(-5),
			WithMaxConcurrentBatches(0),
			WithLogger(nil),
		)
		if o.maxBatchSize != DefaultMaxBatchSize {
			t.Errorf("maxBatchSize = %d, want default kept", o.maxBatchSize)
		}
		if o.maxConcurrentBatches != DefaultMaxConcurrentBatches {
			t.Errorf("maxConcurrentBatches = %d, want default kept", o.maxConcurrentBatches)
		}
		if o.logger == nil {
			t.Error("nil logger must not override default")
		}
	})

	t.Run("custom values applied", func(t *testing.T) {
		logger := slog.Default().With("component", "resolve")
		cfg := retry.Config{MaxAttempts: 5, BaseDelay: time.Second}
		o := newOptions(
			WithTenant("contoso.onmicrosoft.com"),
			WithMaxBatchSize(50),
			WithMaxConcurrentBatches(3),
			WithRetryConfig(cfg),
			WithLogger(logger),
			WithServiceName("audit-ui"),
		)
		if o.tenant != "contoso.onmicrosoft.com" {
			t.Errorf("tenant = %q", o.tenant)
		}
		if o.maxBatchSize != 50 {
			t.Errorf("maxBatchSize = %d", o.maxBatchSize)
		}
		if o.maxConcurrentBatches != 3 {
			t.Errorf("maxConcurrentBatches = %d", o.maxConcurrentBatches)
		}
		if o.retry.MaxAttempts != 5 {
			t.Errorf("retry.MaxAttempts = %d", o.retry.MaxAttempts)
		}
		if o.serviceName != "audit-ui" {
			t.Errorf("serviceName = %q", o.serviceName)
		}
	})

	t.Run("retry classification defaulted", func(t *testing.T) {
		o := newOptions(WithRetryConfig(retry.Config{MaxAttempts: 2}))
		if o.retry.IsRetryable == nil {
			t.Error("IsRetryable must default to the engine's classification")
		}
		if o.retry.IsRetryable(&ThrottleError{Status: 429}) != true {
			t.Error("throttle errors must be retryable")
		}
		if o.retry.IsRetryable(ErrNotFound) != false {
			t.Error("not-found must not be retryable")
		}
	})
}
