package resolve

import (
	"log/slog"

	"github.com/rbaliyan/resolve/retry"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Default configuration values.
const (
	// DefaultMaxBatchSize bounds how many IDs are sent in one lookup call.
	DefaultMaxBatchSize = 20

	// DefaultMaxConcurrentBatches bounds lookup calls in flight across all
	// tenants. Batches within one tenant always run sequentially.
	DefaultMaxConcurrentBatches = 10
)

// options holds engine configuration.
type options struct {
	lookup Lookup
	logger *slog.Logger

	// tenant is the default tenant context for canonical GUID matches.
	tenant string

	maxBatchSize         int
	maxConcurrentBatches int64

	retry retry.Config

	// OpenTelemetry
	tracingEnabled bool
	metricsEnabled bool
	serviceName    string
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
}

// newOptions creates options with defaults and applies provided options.
func newOptions(opts ...Option) *options {
	o := &options{
		logger:               slog.Default(),
		maxBatchSize:         DefaultMaxBatchSize,
		maxConcurrentBatches: DefaultMaxConcurrentBatches,
		retry:                retry.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.retry.IsRetryable == nil {
		o.retry.IsRetryable = isRetryableLookupError
	}
	return o
}

// Option configures the engine.
type Option func(*options)

// WithLookup sets the directory lookup backend. Required.
func WithLookup(l Lookup) Option {
	return func(o *options) {
		o.lookup = l
	}
}

// WithLookupFunc sets the directory lookup backend from a plain function.
func WithLookupFunc(f LookupFunc) Option {
	return func(o *options) {
		o.lookup = f
	}
}

// WithTenant sets the default tenant context used for canonical GUID
// matches. Partner-UPN matches always resolve against the domain embedded
// in the match.
func WithTenant(tenant string) Option {
	return func(o *options) {
		o.tenant = tenant
	}
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMaxBatchSize sets the maximum number of IDs per lookup call.
func WithMaxBatchSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxBatchSize = n
		}
	}
}

// WithMaxConcurrentBatches sets the maximum number of lookup calls in
// flight across all tenants.
func WithMaxConcurrentBatches(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxConcurrentBatches = int64(n)
		}
	}
}

// WithRetryConfig sets the retry policy for rate-limited and transient
// lookup failures. If cfg.IsRetryable is nil the engine's default
// classification is used.
func WithRetryConfig(cfg retry.Config) Option {
	return func(o *options) {
		o.retry = cfg
	}
}

// WithTracing enables OpenTelemetry tracing.
func WithTracing(enabled bool) Option {
	return func(o *options) {
		o.tracingEnabled = enabled
	}
}

// WithMetrics enables OpenTelemetry metrics.
func WithMetrics(enabled bool) Option {
	return func(o *options) {
		o.metricsEnabled = enabled
	}
}

// WithServiceName sets the service name reported in telemetry attributes.
func WithServiceName(name string) Option {
	return func(o *options) {
		o.serviceName = name
	}
}

// WithTracerProvider sets a custom tracer provider.
// Defaults to the global provider when tracing is enabled.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) {
		o.tracerProvider = tp
	}
}

// WithMeterProvider sets a custom meter provider.
// Defaults to the global provider when metrics are enabled.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) {
		o.meterProvider = mp
	}
}
