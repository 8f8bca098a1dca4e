package cached

import (
	"log/slog"
	"time"
)

// Default configuration values.
const (
	DefaultTTL       = 15 * time.Minute
	DefaultKeyPrefix = "resolve"
)

// options holds cached lookup configuration.
type options struct {
	ttl       time.Duration
	keyPrefix string
	logger    *slog.Logger
}

func newOptions(opts ...Option) *options {
	o := &options{
		ttl:       DefaultTTL,
		keyPrefix: DefaultKeyPrefix,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Option configures a cached lookup.
type Option func(*options)

// WithTTL sets how long cached resolutions are kept.
func WithTTL(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.ttl = d
		}
	}
}

// WithKeyPrefix sets the redis key prefix.
func WithKeyPrefix(prefix string) Option {
	return func(o *options) {
		if prefix != "" {
			o.keyPrefix = prefix
		}
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
