package resolve

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/rbaliyan/resolve"

// otelInstrumentation holds OpenTelemetry instrumentation for the engine.
type otelInstrumentation struct {
	enabled     bool
	serviceName string

	// Tracing
	tracingEnabled bool
	tracer         trace.Tracer

	// Metrics
	metricsEnabled bool

	lookupLatency metric.Float64Histogram
	lookupCount   metric.Int64Counter
	lookupErrors  metric.Int64Counter
	lookupRetries metric.Int64Counter

	resolvedCount metric.Int64Counter
	failedCount   metric.Int64Counter

	inflightBatches metric.Int64UpDownCounter
}

// newOtelInstrumentation creates new OTel instrumentation from options.
func newOtelInstrumentation(opts *options) (*otelInstrumentation, error) {
	o := &otelInstrumentation{
		enabled:        opts.tracingEnabled || opts.metricsEnabled,
		serviceName:    opts.serviceName,
		tracingEnabled: opts.tracingEnabled,
		metricsEnabled: opts.metricsEnabled,
	}

	if !o.enabled {
		return o, nil
	}
	if o.serviceName == "" {
		o.serviceName = "resolve"
	}

	if opts.tracingEnabled {
		tp := opts.tracerProvider
		if tp == nil {
			tp = otel.GetTracerProvider()
		}
		o.tracer = tp.Tracer(instrumentationName)
	}

	if opts.metricsEnabled {
		mp := opts.meterProvider
		if mp == nil {
			mp = otel.GetMeterProvider()
		}
		if err := o.initMetrics(mp); err != nil {
			return nil, err
		}
	}

	return o, nil
}

// initMetrics initializes all metric instruments.
func (o *otelInstrumentation) initMetrics(mp metric.MeterProvider) error {
	meter := mp.Meter(instrumentationName)

	var err error

	o.lookupLatency, err = meter.Float64Histogram(
		"resolve.lookup.duration",
		metric.WithDescription("Duration of batch lookup calls"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return err
	}

	o.lookupCount, err = meter.Int64Counter(
		"resolve.lookup.count",
		metric.WithDescription("Number of batch lookup calls"),
	)
	if err != nil {
		return err
	}

	o.lookupErrors, err = meter.Int64Counter(
		"resolve.lookup.errors",
		metric.WithDescription("Number of batch lookups that exhausted their retry budget"),
	)
	if err != nil {
		return err
	}

	o.lookupRetries, err = meter.Int64Counter(
		"resolve.lookup.retries",
		metric.WithDescription("Number of batch lookup retries"),
	)
	if err != nil {
		return err
	}

	o.resolvedCount, err = meter.Int64Counter(
		"resolve.identifiers.resolved",
		metric.WithDescription("Number of identifiers resolved to display names"),
	)
	if err != nil {
		return err
	}

	o.failedCount, err = meter.Int64Counter(
		"resolve.identifiers.failed",
		metric.WithDescription("Number of identifiers that terminally failed resolution"),
	)
	if err != nil {
		return err
	}

	o.inflightBatches, err = meter.Int64UpDownCounter(
		"resolve.batches.inflight",
		metric.WithDescription("Batches currently in flight or waiting on backoff"),
	)
	if err != nil {
		return err
	}

	return nil
}

// startSpan starts a new span if tracing is enabled.
// The returned function records the outcome and ends the span.
func (o *otelInstrumentation) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	if !o.tracingEnabled || o.tracer == nil {
		return ctx, func(error) {}
	}
	attrs = append(attrs, attribute.String("service.name", o.serviceName))
	ctx, span := o.tracer.Start(ctx, name,
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.End()
	}
}

// recordBatchStart marks a batch as in flight.
func (o *otelInstrumentation) recordBatchStart(ctx context.Context) {
	if !o.metricsEnabled {
		return
	}
	o.inflightBatches.Add(ctx, 1)
}

// recordBatchEnd records the final outcome of a batch.
func (o *otelInstrumentation) recordBatchEnd(ctx context.Context, tenant string, size int, duration time.Duration, resolved, failed int, err error) {
	if !o.metricsEnabled {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("tenant", tenant),
		attribute.Int("batch_size", size),
	)

	o.inflightBatches.Add(ctx, -1)
	o.lookupLatency.Record(ctx, duration.Seconds(), attrs)
	o.lookupCount.Add(ctx, 1, attrs)
	if err != nil {
		o.lookupErrors.Add(ctx, 1, attrs)
	}
	if resolved > 0 {
		o.resolvedCount.Add(ctx, int64(resolved), attrs)
	}
	if failed > 0 {
		o.failedCount.Add(ctx, int64(failed), attrs)
	}
}

// recordRetry records one retry of a batch.
func (o *otelInstrumentation) recordRetry(ctx context.Context, tenant string) {
	if !o.metricsEnabled {
		return
	}
	o.lookupRetries.Add(ctx, 1, metric.WithAttributes(attribute.String("tenant", tenant)))
}
