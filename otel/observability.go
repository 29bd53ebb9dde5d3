// Package otel provides an OpenTelemetry implementation of
// statestore.Observability: a span per set operation plus counters and
// histograms for commits, subscriber fan-out and backup operations.
package otel

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	statestore "github.com/tysonjf/astro-state"
)

const instrumentationName = "github.com/tysonjf/astro-state"

// Observability implements statestore.Observability using OpenTelemetry
type Observability struct {
	tracer trace.Tracer
	meter  metric.Meter

	// Metrics
	setCounter     metric.Int64Counter
	commitCounter  metric.Int64Counter
	noopCounter    metric.Int64Counter
	setErrors      metric.Int64Counter
	notifyCounter  metric.Int64Counter
	notifyDuration metric.Float64Histogram
	backupCounter  metric.Int64Counter
	backupDuration metric.Float64Histogram
	backupErrors   metric.Int64Counter
}

var _ statestore.Observability = (*Observability)(nil)

// Option configures the Observability
type Option func(*Observability)

// WithTracerProvider sets a custom tracer provider
func WithTracerProvider(provider trace.TracerProvider) Option {
	return func(o *Observability) {
		o.tracer = provider.Tracer(instrumentationName)
	}
}

// WithMeterProvider sets a custom meter provider
func WithMeterProvider(provider metric.MeterProvider) Option {
	return func(o *Observability) {
		o.meter = provider.Meter(instrumentationName)
	}
}

// New creates a new OpenTelemetry observability implementation
func New(opts ...Option) (*Observability, error) {
	obs := &Observability{
		tracer: otel.Tracer(instrumentationName),
		meter:  otel.Meter(instrumentationName),
	}

	for _, opt := range opts {
		opt(obs)
	}

	var err error

	obs.setCounter, err = obs.meter.Int64Counter(
		"statestore.set.count",
		metric.WithDescription("Number of set operations started"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, err
	}

	obs.commitCounter, err = obs.meter.Int64Counter(
		"statestore.commit.count",
		metric.WithDescription("Number of set operations that committed"),
		metric.WithUnit("{commit}"),
	)
	if err != nil {
		return nil, err
	}

	obs.noopCounter, err = obs.meter.Int64Counter(
		"statestore.noop.count",
		metric.WithDescription("Number of set operations short-circuited as no-ops"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, err
	}

	obs.setErrors, err = obs.meter.Int64Counter(
		"statestore.set.errors",
		metric.WithDescription("Number of failed set operations"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	obs.notifyCounter, err = obs.meter.Int64Counter(
		"statestore.notify.count",
		metric.WithDescription("Number of subscriber callbacks invoked"),
		metric.WithUnit("{callback}"),
	)
	if err != nil {
		return nil, err
	}

	obs.notifyDuration, err = obs.meter.Float64Histogram(
		"statestore.notify.duration",
		metric.WithDescription("Subscriber fan-out duration"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	obs.backupCounter, err = obs.meter.Int64Counter(
		"statestore.backup.count",
		metric.WithDescription("Number of backup operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, err
	}

	obs.backupDuration, err = obs.meter.Float64Histogram(
		"statestore.backup.duration",
		metric.WithDescription("Backup operation duration"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	obs.backupErrors, err = obs.meter.Int64Counter(
		"statestore.backup.errors",
		metric.WithDescription("Number of failed backup operations"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	return obs, nil
}

// OnSetStart starts a span for the set operation.
func (o *Observability) OnSetStart(ctx context.Context) context.Context {
	ctx, _ = o.tracer.Start(ctx, "statestore.set")

	o.setCounter.Add(ctx, 1)

	return ctx
}

// OnSetEnd records the outcome of the set operation and ends its span.
func (o *Observability) OnSetEnd(ctx context.Context, committed bool, err error) {
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(attribute.Bool("statestore.committed", committed))

	switch {
	case err != nil:
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
		o.setErrors.Add(ctx, 1)
	case committed:
		span.SetStatus(codes.Ok, "")
		o.commitCounter.Add(ctx, 1)
	default:
		span.SetStatus(codes.Ok, "")
		o.noopCounter.Add(ctx, 1)
	}

	span.End()
}

// OnNotify records a completed subscriber fan-out.
func (o *Observability) OnNotify(subscribers int, duration time.Duration) {
	ctx := context.Background()
	o.notifyCounter.Add(ctx, int64(subscribers))
	o.notifyDuration.Record(ctx, float64(duration.Milliseconds()))
}

// OnBackup records a completed backup operation.
func (o *Observability) OnBackup(ctx context.Context, op string, duration time.Duration, err error) {
	attrs := metric.WithAttributes(attribute.String("backup.op", op))

	o.backupCounter.Add(ctx, 1, attrs)
	o.backupDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
	if err != nil {
		o.backupErrors.Add(ctx, 1, attrs)
	}
}
