// Package telemetry wraps OpenTelemetry tracing and metrics for graph
// execution. Without providers every call is a no-op.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

const instrumentationName = "github.com/hupe1980/reportgraph"

// Options configures Telemetry.
type Options struct {
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
}

// Telemetry creates spans for sessions and nodes and records counters and
// duration histograms for both.
type Telemetry struct {
	tracer       trace.Tracer
	sessions     metric.Int64Counter
	nodes        metric.Int64Counter
	nodeFailures metric.Int64Counter
	sessionTime  metric.Float64Histogram
	nodeTime     metric.Float64Histogram
}

// New creates a Telemetry. Instruments that cannot be created fall back to
// no-op instruments.
func New(optFns ...func(o *Options)) *Telemetry {
	opts := Options{
		TracerProvider: tracenoop.NewTracerProvider(),
		MeterProvider:  metricnoop.NewMeterProvider(),
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	meter := opts.MeterProvider.Meter(instrumentationName)
	fallback := metricnoop.Meter{}

	t := &Telemetry{tracer: opts.TracerProvider.Tracer(instrumentationName)}

	var err error

	if t.sessions, err = meter.Int64Counter("reportgraph.sessions", metric.WithDescription("Finished sessions by status")); err != nil {
		t.sessions, _ = fallback.Int64Counter("reportgraph.sessions")
	}

	if t.nodes, err = meter.Int64Counter("reportgraph.node.executions", metric.WithDescription("Executed nodes")); err != nil {
		t.nodes, _ = fallback.Int64Counter("reportgraph.node.executions")
	}

	if t.nodeFailures, err = meter.Int64Counter("reportgraph.node.failures", metric.WithDescription("Failed nodes")); err != nil {
		t.nodeFailures, _ = fallback.Int64Counter("reportgraph.node.failures")
	}

	if t.sessionTime, err = meter.Float64Histogram("reportgraph.session.duration", metric.WithUnit("s")); err != nil {
		t.sessionTime, _ = fallback.Float64Histogram("reportgraph.session.duration")
	}

	if t.nodeTime, err = meter.Float64Histogram("reportgraph.node.duration", metric.WithUnit("s")); err != nil {
		t.nodeTime, _ = fallback.Float64Histogram("reportgraph.node.duration")
	}

	return t
}

// Noop returns a Telemetry that records nothing.
func Noop() *Telemetry { return New() }

// StartSession opens the span of a session.
func (t *Telemetry) StartSession(ctx context.Context, sessionID, graphKey string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "reportgraph.session", trace.WithAttributes(
		attribute.String("session.id", sessionID),
		attribute.String("graph.key", graphKey),
	))
}

// EndSession closes a session span and records its outcome.
func (t *Telemetry) EndSession(ctx context.Context, span trace.Span, status string, dur time.Duration, err error) {
	attrs := metric.WithAttributes(attribute.String("status", status))

	t.sessions.Add(ctx, 1, attrs)
	t.sessionTime.Record(ctx, dur.Seconds(), attrs)

	endSpan(span, err)
}

// StartNode opens the span of one node execution.
func (t *Telemetry) StartNode(ctx context.Context, node string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "reportgraph.node", trace.WithAttributes(attribute.String("node", node)))
}

// EndNode closes a node span and records the execution.
func (t *Telemetry) EndNode(ctx context.Context, span trace.Span, node string, dur time.Duration, err error) {
	attrs := metric.WithAttributes(attribute.String("node", node))

	t.nodes.Add(ctx, 1, attrs)
	t.nodeTime.Record(ctx, dur.Seconds(), attrs)

	if err != nil {
		t.nodeFailures.Add(ctx, 1, attrs)
	}

	endSpan(span, err)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}

	span.End()
}
