// Package telemetry holds the OpenTelemetry instruments driftwatch records
// to. Without configured providers every call is a no-op.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// ScopeName is the instrumentation scope for meters and tracers.
const ScopeName = "github.com/boshu2/driftwatch"

// Instrument names.
const (
	MetricEntropyScore    = "driftwatch.entropy.score"
	MetricLoopDetections  = "driftwatch.loop.detections"
	MetricVectorsInjected = "driftwatch.vectors.injected"
	MetricFeedbackDelta   = "driftwatch.feedback.delta"
)

// Telemetry records driftwatch metrics and hook spans.
type Telemetry struct {
	tracer trace.Tracer

	entropyScore    metric.Float64Histogram
	loopDetections  metric.Int64Counter
	vectorsInjected metric.Int64Counter
	feedbackDelta   metric.Float64Histogram
}

// New creates the instruments. Nil providers fall back to no-op ones.
func New(mp metric.MeterProvider, tp trace.TracerProvider) (*Telemetry, error) {
	if mp == nil {
		mp = metricnoop.NewMeterProvider()
	}
	if tp == nil {
		tp = tracenoop.NewTracerProvider()
	}
	meter := mp.Meter(ScopeName)
	t := &Telemetry{tracer: tp.Tracer(ScopeName)}

	var err error
	t.entropyScore, err = meter.Float64Histogram(MetricEntropyScore,
		metric.WithDescription("Composite entropy score per observed turn"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create entropy histogram: %w", err)
	}
	t.loopDetections, err = meter.Int64Counter(MetricLoopDetections,
		metric.WithDescription("Tool-call loops detected"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create loop counter: %w", err)
	}
	t.vectorsInjected, err = meter.Int64Counter(MetricVectorsInjected,
		metric.WithDescription("Growth vectors injected at turn start"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create injection counter: %w", err)
	}
	t.feedbackDelta, err = meter.Float64Histogram(MetricFeedbackDelta,
		metric.WithDescription("Entropy delta observed after injecting a vector"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create feedback histogram: %w", err)
	}
	return t, nil
}

// Nop returns telemetry backed by no-op providers.
func Nop() *Telemetry {
	t, _ := New(nil, nil) //nolint:errcheck // no-op instruments cannot fail
	return t
}

// StartHook starts the span for one hook invocation.
func (t *Telemetry) StartHook(ctx context.Context, hook, agentID string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "driftwatch.hook."+hook,
		trace.WithAttributes(attribute.String("agent.id", agentID)))
}

// EndHook ends span, marking it failed when err is non-nil.
func EndHook(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// RecordEntropy records one turn's composite score.
func (t *Telemetry) RecordEntropy(ctx context.Context, agentID string, score float64, sustained bool) {
	t.entropyScore.Record(ctx, score, metric.WithAttributes(
		attribute.String("agent.id", agentID),
		attribute.Bool("sustained", sustained),
	))
}

// RecordLoop counts one loop detection.
func (t *Telemetry) RecordLoop(ctx context.Context, agentID, loopType string) {
	t.loopDetections.Add(ctx, 1, metric.WithAttributes(
		attribute.String("agent.id", agentID),
		attribute.String("loop.type", loopType),
	))
}

// RecordInjected counts vectors injected at turn start.
func (t *Telemetry) RecordInjected(ctx context.Context, agentID string, n int) {
	if n <= 0 {
		return
	}
	t.vectorsInjected.Add(ctx, int64(n), metric.WithAttributes(attribute.String("agent.id", agentID)))
}

// RecordFeedbackDelta records one feedback entry's entropy delta.
func (t *Telemetry) RecordFeedbackDelta(ctx context.Context, agentID string, delta float64) {
	t.feedbackDelta.Record(ctx, delta, metric.WithAttributes(attribute.String("agent.id", agentID)))
}
