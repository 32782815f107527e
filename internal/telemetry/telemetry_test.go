package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric/noop"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestNop_DoesNotPanic(t *testing.T) {
	tel := Nop()
	ctx := context.Background()

	ctx, span := tel.StartHook(ctx, "turn-end", "main")
	tel.RecordEntropy(ctx, "main", 0.4, false)
	tel.RecordLoop(ctx, "main", "file_reread")
	tel.RecordInjected(ctx, "main", 2)
	tel.RecordInjected(ctx, "main", 0)
	tel.RecordFeedbackDelta(ctx, "main", -0.3)
	EndHook(span, nil)
}

func TestNew_WithProviders(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	tel, err := New(noop.NewMeterProvider(), tp)
	require.NoError(t, err)

	_, started := tel.StartHook(context.Background(), "turn-start", "main")
	EndHook(started, nil)
	_, failed := tel.StartHook(context.Background(), "tool-call", "main")
	EndHook(failed, errors.New("boom"))

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "driftwatch.hook.turn-start", spans[0].Name())
	assert.Equal(t, codes.Unset, spans[0].Status().Code)
	assert.Equal(t, codes.Error, spans[1].Status().Code)
	assert.Len(t, spans[1].Events(), 1, "error recorded as span event")
}

func TestPipeline_Snapshot(t *testing.T) {
	p, err := NewPipeline(nil)
	require.NoError(t, err)
	ctx := context.Background()

	ctx, span := p.StartHook(ctx, "turn-end", "main")
	p.RecordEntropy(ctx, "main", 0.4, false)
	p.RecordEntropy(ctx, "main", 0.9, false)
	p.RecordLoop(ctx, "main", "file_reread")
	p.RecordInjected(ctx, "beta", 2)
	EndHook(span, nil)

	points, err := p.Snapshot(context.Background())
	require.NoError(t, err)
	require.Len(t, points, 3)

	entropy := points[0]
	assert.Equal(t, MetricEntropyScore, entropy.Name)
	assert.Equal(t, uint64(2), entropy.Count)
	assert.InDelta(t, 1.3, entropy.Sum, 1e-9)
	assert.InDelta(t, 0.4, entropy.Min, 1e-9)
	assert.InDelta(t, 0.9, entropy.Max, 1e-9)
	assert.Equal(t, "main", entropy.Attributes["agent.id"])

	assert.Equal(t, MetricLoopDetections, points[1].Name)
	assert.Equal(t, "file_reread", points[1].Attributes["loop.type"])
	assert.Equal(t, uint64(1), points[1].Count)

	assert.Equal(t, MetricVectorsInjected, points[2].Name)
	assert.Equal(t, uint64(2), points[2].Count)

	require.NoError(t, p.Shutdown(context.Background()))
	_, err = p.Snapshot(context.Background())
	assert.Error(t, err)
}
