package telemetry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
	"go.trai.ch/quarry/internal/adapters/telemetry"
	"go.trai.ch/quarry/internal/core/ports"
)

func TestInterfaceSatisfaction(_ *testing.T) {
	var _ ports.Tracer = (*telemetry.OTelTracer)(nil)
	var _ ports.Span = (*telemetry.OTelSpan)(nil)
	var _ ports.Tracer = (*telemetry.NoOpTracer)(nil)
	var _ ports.Span = (*telemetry.NoOpSpan)(nil)
	var _ sdktrace.SpanProcessor = (*telemetry.Profiler)(nil)
}

func setupRecorder(t *testing.T) (*tracetest.SpanRecorder, *telemetry.OTelTracer) {
	t.Helper()
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return sr, telemetry.NewOTelTracerFromProvider(tp, "test")
}

func TestOTelTracer_SpanAttributes(t *testing.T) {
	sr, tracer := setupRecorder(t)

	_, span := tracer.Start(context.Background(), "expanded(a.q)", ports.WithCached())
	span.SetAttribute("kind", "expanded")
	span.SetAttribute("edges", 3)
	n, err := span.Write([]byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	span.End()

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "expanded(a.q)", spans[0].Name())
	assert.Contains(t, spans[0].Attributes(), attribute.Bool("query.cached", true))
	assert.Contains(t, spans[0].Attributes(), attribute.String("kind", "expanded"))
	assert.Contains(t, spans[0].Attributes(), attribute.Int("edges", 3))
	require.Len(t, spans[0].Events(), 1)
	assert.Equal(t, "log", spans[0].Events()[0].Name)
}

func TestOTelTracer_RecordError(t *testing.T) {
	sr, tracer := setupRecorder(t)

	_, span := tracer.Start(context.Background(), "broken")
	span.RecordError(errors.New("boom"))
	span.End()

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Equal(t, "boom", spans[0].Status().Description)
}

func TestOTelTracer_EmitPlan(t *testing.T) {
	sr, tracer := setupRecorder(t)

	// Without a recording span there is nothing to attach the event to.
	tracer.EmitPlan(context.Background(), []string{"summary(())"})
	assert.Empty(t, sr.Ended())

	ctx, span := tracer.Start(context.Background(), "session")
	tracer.EmitPlan(ctx, []string{"summary(())", "manifest(())"})
	span.End()

	spans := sr.Ended()
	require.Len(t, spans, 1)
	events := spans[0].Events()
	require.Len(t, events, 1)
	assert.Equal(t, "plan_emitted", events[0].Name)
}

func TestProfiler_Slowest(t *testing.T) {
	profiler := telemetry.NewProfiler()
	tp := telemetry.NewProvider(profiler)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	tracer := tp.Tracer("test")

	start := time.Unix(0, 0)
	durations := []time.Duration{time.Millisecond, time.Second, 10 * time.Millisecond}
	for i, name := range []string{"fast", "slow", "medium"} {
		_, span := tracer.Start(context.Background(), name, trace.WithTimestamp(start))
		span.End(trace.WithTimestamp(start.Add(durations[i])))
	}

	slowest := profiler.Slowest(2)
	require.Len(t, slowest, 2)
	assert.Equal(t, "slow", slowest[0].Name)
	assert.Equal(t, time.Second, slowest[0].Duration)
	assert.Equal(t, "medium", slowest[1].Name)

	profiler.Reset()
	assert.Empty(t, profiler.Slowest(2))
}

func TestNoOpTracer(t *testing.T) {
	tracer := telemetry.NewNoOpTracer()
	_, span := tracer.Start(context.Background(), "anything")
	span.SetAttribute("key", "value")
	span.RecordError(errors.New("ignored"))
	n, err := span.Write([]byte("test log"))
	require.NoError(t, err)
	assert.Equal(t, 8, n)
	span.End()

	allocs := testing.AllocsPerRun(100, func() {
		_, s := tracer.Start(context.Background(), "expanded(a.q)", ports.WithCached())
		s.End()
	})
	assert.Zero(t, allocs)
}
