package telemetry

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// SpanTiming is the recorded duration of one finished query span.
type SpanTiming struct {
	Name     string
	Duration time.Duration
	Cached   bool
	Failed   bool
}

// Profiler implements sdktrace.SpanProcessor and keeps the timing of every finished
// span, so a session can report its slowest queries.
type Profiler struct {
	mu      sync.Mutex
	timings []SpanTiming
}

// NewProfiler returns an empty Profiler.
func NewProfiler() *Profiler {
	return &Profiler{}
}

// NewProvider returns a tracer provider that reports every span to p.
func NewProvider(p *Profiler) *sdktrace.TracerProvider {
	return sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(p))
}

// OnStart does nothing.
func (p *Profiler) OnStart(context.Context, sdktrace.ReadWriteSpan) {}

// OnEnd records the span's duration.
func (p *Profiler) OnEnd(s sdktrace.ReadOnlySpan) {
	if !s.SpanContext().IsValid() {
		return
	}
	timing := SpanTiming{
		Name:     s.Name(),
		Duration: s.EndTime().Sub(s.StartTime()),
		Failed:   s.Status().Code == codes.Error,
	}
	for _, kv := range s.Attributes() {
		if kv.Key == "query.cached" && kv.Value.Type() == attribute.BOOL {
			timing.Cached = kv.Value.AsBool()
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.timings = append(p.timings, timing)
}

// Slowest returns up to n timings, longest first.
func (p *Profiler) Slowest(n int) []SpanTiming {
	p.mu.Lock()
	out := slices.Clone(p.timings)
	p.mu.Unlock()

	slices.SortStableFunc(out, func(a, b SpanTiming) int {
		return cmp.Compare(b.Duration, a.Duration)
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// Reset forgets every recorded timing.
func (p *Profiler) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.timings = nil
}

// ForceFlush does nothing.
func (p *Profiler) ForceFlush(context.Context) error {
	return nil
}

// Shutdown does nothing.
func (p *Profiler) Shutdown(context.Context) error {
	return nil
}
