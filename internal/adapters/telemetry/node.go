package telemetry

import (
	"context"

	"github.com/grindlemire/graft"
)

const (
	// ProfilerNodeID is the unique identifier for the span profiler Graft node.
	ProfilerNodeID graft.ID = "adapter.telemetry.profiler"
	// TracerNodeID is the unique identifier for the OpenTelemetry tracer Graft node.
	TracerNodeID graft.ID = "adapter.telemetry"
)

func init() {
	graft.Register(graft.Node[*Profiler]{
		ID:        ProfilerNodeID,
		Cacheable: true,
		Run: func(_ context.Context) (*Profiler, error) {
			return NewProfiler(), nil
		},
	})

	graft.Register(graft.Node[*OTelTracer]{
		ID:        TracerNodeID,
		Cacheable: true,
		DependsOn: []graft.ID{ProfilerNodeID},
		Run: func(ctx context.Context) (*OTelTracer, error) {
			p, err := graft.Dep[*Profiler](ctx)
			if err != nil {
				return nil, err
			}
			return NewOTelTracerFromProvider(NewProvider(p), InstrumentationName), nil
		},
	})
}
