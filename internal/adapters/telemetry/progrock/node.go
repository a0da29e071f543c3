package progrock

import (
	"context"

	"github.com/grindlemire/graft"
)

// NodeID is the unique identifier for the progrock tracer Graft node.
const NodeID graft.ID = "adapter.telemetry.progrock"

func init() {
	graft.Register(graft.Node[*Recorder]{
		ID:        NodeID,
		Cacheable: true,
		Run: func(_ context.Context) (*Recorder, error) {
			return New(), nil
		},
	})
}
