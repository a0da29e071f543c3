package ondisk

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/quarry/internal/build"
	"go.trai.ch/quarry/internal/core/ports"
)

// NodeID is the unique identifier for the incremental store Graft node.
const NodeID graft.ID = "adapter.incremental_store"

func init() {
	graft.Register(graft.Node[ports.IncrementalStore]{
		ID:        NodeID,
		Cacheable: true,
		Run: func(_ context.Context) (ports.IncrementalStore, error) {
			return NewStore(build.Version), nil
		},
	})
}
