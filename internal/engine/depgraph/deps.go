package depgraph

import (
	"sync"

	"go.trai.ch/quarry/internal/core/domain"
)

// Deps is the read set of one running task. It is safe for concurrent use so that a task
// can fan out to parallel children that all record into it.
type Deps struct {
	mu     sync.Mutex
	reads  []domain.DepNodeIndex
	seen   map[domain.DepNodeIndex]struct{}
	ignore bool
}

// NewDeps returns an empty read set.
func NewDeps() *Deps {
	return &Deps{seen: make(map[domain.DepNodeIndex]struct{})}
}

// IgnoreDeps returns a read set that discards every read. It is used when re-running a
// provider whose node is already known to be green.
func IgnoreDeps() *Deps {
	return &Deps{ignore: true}
}

// Read records that the running task consumed the node at index.
// It is a no-op without an active task (deps == nil) and for invalid indices.
func Read(deps *Deps, index domain.DepNodeIndex) {
	if deps == nil || deps.ignore || !index.Valid() {
		return
	}
	deps.mu.Lock()
	defer deps.mu.Unlock()
	if _, ok := deps.seen[index]; ok {
		return
	}
	deps.seen[index] = struct{}{}
	deps.reads = append(deps.reads, index)
}

// Reads returns the recorded reads in first-read order.
func (d *Deps) Reads() []domain.DepNodeIndex {
	if d == nil {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]domain.DepNodeIndex, len(d.reads))
	copy(out, d.reads)
	return out
}

// Ignored reports whether reads are discarded.
func (d *Deps) Ignored() bool {
	return d != nil && d.ignore
}
