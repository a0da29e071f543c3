package depgraph

import (
	"sync/atomic"

	"go.trai.ch/quarry/internal/core/domain"
)

// color of a previous-session node: 0 unknown, 1 red, 2+i green with current index i.
type color uint64

const (
	colorUnknown color = 0
	colorRed     color = 1
	greenBase    color = 2
)

func (c color) isGreen() bool {
	return c >= greenBase
}

func (c color) index() domain.DepNodeIndex {
	return domain.DepNodeIndex(c - greenBase) //nolint:gosec // Green colors are built from a DepNodeIndex
}

// previous is the read-only graph of the last session plus the colors assigned to its
// nodes during this session.
type previous struct {
	graph  *domain.SerializedGraph
	info   []domain.KindInfo
	known  []bool
	index  map[domain.DepNode]domain.SerializedIndex
	colors []atomic.Uint64
}

// newPrevious resolves kind names against the current registry. Nodes of kinds that no
// longer exist stay in the table so indices line up, but can never be reused.
func newPrevious(kinds domain.KindResolver, g *domain.SerializedGraph) *previous {
	p := &previous{
		graph:  g,
		info:   make([]domain.KindInfo, len(g.Nodes)),
		known:  make([]bool, len(g.Nodes)),
		index:  make(map[domain.DepNode]domain.SerializedIndex, len(g.Nodes)),
		colors: make([]atomic.Uint64, len(g.Nodes)),
	}
	for i := range g.Nodes {
		if kinds == nil {
			continue
		}
		info, ok := kinds.KindByName(g.Nodes[i].Kind)
		if !ok {
			continue
		}
		p.info[i] = info
		p.known[i] = true
		p.index[domain.NewDepNode(info.Kind, g.Nodes[i].Hash)] = domain.SerializedIndex(i) //nolint:gosec // Bounded by node count
	}
	return p
}

func (p *previous) color(i domain.SerializedIndex) color {
	return color(p.colors[i].Load())
}

// setGreen colors i green unless it already has a color. It reports whether it did.
func (p *previous) setGreen(i domain.SerializedIndex, idx domain.DepNodeIndex) bool {
	return p.colors[i].CompareAndSwap(uint64(colorUnknown), uint64(greenBase)+uint64(idx))
}

// setRed colors i red unless it already has a color.
func (p *previous) setRed(i domain.SerializedIndex) bool {
	return p.colors[i].CompareAndSwap(uint64(colorUnknown), uint64(colorRed))
}
