package depgraph

import (
	"sync/atomic"

	"go.trai.ch/quarry/internal/core/domain"
)

type counters struct {
	executed atomic.Int64
	anon     atomic.Int64
	fed      atomic.Int64
	green    atomic.Int64
	red      atomic.Int64
	forced   atomic.Int64
}

// Stats summarizes the graph of a session.
type Stats struct {
	Nodes    int
	Edges    int
	Previous int
	// Executed counts nodes whose provider ran.
	Executed int64
	// Anonymous counts distinct anonymous nodes.
	Anonymous int64
	// Fed counts input nodes.
	Fed int64
	// Green counts nodes reused from the previous session.
	Green int64
	// Red counts failed attempts to reuse a previous node.
	Red int64
	// Forced counts dependencies run while marking another node.
	Forced int64
}

// Stats returns counters for the session so far.
func (g *Graph) Stats() Stats {
	g.nodesMu.RLock()
	nodes := len(g.nodes)
	edges := 0
	for _, n := range g.nodes {
		edges += len(n.edges)
	}
	g.nodesMu.RUnlock()

	prev := 0
	if g.prev != nil {
		prev = len(g.prev.graph.Nodes)
	}
	return Stats{
		Nodes:     nodes,
		Edges:     edges,
		Previous:  prev,
		Executed:  g.stats.executed.Load(),
		Anonymous: g.stats.anon.Load(),
		Fed:       g.stats.fed.Load(),
		Green:     g.stats.green.Load(),
		Red:       g.stats.red.Load(),
		Forced:    g.stats.forced.Load(),
	}
}

// SnapshotResult counts what a snapshot contains.
type SnapshotResult struct {
	Nodes       int
	Fresh       int
	CarriedOver int
	Diagnostics int
}

// Snapshot builds the serialized graph for the next session. Current indices become the
// next session's serialized indices. fresh holds results encoded this session; results of
// promoted nodes without a fresh encoding are carried over from the previous session.
func (g *Graph) Snapshot(fresh map[domain.DepNodeIndex][]byte) (*domain.SerializedGraph, SnapshotResult) {
	out := domain.NewSerializedGraph()
	var res SnapshotResult

	g.nodesMu.RLock()
	nodes := make([]*node, len(g.nodes))
	copy(nodes, g.nodes)
	g.nodesMu.RUnlock()

	out.Nodes = make([]domain.SerializedNode, len(nodes))
	for i, n := range nodes {
		name := ""
		if g.kinds != nil {
			if info, ok := g.kinds.KindInfo(n.dep.Kind); ok {
				name = info.Name
			}
		}
		edges := make([]domain.SerializedIndex, len(n.edges))
		for j, e := range n.edges {
			edges[j] = domain.SerializedIndex(e)
		}
		out.Nodes[i] = domain.SerializedNode{
			Kind:        name,
			Hash:        n.dep.Hash,
			Fingerprint: n.fingerprint,
			Edges:       edges,
			Key:         n.key,
			Volatile:    n.volatile.Load(),
		}

		idx := domain.DepNodeIndex(i)   //nolint:gosec // Bounded by node count
		si := domain.SerializedIndex(i) //nolint:gosec // Bounded by node count
		if b, ok := fresh[idx]; ok {
			out.Results[si] = b
			res.Fresh++
		} else if n.promoted {
			if b, ok := g.PreviousResult(n.prev); ok {
				out.Results[si] = b
				res.CarriedOver++
			}
		}
	}

	g.diagMu.Lock()
	for idx, diags := range g.diags {
		if int(idx) < len(nodes) {
			out.Diagnostics[domain.SerializedIndex(idx)] = diags
			res.Diagnostics += len(diags)
		}
	}
	g.diagMu.Unlock()

	res.Nodes = len(nodes)
	return out, res
}
