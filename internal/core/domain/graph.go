// Package domain contains the core domain models of the incremental query engine.
package domain

import (
	"strconv"
	"strings"

	"go.trai.ch/zerr"
)

// Validate checks that a loaded graph is well formed: every edge points at an existing
// node and the edges form no cycle. A session only ever records edges to nodes that
// completed before the reader, so a cycle means the file was tampered with or corrupted.
func (g *SerializedGraph) Validate() error {
	if g == nil {
		return nil
	}
	n := len(g.Nodes)
	for i := range g.Nodes {
		if g.Nodes[i].Kind == "" {
			return zerr.With(zerr.Wrap(ErrCacheCorrupt, "node without kind"), "node", i)
		}
		for _, e := range g.Nodes[i].Edges {
			if int(e) >= n {
				return zerr.With(zerr.With(zerr.Wrap(ErrCacheCorrupt, "edge out of range"), "node", i), "edge", int(e))
			}
		}
	}
	for idx := range g.Results {
		if int(idx) >= n {
			return zerr.With(zerr.Wrap(ErrCacheCorrupt, "result without node"), "node", int(idx))
		}
	}
	for idx := range g.Diagnostics {
		if int(idx) >= n {
			return zerr.With(zerr.Wrap(ErrCacheCorrupt, "diagnostics without node"), "node", int(idx))
		}
	}
	return g.checkAcyclic()
}

// checkAcyclic runs an iterative three-color DFS over the edges.
func (g *SerializedGraph) checkAcyclic() error {
	const (
		unvisited = iota
		visiting
		visited
	)
	state := make([]uint8, len(g.Nodes))
	type frame struct {
		node SerializedIndex
		next int
	}
	for root := range g.Nodes {
		if state[root] != unvisited {
			continue
		}
		stack := []frame{{node: SerializedIndex(root)}} //nolint:gosec // Bounded by node count
		state[root] = visiting
		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			edges := g.Nodes[top.node].Edges
			if top.next == len(edges) {
				state[top.node] = visited
				stack = stack[:len(stack)-1]
				continue
			}
			dep := edges[top.next]
			top.next++
			switch state[dep] {
			case visiting:
				path := make([]SerializedIndex, 0, len(stack))
				for _, f := range stack {
					path = append(path, f.node)
				}
				return g.buildCycleError(path, dep)
			case unvisited:
				state[dep] = visiting
				stack = append(stack, frame{node: dep})
			}
		}
	}
	return nil
}

// buildCycleError constructs an error with cycle path metadata.
func (g *SerializedGraph) buildCycleError(path []SerializedIndex, dep SerializedIndex) error {
	startIdx := 0
	for i, node := range path {
		if node == dep {
			startIdx = i
			break
		}
	}
	parts := make([]string, 0, len(path)-startIdx+1)
	for _, node := range path[startIdx:] {
		parts = append(parts, g.Nodes[node].Kind+"#"+strconv.Itoa(int(node)))
	}
	parts = append(parts, g.Nodes[dep].Kind+"#"+strconv.Itoa(int(dep)))
	return zerr.With(zerr.Wrap(ErrCacheCorrupt, "dependency cycle"), "cycle", strings.Join(parts, " -> "))
}
