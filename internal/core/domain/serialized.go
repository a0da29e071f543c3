package domain

import "time"

// SerializedNode is one node of a previous session's dependency graph.
type SerializedNode struct {
	// Kind is the kind name. Names, not numeric kinds, are stable between builds.
	Kind string
	// Hash is the fingerprint of the query key.
	Hash Fingerprint
	// Fingerprint is the fingerprint of the query result.
	Fingerprint Fingerprint
	// Edges are the nodes this node read, as indices into the same graph.
	Edges []SerializedIndex
	// Key is the encoded query key, used to force the query in a later session.
	// Empty for anonymous nodes and kinds without a key codec.
	Key []byte
	// Volatile nodes took part in a cycle and are never reused.
	Volatile bool
}

// SerializedGraph is everything a session persists for the next one: the dependency
// graph with fingerprints, the encoded results, and the diagnostics emitted while
// computing each node. It is read-only once loaded.
type SerializedGraph struct {
	SessionID    string
	BuildVersion string
	CreatedAt    time.Time

	Nodes       []SerializedNode
	Results     map[SerializedIndex][]byte
	Diagnostics map[SerializedIndex][]Diagnostic
}

// NewSerializedGraph returns an empty graph with initialized tables.
func NewSerializedGraph() *SerializedGraph {
	return &SerializedGraph{
		Results:     make(map[SerializedIndex][]byte),
		Diagnostics: make(map[SerializedIndex][]Diagnostic),
	}
}

// Len returns the number of nodes.
func (g *SerializedGraph) Len() int {
	if g == nil {
		return 0
	}
	return len(g.Nodes)
}

// EdgeCount returns the total number of edges.
func (g *SerializedGraph) EdgeCount() int {
	if g == nil {
		return 0
	}
	n := 0
	for i := range g.Nodes {
		n += len(g.Nodes[i].Edges)
	}
	return n
}

// CacheInfo describes a persisted session file.
type CacheInfo struct {
	Path    string
	Exists  bool
	Size    int64
	ModTime time.Time
	// Header fields, read without decoding the body.
	SessionID    string
	BuildVersion string
	CreatedAt    time.Time
}
