package domain

import (
	"fmt"
	"math"
)

// DepNode identifies one query invocation: the kind plus the fingerprint of its key.
// It is immutable and comparable, so it can be used directly as a map key.
type DepNode struct {
	Kind QueryKind
	Hash Fingerprint
}

// NewDepNode builds the node for kind and a key fingerprint.
func NewDepNode(kind QueryKind, keyHash Fingerprint) DepNode {
	return DepNode{Kind: kind, Hash: keyHash}
}

// Describe renders the node with its kind name.
func (n DepNode) Describe(kinds KindResolver) string {
	name := fmt.Sprintf("kind#%d", n.Kind)
	if kinds != nil {
		if info, ok := kinds.KindInfo(n.Kind); ok {
			name = info.Name
		}
	}
	return name + "(" + n.Hash.String()[:16] + ")"
}

// DepNodeIndex is the dense handle of a node in the current session's graph.
type DepNodeIndex uint32

// InvalidDepNodeIndex is returned where no node was recorded.
const InvalidDepNodeIndex DepNodeIndex = math.MaxUint32

// Valid reports whether the index refers to a node.
func (i DepNodeIndex) Valid() bool {
	return i != InvalidDepNodeIndex
}

// SerializedIndex is the dense handle of a node in a previous session's graph.
type SerializedIndex uint32

// InvalidSerializedIndex marks nodes that have no previous-session counterpart.
const InvalidSerializedIndex SerializedIndex = math.MaxUint32
