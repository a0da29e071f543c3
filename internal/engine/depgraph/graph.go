// Package depgraph records which query read which during a session, and decides which
// results of the previous session can be reused.
//
// The current graph is append-only: nodes are interned once and never change afterwards,
// apart from the volatile bit. The previous graph is read-only; the only mutable state
// attached to it is one color per node, which moves from unknown to red or green exactly
// once.
package depgraph

import (
	"hash/maphash"
	"sync"
	"sync/atomic"

	"go.trai.ch/quarry/internal/core/domain"
	"go.trai.ch/zerr"
)

const indexShards = 32

// Forcer runs a query of a previous-session node so that its color becomes known.
// It reports whether the query completed.
type Forcer interface {
	Force(kind domain.QueryKind, key []byte) bool
}

// ForcerFunc adapts a function to Forcer.
type ForcerFunc func(kind domain.QueryKind, key []byte) bool

// Force implements Forcer.
func (f ForcerFunc) Force(kind domain.QueryKind, key []byte) bool {
	return f(kind, key)
}

// Replayer receives the diagnostics of nodes reused from the previous session.
type Replayer func(index domain.DepNodeIndex, diags []domain.Diagnostic)

type node struct {
	dep         domain.DepNode
	edges       []domain.DepNodeIndex
	fingerprint domain.Fingerprint
	key         []byte
	prev        domain.SerializedIndex
	promoted    bool
	volatile    atomic.Bool
}

type indexShard struct {
	mu sync.RWMutex
	m  map[domain.DepNode]domain.DepNodeIndex
}

// Graph is the dependency graph of one session.
type Graph struct {
	kinds  domain.KindResolver
	prev   *previous
	replay Replayer

	nodesMu sync.RWMutex
	nodes   []*node

	seed   maphash.Seed
	shards [indexShards]indexShard

	diagMu sync.Mutex
	diags  map[domain.DepNodeIndex][]domain.Diagnostic

	stats counters
}

// Option configures a Graph.
type Option func(*Graph)

// WithReplayer sets the function that receives diagnostics of reused nodes.
func WithReplayer(r Replayer) Option {
	return func(g *Graph) {
		g.replay = r
	}
}

// New creates the graph of a session. prev is the previous session's graph, or nil for
// a non-incremental session.
func New(kinds domain.KindResolver, prev *domain.SerializedGraph, opts ...Option) *Graph {
	g := &Graph{
		kinds: kinds,
		seed:  maphash.MakeSeed(),
		diags: make(map[domain.DepNodeIndex][]domain.Diagnostic),
	}
	for i := range g.shards {
		g.shards[i].m = make(map[domain.DepNode]domain.DepNodeIndex)
	}
	if prev != nil {
		g.prev = newPrevious(kinds, prev)
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Graph) shard(dep domain.DepNode) *indexShard {
	return &g.shards[maphash.Comparable(g.seed, dep)%indexShards]
}

// Lookup returns the current index of dep, if it was interned.
func (g *Graph) Lookup(dep domain.DepNode) (domain.DepNodeIndex, bool) {
	s := g.shard(dep)
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.m[dep]
	return idx, ok
}

// intern adds n unless a node with the same DepNode exists. It returns the index of the
// node in the graph and whether n was added.
func (g *Graph) intern(n *node) (domain.DepNodeIndex, bool) {
	s := g.shard(n.dep)
	s.mu.Lock()
	defer s.mu.Unlock()
	if idx, ok := s.m[n.dep]; ok {
		return idx, false
	}
	g.nodesMu.Lock()
	idx := domain.DepNodeIndex(len(g.nodes)) //nolint:gosec // Node count stays far below 2^32
	g.nodes = append(g.nodes, n)
	g.nodesMu.Unlock()
	s.m[n.dep] = idx
	return idx, true
}

func (g *Graph) node(idx domain.DepNodeIndex) *node {
	g.nodesMu.RLock()
	defer g.nodesMu.RUnlock()
	if int(idx) >= len(g.nodes) {
		return nil
	}
	return g.nodes[idx]
}

// Len returns the number of nodes in the current graph.
func (g *Graph) Len() int {
	g.nodesMu.RLock()
	defer g.nodesMu.RUnlock()
	return len(g.nodes)
}

// DepNode returns the node identity at idx.
func (g *Graph) DepNode(idx domain.DepNodeIndex) (domain.DepNode, bool) {
	n := g.node(idx)
	if n == nil {
		return domain.DepNode{}, false
	}
	return n.dep, true
}

// Edges returns the recorded reads of the node at idx.
func (g *Graph) Edges(idx domain.DepNodeIndex) []domain.DepNodeIndex {
	n := g.node(idx)
	if n == nil {
		return nil
	}
	return n.edges
}

// Fingerprint returns the result fingerprint of the node at idx.
func (g *Graph) Fingerprint(idx domain.DepNodeIndex) domain.Fingerprint {
	n := g.node(idx)
	if n == nil {
		return domain.ZeroFingerprint
	}
	return n.fingerprint
}

// PrevIndex returns the previous-session index of the node at idx.
func (g *Graph) PrevIndex(idx domain.DepNodeIndex) domain.SerializedIndex {
	n := g.node(idx)
	if n == nil {
		return domain.InvalidSerializedIndex
	}
	return n.prev
}

// IsPromoted reports whether the node at idx was reused from the previous session
// without running its provider.
func (g *Graph) IsPromoted(idx domain.DepNodeIndex) bool {
	n := g.node(idx)
	return n != nil && n.promoted
}

// MarkVolatile records that the node at idx took part in a cycle. Volatile nodes are
// persisted but never reused.
func (g *Graph) MarkVolatile(idx domain.DepNodeIndex) {
	if n := g.node(idx); n != nil {
		n.volatile.Store(true)
	}
}

// WithTask runs compute as the task of dep and interns the node with the reads compute
// recorded. The result is fingerprinted with hashResult unless flags carry FlagNoHash;
// a result hashResult cannot fingerprint is treated like a NoHash result.
// When compute fails nothing is recorded.
func WithTask[V any](
	g *Graph,
	dep domain.DepNode,
	key []byte,
	flags domain.KindFlags,
	hashResult func(V) (domain.Fingerprint, bool),
	compute func(*Deps) (V, error),
) (V, domain.DepNodeIndex, error) {
	deps := NewDeps()
	value, err := compute(deps)
	if err != nil {
		var zero V
		return zero, domain.InvalidDepNodeIndex, err
	}

	fp, hashed := domain.ZeroFingerprint, false
	if !flags.Has(domain.FlagNoHash) && hashResult != nil {
		fp, hashed = hashResult(value)
	}

	n := &node{
		dep:         dep,
		edges:       deps.Reads(),
		fingerprint: fp,
		key:         key,
		prev:        g.prevIndexOf(dep),
	}
	idx, _ := g.intern(n)
	g.stats.executed.Add(1)

	if n.prev != domain.InvalidSerializedIndex {
		switch {
		case !hashed, flags.Has(domain.FlagEvalAlways):
			g.prev.setRed(n.prev)
		case fp == g.prev.graph.Nodes[n.prev].Fingerprint:
			g.prev.setGreen(n.prev, idx)
		default:
			g.prev.setRed(n.prev)
		}
	}
	return value, idx, nil
}

// WithAnonTask runs compute as an anonymous task of kind. The node's identity is derived
// from the nodes compute read, so two anonymous tasks with the same reads share a node.
func WithAnonTask[V any](
	g *Graph,
	kind domain.QueryKind,
	compute func(*Deps) (V, error),
) (V, domain.DepNodeIndex, error) {
	deps := NewDeps()
	value, err := compute(deps)
	if err != nil {
		var zero V
		return zero, domain.InvalidDepNodeIndex, err
	}

	reads := deps.Reads()
	h := domain.NewStableHasher()
	h.WriteUint64(uint64(kind))
	for _, r := range reads {
		if n := g.node(r); n != nil {
			h.WriteUint64(uint64(n.dep.Kind))
			h.WriteFingerprint(n.dep.Hash)
		}
	}
	dep := domain.NewDepNode(kind, h.Finish())
	idx, added := g.intern(&node{
		dep:   dep,
		edges: reads,
		prev:  g.prevIndexOf(dep),
	})
	if added {
		g.stats.anon.Add(1)
	}
	return value, idx, nil
}

// Feed records an input node with the fingerprint of its value. The node is green when
// the previous session saw the same fingerprint, red otherwise.
func (g *Graph) Feed(dep domain.DepNode, key []byte, fp domain.Fingerprint) (domain.DepNodeIndex, error) {
	n := &node{
		dep:         dep,
		fingerprint: fp,
		key:         key,
		prev:        g.prevIndexOf(dep),
	}
	idx, added := g.intern(n)
	if !added {
		return idx, zerr.With(zerr.Wrap(domain.ErrInputAlreadyFed, "feed"), "node", dep.Describe(g.kinds))
	}
	g.stats.fed.Add(1)
	if n.prev != domain.InvalidSerializedIndex {
		if g.prev.graph.Nodes[n.prev].Fingerprint == fp {
			g.prev.setGreen(n.prev, idx)
		} else {
			g.prev.setRed(n.prev)
		}
	}
	return idx, nil
}

// TryMarkGreen tries to reuse dep from the previous session without running its
// provider. It succeeds when every node dep read in the previous session is green now,
// marking dependencies recursively and forcing them through forcer where needed.
// On success it returns the node's current and previous index.
func (g *Graph) TryMarkGreen(dep domain.DepNode, forcer Forcer) (domain.DepNodeIndex, domain.SerializedIndex, bool) {
	if g.prev == nil {
		return domain.InvalidDepNodeIndex, domain.InvalidSerializedIndex, false
	}
	p, ok := g.prev.index[dep]
	if !ok {
		return domain.InvalidDepNodeIndex, domain.InvalidSerializedIndex, false
	}
	switch c := g.prev.color(p); {
	case c.isGreen():
		return c.index(), p, true
	case c == colorRed:
		return domain.InvalidDepNodeIndex, p, false
	}
	info := g.prev.info[p]
	if info.Flags.Has(domain.FlagEvalAlways) || info.Flags.Has(domain.FlagInput) || g.prev.graph.Nodes[p].Volatile {
		return domain.InvalidDepNodeIndex, p, false
	}
	idx, ok := g.markPrevious(p, forcer, make(map[domain.SerializedIndex]bool))
	if !ok {
		g.stats.red.Add(1)
		return domain.InvalidDepNodeIndex, p, false
	}
	return idx, p, true
}

func (g *Graph) markPrevious(
	p domain.SerializedIndex,
	forcer Forcer,
	visiting map[domain.SerializedIndex]bool,
) (domain.DepNodeIndex, bool) {
	visiting[p] = true
	defer delete(visiting, p)

	prevNode := &g.prev.graph.Nodes[p]
	edges := make([]domain.DepNodeIndex, 0, len(prevNode.Edges))
	for _, d := range prevNode.Edges {
		idx, ok := g.markDependency(d, forcer, visiting)
		if !ok {
			return domain.InvalidDepNodeIndex, false
		}
		edges = append(edges, idx)
	}
	return g.promote(p, edges), true
}

//nolint:cyclop // One case per way a dependency can fail
func (g *Graph) markDependency(
	d domain.SerializedIndex,
	forcer Forcer,
	visiting map[domain.SerializedIndex]bool,
) (domain.DepNodeIndex, bool) {
	c := g.prev.color(d)
	if c.isGreen() {
		return c.index(), true
	}
	if c == colorRed {
		return domain.InvalidDepNodeIndex, false
	}

	dn := &g.prev.graph.Nodes[d]
	info, known := g.prev.info[d], g.prev.known[d]
	switch {
	case !known, dn.Volatile, visiting[d]:
		return domain.InvalidDepNodeIndex, false
	case info.Flags.Has(domain.FlagInput), info.Flags.Has(domain.FlagEvalAlways):
		// Inputs are fed before queries run, so an uncolored input was not fed this
		// session. eval_always nodes always count as changed for their dependents.
		return domain.InvalidDepNodeIndex, false
	}

	if idx, ok := g.markPrevious(d, forcer, visiting); ok {
		return idx, true
	}
	if info.Flags.Has(domain.FlagAnonymous) || len(dn.Key) == 0 || forcer == nil {
		return domain.InvalidDepNodeIndex, false
	}

	g.stats.forced.Add(1)
	if !forcer.Force(info.Kind, dn.Key) {
		return domain.InvalidDepNodeIndex, false
	}
	if c := g.prev.color(d); c.isGreen() {
		return c.index(), true
	}
	return domain.InvalidDepNodeIndex, false
}

// promote copies the previous node p into the current graph with the given edges and
// colors it green. Concurrent promotions of the same node agree on the index; only the
// first one replays diagnostics.
func (g *Graph) promote(p domain.SerializedIndex, edges []domain.DepNodeIndex) domain.DepNodeIndex {
	prevNode := &g.prev.graph.Nodes[p]
	idx, _ := g.intern(&node{
		dep:         domain.NewDepNode(g.prev.info[p].Kind, prevNode.Hash),
		edges:       edges,
		fingerprint: prevNode.Fingerprint,
		key:         prevNode.Key,
		prev:        p,
		promoted:    true,
	})
	if !g.prev.setGreen(p, idx) {
		if c := g.prev.color(p); c.isGreen() {
			return c.index()
		}
		return idx
	}
	g.stats.green.Add(1)
	if diags := g.prev.graph.Diagnostics[p]; len(diags) > 0 {
		g.StoreDiagnostics(idx, diags)
		if g.replay != nil {
			g.replay(idx, diags)
		}
	}
	return idx
}

func (g *Graph) prevIndexOf(dep domain.DepNode) domain.SerializedIndex {
	if g.prev == nil {
		return domain.InvalidSerializedIndex
	}
	if p, ok := g.prev.index[dep]; ok {
		return p
	}
	return domain.InvalidSerializedIndex
}

// HasPrevious reports whether the session has a previous graph.
func (g *Graph) HasPrevious() bool {
	return g.prev != nil
}

// PreviousFingerprint returns the result fingerprint the previous session recorded for p.
func (g *Graph) PreviousFingerprint(p domain.SerializedIndex) domain.Fingerprint {
	if g.prev == nil || int(p) >= len(g.prev.graph.Nodes) {
		return domain.ZeroFingerprint
	}
	return g.prev.graph.Nodes[p].Fingerprint
}

// PreviousResult returns the encoded result the previous session stored for p.
func (g *Graph) PreviousResult(p domain.SerializedIndex) ([]byte, bool) {
	if g.prev == nil {
		return nil, false
	}
	b, ok := g.prev.graph.Results[p]
	return b, ok
}

// StoreDiagnostics associates diags with the node at idx.
func (g *Graph) StoreDiagnostics(idx domain.DepNodeIndex, diags []domain.Diagnostic) {
	if len(diags) == 0 {
		return
	}
	g.diagMu.Lock()
	defer g.diagMu.Unlock()
	g.diags[idx] = append(g.diags[idx], diags...)
}

// LoadDiagnostics returns the diagnostics the previous session stored for p.
func (g *Graph) LoadDiagnostics(p domain.SerializedIndex) []domain.Diagnostic {
	if g.prev == nil {
		return nil
	}
	return g.prev.graph.Diagnostics[p]
}

// Diagnostics returns the diagnostics stored for the node at idx this session.
func (g *Graph) Diagnostics(idx domain.DepNodeIndex) []domain.Diagnostic {
	g.diagMu.Lock()
	defer g.diagMu.Unlock()
	return g.diags[idx]
}
