package depgraph_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/quarry/internal/core/domain"
	"go.trai.ch/quarry/internal/engine/depgraph"
)

const (
	kindInput domain.QueryKind = iota
	kindDerived
	kindTop
	kindAlways
	kindAnon
)

type resolver map[domain.QueryKind]domain.KindInfo

func (r resolver) KindInfo(kind domain.QueryKind) (domain.KindInfo, bool) {
	info, ok := r[kind]
	return info, ok
}

func (r resolver) KindByName(name string) (domain.KindInfo, bool) {
	for _, info := range r {
		if info.Name == name {
			return info, true
		}
	}
	return domain.KindInfo{}, false
}

func testKinds() resolver {
	return resolver{
		kindInput:   {Kind: kindInput, Name: "input", Flags: domain.FlagInput},
		kindDerived: {Kind: kindDerived, Name: "derived"},
		kindTop:     {Kind: kindTop, Name: "top"},
		kindAlways:  {Kind: kindAlways, Name: "always", Flags: domain.FlagEvalAlways},
		kindAnon:    {Kind: kindAnon, Name: "anon", Flags: domain.FlagAnonymous},
	}
}

func depNode(kind domain.QueryKind, key string) domain.DepNode {
	return domain.NewDepNode(kind, domain.FingerprintOf([]byte(key)))
}

func fpString(s string) domain.Fingerprint {
	return domain.FingerprintOf([]byte(s))
}

func hashString(s string) (domain.Fingerprint, bool) {
	return fpString(s), true
}

// session1 feeds input "a" with content and computes derived(a) and top(a) on top of it.
func session1(t *testing.T, content string) *domain.SerializedGraph {
	t.Helper()
	g := depgraph.New(testKinds(), nil)

	in, err := g.Feed(depNode(kindInput, "a"), []byte("a"), fpString(content))
	require.NoError(t, err)

	_, derived, err := depgraph.WithTask(g, depNode(kindDerived, "a"), []byte("a"), 0, hashString,
		func(deps *depgraph.Deps) (string, error) {
			depgraph.Read(deps, in)
			return "len:" + content, nil
		})
	require.NoError(t, err)
	g.StoreDiagnostics(derived, []domain.Diagnostic{{Level: domain.DiagWarning, Message: "derived warning"}})

	_, _, err = depgraph.WithTask(g, depNode(kindTop, "a"), []byte("a"), 0, hashString,
		func(deps *depgraph.Deps) (string, error) {
			depgraph.Read(deps, derived)
			return "top", nil
		})
	require.NoError(t, err)

	snap, res := g.Snapshot(map[domain.DepNodeIndex][]byte{derived: []byte("len:" + content)})
	require.NoError(t, snap.Validate())
	assert.Equal(t, 3, res.Nodes)
	assert.Equal(t, 1, res.Fresh)
	assert.Equal(t, 1, res.Diagnostics)
	return snap
}

func TestRead_WithoutTask(t *testing.T) {
	assert.NotPanics(t, func() {
		depgraph.Read(nil, 3)
	})
}

func TestDeps_DeduplicatesReads(t *testing.T) {
	deps := depgraph.NewDeps()
	depgraph.Read(deps, 2)
	depgraph.Read(deps, 1)
	depgraph.Read(deps, 2)
	depgraph.Read(deps, domain.InvalidDepNodeIndex)

	assert.Equal(t, []domain.DepNodeIndex{2, 1}, deps.Reads())

	ignored := depgraph.IgnoreDeps()
	depgraph.Read(ignored, 1)
	assert.Empty(t, ignored.Reads())
	assert.True(t, ignored.Ignored())
}

func TestWithTask_RecordsEdges(t *testing.T) {
	g := depgraph.New(testKinds(), nil)

	in, err := g.Feed(depNode(kindInput, "a"), nil, fpString("x"))
	require.NoError(t, err)

	v, idx, err := depgraph.WithTask(g, depNode(kindDerived, "a"), nil, 0, hashString,
		func(deps *depgraph.Deps) (string, error) {
			depgraph.Read(deps, in)
			return "v", nil
		})
	require.NoError(t, err)

	assert.Equal(t, "v", v)
	assert.Equal(t, []domain.DepNodeIndex{in}, g.Edges(idx))
	assert.Equal(t, fpString("v"), g.Fingerprint(idx))
	assert.Equal(t, 2, g.Len())
}

func TestWithTask_ErrorRecordsNothing(t *testing.T) {
	g := depgraph.New(testKinds(), nil)
	boom := errors.New("boom")

	_, idx, err := depgraph.WithTask(g, depNode(kindDerived, "a"), nil, 0, hashString,
		func(*depgraph.Deps) (string, error) { return "", boom })

	require.ErrorIs(t, err, boom)
	assert.False(t, idx.Valid())
	assert.Equal(t, 0, g.Len())
}

func TestWithTask_NoHash(t *testing.T) {
	g := depgraph.New(testKinds(), nil)

	_, idx, err := depgraph.WithTask(g, depNode(kindDerived, "a"), nil, domain.FlagNoHash, hashString,
		func(*depgraph.Deps) (string, error) { return "v", nil })
	require.NoError(t, err)

	assert.True(t, g.Fingerprint(idx).IsZero())
}

func TestDistinctKeys_DistinctIndices(t *testing.T) {
	g := depgraph.New(testKinds(), nil)

	_, i1, err := depgraph.WithTask(g, depNode(kindDerived, "k1"), nil, 0, hashString,
		func(*depgraph.Deps) (string, error) { return "same", nil })
	require.NoError(t, err)
	_, i2, err := depgraph.WithTask(g, depNode(kindDerived, "k2"), nil, 0, hashString,
		func(*depgraph.Deps) (string, error) { return "same", nil })
	require.NoError(t, err)

	assert.NotEqual(t, i1, i2)
	n1, _ := g.DepNode(i1)
	n2, _ := g.DepNode(i2)
	assert.NotEqual(t, n1.Hash, n2.Hash)
}

func TestFeed_Twice(t *testing.T) {
	g := depgraph.New(testKinds(), nil)
	_, err := g.Feed(depNode(kindInput, "a"), nil, fpString("x"))
	require.NoError(t, err)

	_, err = g.Feed(depNode(kindInput, "a"), nil, fpString("x"))
	require.ErrorIs(t, err, domain.ErrInputAlreadyFed)
}

func TestWithAnonTask_SameReadsShareNode(t *testing.T) {
	g := depgraph.New(testKinds(), nil)
	in, err := g.Feed(depNode(kindInput, "a"), nil, fpString("x"))
	require.NoError(t, err)

	read := func(deps *depgraph.Deps) (int, error) {
		depgraph.Read(deps, in)
		return 1, nil
	}
	_, i1, err := depgraph.WithAnonTask(g, kindAnon, read)
	require.NoError(t, err)
	_, i2, err := depgraph.WithAnonTask(g, kindAnon, read)
	require.NoError(t, err)

	assert.Equal(t, i1, i2)
	assert.Equal(t, int64(1), g.Stats().Anonymous)
}

func TestTryMarkGreen_Unchanged(t *testing.T) {
	prev := session1(t, "hello")

	var replayed []domain.Diagnostic
	g := depgraph.New(testKinds(), prev, depgraph.WithReplayer(func(_ domain.DepNodeIndex, d []domain.Diagnostic) {
		replayed = append(replayed, d...)
	}))
	_, err := g.Feed(depNode(kindInput, "a"), []byte("a"), fpString("hello"))
	require.NoError(t, err)

	forcer := depgraph.ForcerFunc(func(domain.QueryKind, []byte) bool {
		t.Fatal("nothing should be forced when all inputs are unchanged")
		return false
	})
	idx, p, ok := g.TryMarkGreen(depNode(kindTop, "a"), forcer)
	require.True(t, ok)

	assert.True(t, idx.Valid())
	assert.NotEqual(t, domain.InvalidSerializedIndex, p)
	assert.True(t, g.IsPromoted(idx))
	require.Len(t, replayed, 1)
	assert.Equal(t, "derived warning", replayed[0].Message)

	derived, ok := g.Lookup(depNode(kindDerived, "a"))
	require.True(t, ok)
	assert.Equal(t, []domain.DepNodeIndex{derived}, g.Edges(idx))
	assert.Equal(t, int64(2), g.Stats().Green)

	// Marking again is answered from the color table.
	idx2, _, ok := g.TryMarkGreen(depNode(kindTop, "a"), nil)
	require.True(t, ok)
	assert.Equal(t, idx, idx2)
	assert.Len(t, replayed, 1)
}

func TestTryMarkGreen_ChangedInput(t *testing.T) {
	prev := session1(t, "hello")
	g := depgraph.New(testKinds(), prev)
	_, err := g.Feed(depNode(kindInput, "a"), []byte("a"), fpString("changed"))
	require.NoError(t, err)

	forced := 0
	forcer := depgraph.ForcerFunc(func(kind domain.QueryKind, key []byte) bool {
		forced++
		assert.Equal(t, kindDerived, kind)
		assert.Equal(t, []byte("a"), key)
		_, _, err := depgraph.WithTask(g, depNode(kindDerived, "a"), key, 0, hashString,
			func(*depgraph.Deps) (string, error) { return "len:changed", nil })
		return err == nil
	})

	_, _, ok := g.TryMarkGreen(depNode(kindTop, "a"), forcer)
	assert.False(t, ok)
	assert.Equal(t, 1, forced)
}

func TestTryMarkGreen_ForcedDependencyUnchanged(t *testing.T) {
	prev := session1(t, "hello")
	g := depgraph.New(testKinds(), prev)
	_, err := g.Feed(depNode(kindInput, "a"), []byte("a"), fpString("changed"))
	require.NoError(t, err)

	// The dependency reads the changed input but produces the same result as before.
	forcer := depgraph.ForcerFunc(func(_ domain.QueryKind, key []byte) bool {
		_, _, err := depgraph.WithTask(g, depNode(kindDerived, "a"), key, 0, hashString,
			func(*depgraph.Deps) (string, error) { return "len:hello", nil })
		return err == nil
	})

	_, _, ok := g.TryMarkGreen(depNode(kindTop, "a"), forcer)
	assert.True(t, ok)
}

func TestTryMarkGreen_NoPrevious(t *testing.T) {
	g := depgraph.New(testKinds(), nil)
	_, _, ok := g.TryMarkGreen(depNode(kindTop, "a"), nil)
	assert.False(t, ok)
	assert.False(t, g.HasPrevious())
}

func TestTryMarkGreen_UnfedInput(t *testing.T) {
	prev := session1(t, "hello")
	g := depgraph.New(testKinds(), prev)

	_, _, ok := g.TryMarkGreen(depNode(kindTop, "a"), nil)
	assert.False(t, ok)
}

func TestTryMarkGreen_EvalAlwaysDependencyIsRed(t *testing.T) {
	g1 := depgraph.New(testKinds(), nil)
	_, always, err := depgraph.WithTask(g1, depNode(kindAlways, "m"), []byte("m"), domain.FlagEvalAlways, hashString,
		func(*depgraph.Deps) (string, error) { return "stable", nil })
	require.NoError(t, err)
	_, _, err = depgraph.WithTask(g1, depNode(kindTop, "t"), []byte("t"), 0, hashString,
		func(deps *depgraph.Deps) (string, error) {
			depgraph.Read(deps, always)
			return "top", nil
		})
	require.NoError(t, err)
	prev, _ := g1.Snapshot(nil)

	g2 := depgraph.New(testKinds(), prev)
	// Even recomputed with an identical result, eval_always stays red for dependents.
	_, _, err = depgraph.WithTask(g2, depNode(kindAlways, "m"), []byte("m"), domain.FlagEvalAlways, hashString,
		func(*depgraph.Deps) (string, error) { return "stable", nil })
	require.NoError(t, err)

	_, _, ok := g2.TryMarkGreen(depNode(kindTop, "t"), nil)
	assert.False(t, ok)
	_, _, ok = g2.TryMarkGreen(depNode(kindAlways, "m"), nil)
	assert.False(t, ok)
}

func TestTryMarkGreen_VolatileNeverGreen(t *testing.T) {
	g1 := depgraph.New(testKinds(), nil)
	_, idx, err := depgraph.WithTask(g1, depNode(kindDerived, "v"), []byte("v"), 0, hashString,
		func(*depgraph.Deps) (string, error) { return "x", nil })
	require.NoError(t, err)
	g1.MarkVolatile(idx)
	prev, _ := g1.Snapshot(nil)
	require.True(t, prev.Nodes[0].Volatile)

	g2 := depgraph.New(testKinds(), prev)
	_, _, ok := g2.TryMarkGreen(depNode(kindDerived, "v"), nil)
	assert.False(t, ok)
}

func TestTryMarkGreen_CycleInPreviousGraph(t *testing.T) {
	x := depNode(kindDerived, "x")
	y := depNode(kindDerived, "y")
	prev := domain.NewSerializedGraph()
	prev.Nodes = []domain.SerializedNode{
		{Kind: "top", Hash: depNode(kindTop, "t").Hash, Edges: []domain.SerializedIndex{1}, Key: []byte("t")},
		{Kind: "derived", Hash: x.Hash, Edges: []domain.SerializedIndex{2}},
		{Kind: "derived", Hash: y.Hash, Edges: []domain.SerializedIndex{1}},
	}

	g := depgraph.New(testKinds(), prev)
	_, _, ok := g.TryMarkGreen(depNode(kindTop, "t"), nil)
	assert.False(t, ok)
}

func TestTryMarkGreen_UnknownKind(t *testing.T) {
	prev := domain.NewSerializedGraph()
	prev.Nodes = []domain.SerializedNode{
		{Kind: "retired", Hash: fpString("r")},
		{Kind: "top", Hash: depNode(kindTop, "t").Hash, Edges: []domain.SerializedIndex{0}},
	}

	g := depgraph.New(testKinds(), prev)
	_, _, ok := g.TryMarkGreen(depNode(kindTop, "t"), nil)
	assert.False(t, ok)
}

func TestSnapshot_CarriesOverPromotedResults(t *testing.T) {
	prev := session1(t, "hello")
	g := depgraph.New(testKinds(), prev)
	_, err := g.Feed(depNode(kindInput, "a"), []byte("a"), fpString("hello"))
	require.NoError(t, err)
	_, _, ok := g.TryMarkGreen(depNode(kindTop, "a"), nil)
	require.True(t, ok)

	snap, res := g.Snapshot(nil)

	assert.Equal(t, 3, res.Nodes)
	assert.Equal(t, 0, res.Fresh)
	assert.Equal(t, 1, res.CarriedOver)
	assert.Equal(t, 1, res.Diagnostics)
	require.NoError(t, snap.Validate())

	derived, ok := g.Lookup(depNode(kindDerived, "a"))
	require.True(t, ok)
	assert.Equal(t, []byte("len:hello"), snap.Results[domain.SerializedIndex(derived)])
}
