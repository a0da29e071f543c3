package progrock_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vito/progrock"
	qprogrock "go.trai.ch/quarry/internal/adapters/telemetry/progrock"
	"go.trai.ch/quarry/internal/core/ports"
)

// tape keeps the last state of every vertex it was sent.
type tape struct {
	mu       sync.Mutex
	vertices map[string]*progrock.Vertex
	closed   bool
}

func newTape() *tape {
	return &tape{vertices: make(map[string]*progrock.Vertex)}
}

func (t *tape) WriteStatus(update *progrock.StatusUpdate) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, v := range update.Vertexes {
		t.vertices[v.Id] = v
	}
	return nil
}

func (t *tape) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

func (t *tape) byName(name string) []*progrock.Vertex {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []*progrock.Vertex
	for _, v := range t.vertices {
		if v.Name == name {
			out = append(out, v)
		}
	}
	return out
}

func TestRecorder_ImplementsTracer(_ *testing.T) {
	var _ ports.Tracer = (*qprogrock.Recorder)(nil)
	var _ ports.Span = (*qprogrock.Vertex)(nil)
}

func TestRecorder_VertexLifecycle(t *testing.T) {
	w := newTape()
	rec := qprogrock.NewRecorder(w)
	ctx := context.Background()

	_, ok := rec.Start(ctx, "expanded(a.q)")
	ok.SetAttribute("kind", "expanded")
	ok.End()

	_, failed := rec.Start(ctx, "expanded(b.q)")
	failed.RecordError(errors.New("boom"))
	failed.End()

	_, cached := rec.Start(ctx, "expanded(c.q)", ports.WithCached())
	cached.End()

	require.NoError(t, rec.Close())
	assert.True(t, w.closed)

	okV := w.byName("expanded(a.q)")
	require.Len(t, okV, 1)
	assert.NotNil(t, okV[0].Completed)
	assert.Nil(t, okV[0].Error)

	failedV := w.byName("expanded(b.q)")
	require.Len(t, failedV, 1)
	require.NotNil(t, failedV[0].Error)
	assert.Equal(t, "boom", *failedV[0].Error)

	cachedV := w.byName("expanded(c.q)")
	require.Len(t, cachedV, 1)
	assert.True(t, cachedV[0].Cached)
}

func TestRecorder_RepeatedNamesGetDistinctVertices(t *testing.T) {
	w := newTape()
	rec := qprogrock.NewRecorder(w)

	for range 2 {
		_, span := rec.Start(context.Background(), "manifest(())")
		span.End()
	}

	assert.Len(t, w.byName("manifest(())"), 2)
}

func TestRecorder_EmitPlan(t *testing.T) {
	w := newTape()
	rec := qprogrock.NewRecorder(w)

	rec.EmitPlan(context.Background(), []string{"summary(())", "expanded(a.q)"})

	plan := w.byName("plan: 2 queries")
	require.Len(t, plan, 1)
	assert.NotNil(t, plan[0].Completed)
}
