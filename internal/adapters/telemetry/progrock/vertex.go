package progrock

import (
	"fmt"
	"io"
	"sync"

	"github.com/vito/progrock"
)

// Vertex implements ports.Span wrapping *progrock.VertexRecorder.
type Vertex struct {
	vertex *progrock.VertexRecorder
	cached bool

	mu  sync.Mutex
	err error
}

// Write sends p to the vertex's standard output stream.
func (v *Vertex) Write(p []byte) (int, error) {
	return v.vertex.Stdout().Write(p)
}

// Stderr returns a writer for the vertex's error stream.
func (v *Vertex) Stderr() io.Writer {
	return v.vertex.Stderr()
}

// RecordError remembers err; End completes the vertex with it.
func (v *Vertex) RecordError(err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.err == nil {
		v.err = err
	}
}

// SetAttribute writes the attribute to the vertex log.
func (v *Vertex) SetAttribute(key string, value any) {
	_, _ = fmt.Fprintf(v.vertex.Stdout(), "%s=%v\n", key, value)
}

// End completes the vertex. Cached vertices were completed when they started.
func (v *Vertex) End() {
	if v.cached {
		return
	}
	v.mu.Lock()
	err := v.err
	v.mu.Unlock()
	v.vertex.Done(err)
}
