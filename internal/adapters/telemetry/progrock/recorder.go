// Package progrock implements ports.Tracer by recording every query span as a
// progrock vertex.
package progrock

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/opencontainers/go-digest"
	"github.com/vito/progrock"
	"go.trai.ch/quarry/internal/core/ports"
)

// Recorder implements ports.Tracer on a progrock tape.
type Recorder struct {
	w   progrock.Writer
	rec *progrock.Recorder
	seq atomic.Uint64
}

// New creates a Recorder with a default tape.
func New() *Recorder {
	return NewRecorder(progrock.NewTape())
}

// NewRecorder creates a Recorder writing to w.
func NewRecorder(w progrock.Writer) *Recorder {
	return &Recorder{
		w:   w,
		rec: progrock.NewRecorder(w),
	}
}

// Start records a new vertex. A query computed many times over a watch session gets a
// fresh vertex each time, so the digest includes a sequence number.
func (r *Recorder) Start(ctx context.Context, name string, opts ...ports.SpanOption) (context.Context, ports.Span) {
	cfg := ports.NewSpanConfig(opts...)
	v := r.rec.Vertex(r.digest(name), name)
	if cfg.Cached {
		v.Cached()
	}
	return ctx, &Vertex{vertex: v, cached: cfg.Cached}
}

// EmitPlan records the requested root queries as a completed vertex.
func (r *Recorder) EmitPlan(_ context.Context, queries []string) {
	v := r.rec.Vertex(r.digest("plan"), fmt.Sprintf("plan: %d queries", len(queries)))
	_, _ = fmt.Fprintln(v.Stdout(), strings.Join(queries, "\n"))
	v.Done(nil)
}

// Close flushes and closes the recording session.
func (r *Recorder) Close() error {
	return r.w.Close()
}

func (r *Recorder) digest(name string) digest.Digest {
	return digest.FromString(fmt.Sprintf("%s#%d", name, r.seq.Add(1)))
}
