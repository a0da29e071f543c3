// Package query runs memoized, dependency-tracked computations.
//
// Query kinds are defined once in a Registry. An Engine holds the state of one session:
// a cache per kind, the jobs in flight, and the dependency graph that decides which
// results of the previous session can be reused. Providers receive a Task and make every
// nested query call through it, which is how reads are recorded as dependencies.
package query

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.trai.ch/quarry/internal/core/domain"
	"go.trai.ch/quarry/internal/core/ports"
	"go.trai.ch/quarry/internal/engine/depgraph"
	"go.trai.ch/zerr"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Engine is the query context of one session.
type Engine struct {
	registry *Registry
	kinds    []vtable
	states   []kindState
	graph    *depgraph.Graph
	jobs     *jobRegistry
	threads  *threads
	workers  *semaphore.Weighted

	logger  ports.Logger
	tracer  ports.Tracer
	metrics ports.Metrics
	sink    ports.DiagnosticSink

	previous     *domain.SerializedGraph
	threadLimit  int
	verify       bool
	buildVersion string
	sessionID    string
	started      time.Time

	errors   atomic.Int64
	warnings atomic.Int64
	replayed atomic.Int64

	delayedMu sync.Mutex
	delayed   []domain.Diagnostic
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(l ports.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithTracer sets the tracer that receives a span per provider run.
func WithTracer(t ports.Tracer) Option {
	return func(e *Engine) {
		e.tracer = t
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m ports.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithDiagnosticSink sets where emitted and replayed diagnostics go.
func WithDiagnosticSink(s ports.DiagnosticSink) Option {
	return func(e *Engine) {
		e.sink = s
	}
}

// WithPrevious enables reuse of the results of a previous session.
func WithPrevious(g *domain.SerializedGraph) Option {
	return func(e *Engine) {
		e.previous = g
	}
}

// WithThreads sets the size of the worker pool shared by every Parallel call of the
// engine. Root tasks started with Run are not counted against it.
func WithThreads(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.threadLimit = n
		}
	}
}

// WithVerifyFingerprints re-hashes reused results and logs those that no longer match.
func WithVerifyFingerprints(verify bool) Option {
	return func(e *Engine) {
		e.verify = verify
	}
}

// WithBuildVersion records the build that produced the session's results.
func WithBuildVersion(v string) Option {
	return func(e *Engine) {
		e.buildVersion = v
	}
}

// NewEngine creates the engine of a new session for the kinds in reg.
func NewEngine(reg *Registry, opts ...Option) *Engine {
	e := &Engine{
		registry:    reg,
		kinds:       reg.vtables(),
		logger:      nopLogger{},
		tracer:      nopTracer{},
		metrics:     nopMetrics{},
		sink:        nopSink{},
		threadLimit: runtime.NumCPU(),
		sessionID:   uuid.NewString(),
		started:     time.Now(),
	}
	for _, opt := range opts {
		opt(e)
	}

	e.workers = semaphore.NewWeighted(int64(e.threadLimit))
	e.threads = &threads{}
	e.threads.onStall = e.watchDeadlock
	e.jobs = newJobRegistry(e.threads)
	e.states = make([]kindState, len(e.kinds))
	for i, vt := range e.kinds {
		e.states[i] = vt.newState()
	}
	e.graph = depgraph.New(reg, e.previous, depgraph.WithReplayer(e.replay))
	return e
}

// Run runs fn as a root task. Queries requested by fn are not recorded as anyone's
// dependencies. Run may be called from several goroutines at once.
func (e *Engine) Run(ctx context.Context, fn func(t *Task) error) error {
	e.threads.enter()
	defer e.threads.exit()
	return fn(&Task{ctx: ctx, engine: e})
}

// Parallel runs fns concurrently on behalf of the query t is running for. Their reads and
// diagnostics are recorded for that query. It returns the first error.
//
// Children take a worker from the engine-wide pool when one is free. Otherwise the
// parent runs the child itself, so nested calls never wait for a worker.
func Parallel(t *Task, fns ...func(t *Task) error) error {
	if len(fns) == 0 {
		return nil
	}
	e := t.engine
	g, ctx := errgroup.WithContext(t.ctx)

	f := &fork{}
	for _, fn := range fns {
		run := func() error {
			e.threads.enterChild(f)
			defer e.threads.exitChild(f)
			c := *t
			c.ctx = ctx
			return fn(&c)
		}
		if e.workers.TryAcquire(1) {
			g.Go(func() error {
				defer e.workers.Release(1)
				return run()
			})
			continue
		}
		done := make(chan struct{})
		g.Go(func() error {
			defer close(done)
			return run()
		})
		<-done
	}
	return g.Wait()
}

// Graph returns the dependency graph of the session.
func (e *Engine) Graph() *depgraph.Graph {
	return e.graph
}

// Registry returns the registry the engine was built from.
func (e *Engine) Registry() *Registry {
	return e.registry
}

// SessionID identifies the session in the cache file it writes.
func (e *Engine) SessionID() string {
	return e.sessionID
}

// ActiveJobs snapshots the jobs in flight. It reports false instead of a partial result
// when the registry is busy; callers retry or skip.
func (e *Engine) ActiveJobs() (map[domain.JobID]domain.JobInfo, bool) {
	jobs, ok := e.jobs.tryCollect()
	if !ok {
		return nil, false
	}
	return infos(jobs), true
}

// Stats describes a session.
type Stats struct {
	Graph       depgraph.Stats
	Cached      int
	Active      int
	Errors      int64
	Warnings    int64
	DelayedBugs int
	Replayed    int64
	Elapsed     time.Duration
}

// Stats returns the counters of the session so far.
func (e *Engine) Stats() Stats {
	s := Stats{
		Graph:    e.graph.Stats(),
		Errors:   e.errors.Load(),
		Warnings: e.warnings.Load(),
		Replayed: e.replayed.Load(),
		Elapsed:  time.Since(e.started),
	}
	for _, st := range e.states {
		c, a := st.counts()
		s.Cached += c
		s.Active += a
	}
	e.delayedMu.Lock()
	s.DelayedBugs = len(e.delayed)
	e.delayedMu.Unlock()
	return s
}

// Finish ends the session. It fails when errors were reported, and when delayed bugs were
// recorded without any error to explain them; those are reported as errors first.
func (e *Engine) Finish() error {
	if n := e.errors.Load(); n > 0 {
		return zerr.With(zerr.Wrap(domain.ErrSessionFailed, "finish session"), "errors", n)
	}
	e.delayedMu.Lock()
	delayed := e.delayed
	e.delayed = nil
	e.delayedMu.Unlock()
	if len(delayed) == 0 {
		return nil
	}
	for _, d := range delayed {
		d.Level = domain.DiagError
		e.sink.Emit(d)
	}
	return zerr.With(zerr.Wrap(domain.ErrDelayedBug, "finish session"), "delayed_bugs", len(delayed))
}

func (e *Engine) emit(d domain.Diagnostic) {
	switch d.Level {
	case domain.DiagError:
		e.errors.Add(1)
	case domain.DiagWarning:
		e.warnings.Add(1)
	case domain.DiagDelayedBug:
		e.delayedMu.Lock()
		e.delayed = append(e.delayed, d)
		e.delayedMu.Unlock()
		return
	case domain.DiagNote:
	}
	e.sink.Emit(d)
}

func (e *Engine) replay(_ domain.DepNodeIndex, diags []domain.Diagnostic) {
	for _, d := range diags {
		e.replayed.Add(1)
		e.emit(d)
	}
}
