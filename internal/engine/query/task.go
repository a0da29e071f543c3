package query

import (
	"context"

	"go.trai.ch/quarry/internal/core/domain"
	"go.trai.ch/quarry/internal/engine/depgraph"
)

// Task is the handle a provider receives. It names the query being computed and the
// read set its dependencies are recorded into; every nested query call goes through it.
// A Task must not outlive the provider call it was passed to.
type Task struct {
	ctx    context.Context
	engine *Engine
	job    *job
	deps   *depgraph.Deps
	span   domain.Span
	// quiet drops diagnostics. It is set when re-running a provider whose diagnostics
	// were already replayed from the previous session.
	quiet bool
}

// Context returns the context of the session.
func (t *Task) Context() context.Context {
	return t.ctx
}

// Engine returns the engine the task runs on.
func (t *Task) Engine() *Engine {
	return t.engine
}

// At returns a handle that attributes the next query calls to span. Cycle reports use
// the span of each call on the cycle.
func (t *Task) At(span domain.Span) *Task {
	c := *t
	c.span = span
	return &c
}

// Emit reports a diagnostic for the running query. It is stored with the query's node so
// it can be replayed when the node is reused by a later session.
func (t *Task) Emit(d domain.Diagnostic) {
	if t.quiet {
		return
	}
	if t.job != nil {
		t.job.addDiagnostic(d)
	}
	t.engine.emit(d)
}

// child returns the task a provider of j runs with.
func (t *Task) child(ctx context.Context, j *job, deps *depgraph.Deps) *Task {
	return &Task{
		ctx:    ctx,
		engine: t.engine,
		job:    j,
		deps:   deps,
	}
}
