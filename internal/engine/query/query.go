package query

import (
	"fmt"
	"time"

	"go.trai.ch/quarry/internal/core/domain"
	"go.trai.ch/quarry/internal/core/ports"
	"go.trai.ch/quarry/internal/engine/depgraph"
	"go.trai.ch/zerr"
)

// Query is the typed handle of a registered query kind. It is only valid with engines
// built from the registry it was defined in.
type Query[K comparable, V any] struct {
	kind domain.QueryKind
	spec Spec[K, V]
}

// Kind returns the kind assigned at registration.
func (q *Query[K, V]) Kind() domain.QueryKind {
	return q.kind
}

// Name returns the kind name.
func (q *Query[K, V]) Name() string {
	return q.spec.Name
}

// Get returns the value of the query for key, computing it at most once per session.
// The read is recorded as a dependency of the query t is running for.
func (q *Query[K, V]) Get(t *Task, key K) (V, error) {
	e := t.engine
	st := q.state(e)
	if ent, _, status := st.tryGet(key); status == statusHit {
		return q.hit(t, ent), nil
	}

	ent, j, status := st.claim(key, func() *job {
		return e.jobs.start(q.kind, q.frame(t, key), t.job)
	})
	switch status {
	case statusHit:
		return q.hit(t, ent), nil
	case statusInProgress:
		return q.wait(t, key, j)
	default:
		return q.execute(t, key, j)
	}
}

// Ensure computes the query for key without handing out its value.
func (q *Query[K, V]) Ensure(t *Task, key K) error {
	_, err := q.Get(t, key)
	return err
}

// Feed sets the value of an input query for this session.
func (q *Query[K, V]) Feed(e *Engine, key K, value V) error {
	if !q.spec.Flags.Has(domain.FlagInput) {
		return zerr.With(zerr.Wrap(domain.ErrNotAnInput, "feed"), "query", q.spec.Name)
	}
	fp, ok := q.hashValue(value)
	if !ok {
		return zerr.With(zerr.With(zerr.Wrap(domain.ErrEncodeFailed, "feed"),
			"query", q.spec.Name), "key", q.describe(key))
	}
	keyBytes, err := q.spec.KeyCodec.Encode(key)
	if err != nil {
		e.logger.Warn(fmt.Sprintf("query %s: key %s is not stored for the next session: %v",
			q.spec.Name, q.describe(key), err))
		keyBytes = nil
	}
	idx, err := e.graph.Feed(domain.NewDepNode(q.kind, q.hashKey(key)), keyBytes, fp)
	if err != nil {
		return zerr.With(zerr.With(err, "query", q.spec.Name), "key", q.describe(key))
	}
	q.state(e).complete(key, entry[V]{value: value, index: idx})
	e.metrics.RecordEvent(q.spec.Name, domain.EventFed)
	return nil
}

func (q *Query[K, V]) state(e *Engine) *queryState[K, V] {
	return e.states[q.kind].(*queryState[K, V]) //nolint:forcetypeassert // States are built from the same registry
}

func (q *Query[K, V]) hit(t *Task, ent entry[V]) V {
	depgraph.Read(t.deps, ent.index)
	t.engine.metrics.RecordEvent(q.spec.Name, domain.EventHit)
	return ent.value
}

func (q *Query[K, V]) wait(t *Task, key K, owner *job) (V, error) {
	e := t.engine
	if owner.isAncestorOf(t.job) {
		chain := owner.chainTo(t.job)
		for _, cj := range chain {
			cj.volatile.Store(true)
		}
		return q.handleCycle(t, key, owner, &domain.CycleError{Stack: frames(chain)})
	}

	e.metrics.RecordEvent(q.spec.Name, domain.EventWaited)
	res := owner.latch.wait(newWaiter(t.job))
	switch {
	case res.cycle != nil:
		return q.handleCycle(t, key, owner, res.cycle)
	case res.err != nil:
		var zero V
		return zero, res.err
	}
	depgraph.Read(t.deps, res.index)
	v, _ := res.value.(V)
	return v, nil
}

// handleCycle resolves a cycle through key for the caller t. The owner of key loses its
// result; the caller gets the fallback value, or the cycle as an error for fatal kinds.
func (q *Query[K, V]) handleCycle(t *Task, key K, owner *job, cycle *domain.CycleError) (V, error) {
	owner.poison(cycle)
	t.engine.metrics.RecordEvent(q.spec.Name, domain.EventCycle)
	switch q.spec.Cycle {
	case domain.CycleFatal:
		t.Emit(cycle.Diagnostic(domain.DiagError))
		var zero V
		return zero, cycle
	case domain.CycleDelayBug:
		t.Emit(cycle.Diagnostic(domain.DiagDelayedBug))
	default:
		t.Emit(cycle.Diagnostic(domain.DiagError))
	}
	return q.fallback(key, cycle), nil
}

func (q *Query[K, V]) fallback(key K, cycle *domain.CycleError) V {
	if q.spec.Fallback != nil {
		return q.spec.Fallback(key, cycle)
	}
	var zero V
	return zero
}

func (q *Query[K, V]) execute(t *Task, key K, j *job) (V, error) {
	e := t.engine
	done := false
	defer func() {
		if done {
			return
		}
		r := recover()
		j.setState(domain.JobPanicked)
		q.state(e).abandon(key)
		j.latch.set(latchResult{err: zerr.With(zerr.With(zerr.Wrap(domain.ErrQueryPanicked, "run query"),
			"query", q.spec.Name), "key", q.describe(key))})
		e.jobs.finish(j)
		if r != nil {
			panic(r)
		}
	}()

	value, idx, fresh, err := q.compute(t, key, j)
	done = true
	return q.finish(t, key, j, value, idx, fresh, err)
}

func (q *Query[K, V]) compute(t *Task, key K, j *job) (V, domain.DepNodeIndex, bool, error) {
	e := t.engine
	flags := q.spec.Flags
	var zero V

	switch {
	case flags.Has(domain.FlagInput):
		return zero, domain.InvalidDepNodeIndex, false, zerr.With(zerr.With(
			zerr.Wrap(domain.ErrInputNotFed, "get"), "query", q.spec.Name), "key", q.describe(key))
	case flags.Has(domain.FlagAnonymous):
		v, idx, err := depgraph.WithAnonTask(e.graph, q.kind, func(deps *depgraph.Deps) (V, error) {
			return q.run(t, key, j, deps, false)
		})
		if err == nil {
			e.metrics.RecordEvent(q.spec.Name, domain.EventExecuted)
		}
		return v, idx, true, err
	}

	dep := domain.NewDepNode(q.kind, q.hashKey(key))
	if !flags.Has(domain.FlagEvalAlways) {
		v, idx, fresh, ok, err := q.tryGreen(t, key, j, dep)
		if ok || err != nil {
			return v, idx, fresh, err
		}
	}

	keyBytes, err := q.spec.KeyCodec.Encode(key)
	if err != nil {
		e.logger.Warn(fmt.Sprintf("query %s: key %s cannot be re-run next session: %v",
			q.spec.Name, q.describe(key), err))
		keyBytes = nil
	}
	v, idx, err := depgraph.WithTask(e.graph, dep, keyBytes, flags, q.hashValue,
		func(deps *depgraph.Deps) (V, error) {
			return q.run(t, key, j, deps, false)
		})
	if err == nil {
		e.metrics.RecordEvent(q.spec.Name, domain.EventExecuted)
	}
	return v, idx, true, err
}

// tryGreen reuses the previous session's result for dep when all of its dependencies are
// unchanged. The value comes from the on-disk cache when the kind is cached there and
// from a re-run of the provider with untracked reads otherwise.
func (q *Query[K, V]) tryGreen(
	t *Task,
	key K,
	j *job,
	dep domain.DepNode,
) (V, domain.DepNodeIndex, bool, bool, error) {
	e := t.engine
	var zero V
	if !e.graph.HasPrevious() {
		return zero, domain.InvalidDepNodeIndex, false, false, nil
	}

	forcer := depgraph.ForcerFunc(func(kind domain.QueryKind, key []byte) bool {
		if int(kind) >= len(e.kinds) {
			return false
		}
		return e.kinds[kind].force(&Task{ctx: t.ctx, engine: e, job: j, span: t.span}, key)
	})
	idx, prev, ok := e.graph.TryMarkGreen(dep, forcer)
	if !ok {
		if prev != domain.InvalidSerializedIndex {
			e.metrics.RecordEvent(q.spec.Name, domain.EventRed)
		}
		return zero, domain.InvalidDepNodeIndex, false, false, nil
	}
	e.metrics.RecordEvent(q.spec.Name, domain.EventGreen)

	if q.cachesOnDisk() {
		if b, ok := e.graph.PreviousResult(prev); ok {
			v, err := q.spec.Codec.Decode(b)
			if err == nil {
				_, span := e.tracer.Start(t.ctx, j.frame.String(), ports.WithCached())
				span.End()
				e.metrics.RecordEvent(q.spec.Name, domain.EventDiskLoad)
				q.verify(e, key, v, prev)
				return v, idx, false, true, nil
			}
			e.logger.Warn(fmt.Sprintf("query %s: discarding cached result of %s: %v",
				q.spec.Name, q.describe(key), err))
		}
	}

	v, err := q.run(t, key, j, depgraph.IgnoreDeps(), true)
	if err != nil {
		return zero, domain.InvalidDepNodeIndex, false, false, err
	}
	q.verify(e, key, v, prev)
	return v, idx, true, true, nil
}

// verify compares a reused value against the fingerprint the previous session recorded.
// A mismatch means a provider read something it did not track.
func (q *Query[K, V]) verify(e *Engine, key K, v V, prev domain.SerializedIndex) {
	if !e.verify || q.spec.Flags.Has(domain.FlagNoHash) {
		return
	}
	fp, ok := q.hashValue(v)
	if !ok {
		return
	}
	if want := e.graph.PreviousFingerprint(prev); fp != want {
		e.logger.Warn(fmt.Sprintf("query %s: fingerprint mismatch for %s: got %s, previous session %s",
			q.spec.Name, q.describe(key), fp, want))
	}
}

func (q *Query[K, V]) run(t *Task, key K, j *job, deps *depgraph.Deps, quiet bool) (V, error) {
	e := t.engine
	if q.spec.Provider == nil {
		var zero V
		return zero, zerr.With(zerr.With(zerr.Wrap(domain.ErrMissingProvider, "run query"),
			"query", q.spec.Name), "key", q.describe(key))
	}

	ctx, span := e.tracer.Start(t.ctx, j.frame.String())
	defer span.End()

	ct := t.child(ctx, j, deps)
	ct.quiet = quiet
	j.setState(domain.JobRunning)
	start := time.Now()
	v, err := q.spec.Provider(ct, key)
	e.metrics.ObserveDuration(q.spec.Name, time.Since(start))
	if err != nil {
		span.RecordError(err)
	}
	return v, err
}

func (q *Query[K, V]) finish(
	t *Task,
	key K,
	j *job,
	v V,
	idx domain.DepNodeIndex,
	fresh bool,
	err error,
) (V, error) {
	e := t.engine
	st := q.state(e)
	defer e.jobs.finish(j)
	var zero V

	if err != nil {
		j.setState(domain.JobCompleted)
		st.abandon(key)
		j.latch.set(latchResult{err: err, index: domain.InvalidDepNodeIndex})
		e.metrics.RecordEvent(q.spec.Name, domain.EventFailed)
		return zero, err
	}

	if j.volatile.Load() {
		e.graph.MarkVolatile(idx)
	}
	e.graph.StoreDiagnostics(idx, j.takeDiagnostics())

	if cycle := j.poisoned(); cycle != nil {
		j.setState(domain.JobCycleDetected)
		st.abandon(key)
		if q.spec.Cycle == domain.CycleFatal {
			j.latch.set(latchResult{err: cycle, index: idx})
			return zero, cycle
		}
		fb := q.fallback(key, cycle)
		j.latch.set(latchResult{value: fb, index: idx})
		depgraph.Read(t.deps, idx)
		return fb, nil
	}

	j.setState(domain.JobCompleted)
	st.complete(key, entry[V]{value: v, index: idx, fresh: fresh})
	j.latch.set(latchResult{value: v, index: idx})
	depgraph.Read(t.deps, idx)
	return v, nil
}

func (q *Query[K, V]) info() domain.KindInfo {
	return domain.KindInfo{
		Kind:  q.kind,
		Name:  q.spec.Name,
		Flags: q.spec.Flags,
		Cycle: q.spec.Cycle,
	}
}

func (q *Query[K, V]) newState() kindState {
	return newQueryState(q)
}

// force runs the query for an encoded key on behalf of the dependency graph.
func (q *Query[K, V]) force(t *Task, key []byte) bool {
	k, err := q.spec.KeyCodec.Decode(key)
	if err != nil {
		return false
	}
	_, err = q.Get(t, k)
	return err == nil
}

func (q *Query[K, V]) describeKey(key []byte) string {
	k, err := q.spec.KeyCodec.Decode(key)
	if err != nil {
		return fmt.Sprintf("%x", key)
	}
	return q.describe(k)
}

func (q *Query[K, V]) describe(key K) string {
	if q.spec.Describe != nil {
		return q.spec.Describe(key)
	}
	return fmt.Sprint(key)
}

func (q *Query[K, V]) frame(t *Task, key K) domain.QueryFrame {
	return domain.QueryFrame{Kind: q.spec.Name, Description: q.describe(key), Span: t.span}
}

// cachesOnDisk reports whether values of the kind are written to the on-disk cache.
func (q *Query[K, V]) cachesOnDisk() bool {
	f := q.spec.Flags
	return !q.spec.NoDiskCache &&
		!f.Has(domain.FlagAnonymous) &&
		!f.Has(domain.FlagInput) &&
		!f.Has(domain.FlagEvalAlways)
}

func (q *Query[K, V]) hashKey(key K) domain.Fingerprint {
	h := domain.NewStableHasher()
	if q.spec.HashKey != nil {
		q.spec.HashKey(h, key)
	} else {
		domain.HashValue(h, key)
	}
	return h.Finish()
}

// hashValue fingerprints a result. Values without stable hashing are fingerprinted by
// their encoding; values that cannot be encoded either are reported as unhashed.
func (q *Query[K, V]) hashValue(v V) (domain.Fingerprint, bool) {
	h := domain.NewStableHasher()
	if q.spec.HashValue != nil {
		q.spec.HashValue(h, v)
		return h.Finish(), true
	}
	if domain.HashValue(h, v) {
		return h.Finish(), true
	}
	b, err := q.spec.Codec.Encode(v)
	if err != nil {
		return domain.ZeroFingerprint, false
	}
	return domain.FingerprintOf(b), true
}
