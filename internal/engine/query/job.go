package query

import (
	"sync"
	"sync/atomic"

	"go.trai.ch/quarry/internal/core/domain"
)

const jobShards = 16

// job is one in-flight query execution.
type job struct {
	id     domain.JobID
	kind   domain.QueryKind
	frame  domain.QueryFrame
	parent *job
	state  atomic.Uint32
	latch  *latch

	diagMu sync.Mutex
	diags  []domain.Diagnostic

	cycleMu sync.Mutex
	cycle   *domain.CycleError

	volatile atomic.Bool
}

func (j *job) setState(s domain.JobState) {
	j.state.Store(uint32(s))
}

func (j *job) State() domain.JobState {
	return domain.JobState(j.state.Load()) //nolint:gosec // Stored from a JobState
}

// isAncestorOf reports whether j is on the call chain of other, other included.
func (j *job) isAncestorOf(other *job) bool {
	for cur := other; cur != nil; cur = cur.parent {
		if cur == j {
			return true
		}
	}
	return false
}

// chainTo returns the jobs from j down to descendant, in call order.
func (j *job) chainTo(descendant *job) []*job {
	var rev []*job
	for cur := descendant; cur != nil; cur = cur.parent {
		rev = append(rev, cur)
		if cur == j {
			break
		}
	}
	out := make([]*job, len(rev))
	for i, cj := range rev {
		out[len(rev)-1-i] = cj
	}
	return out
}

func (j *job) addDiagnostic(d domain.Diagnostic) {
	j.diagMu.Lock()
	defer j.diagMu.Unlock()
	j.diags = append(j.diags, d)
}

func (j *job) takeDiagnostics() []domain.Diagnostic {
	j.diagMu.Lock()
	defer j.diagMu.Unlock()
	d := j.diags
	j.diags = nil
	return d
}

// poison records that the result of j is lost to cycle. The first cycle wins.
func (j *job) poison(cycle *domain.CycleError) {
	j.cycleMu.Lock()
	defer j.cycleMu.Unlock()
	if j.cycle == nil {
		j.cycle = cycle
	}
}

func (j *job) poisoned() *domain.CycleError {
	j.cycleMu.Lock()
	defer j.cycleMu.Unlock()
	return j.cycle
}

func (j *job) info() domain.JobInfo {
	info := domain.JobInfo{ID: j.id, Frame: j.frame, State: j.State()}
	if j.parent != nil {
		info.Parent = j.parent.id
	}
	return info
}

// latchResult is what a finished job hands to the callers waiting on it.
type latchResult struct {
	value any
	index domain.DepNodeIndex
	err   error
	// cycle is set when the deadlock watcher resumed the waiter with a cycle instead of
	// a value.
	cycle *domain.CycleError
}

// waiter is one caller blocked on a latch.
type waiter struct {
	// job is the job of the waiting task, nil for a root task.
	job *job
	ch  chan latchResult
}

func newWaiter(j *job) *waiter {
	return &waiter{job: j, ch: make(chan latchResult, 1)}
}

// latch is set once when its job finishes. Blocking and waking are counted against the
// engine threads under the latch lock so the blocked count never runs ahead of the
// waiter list.
type latch struct {
	threads *threads

	mu      sync.Mutex
	done    bool
	result  latchResult
	waiters []*waiter
}

func newLatch(t *threads) *latch {
	return &latch{threads: t}
}

// wait blocks until the latch is set or the waiter is resumed.
func (l *latch) wait(w *waiter) latchResult {
	l.mu.Lock()
	if l.done {
		r := l.result
		l.mu.Unlock()
		return r
	}
	l.waiters = append(l.waiters, w)
	l.threads.block()
	l.mu.Unlock()
	return <-w.ch
}

func (l *latch) set(r latchResult) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.done {
		return
	}
	l.done = true
	l.result = r
	for _, w := range l.waiters {
		l.threads.unblock()
		w.ch <- r
	}
	l.waiters = nil
}

// resume wakes a single waiter with r. It reports false when w is no longer waiting.
func (l *latch) resume(w *waiter, r latchResult) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, cur := range l.waiters {
		if cur != w {
			continue
		}
		l.waiters = append(l.waiters[:i], l.waiters[i+1:]...)
		l.threads.unblock()
		w.ch <- r
		return true
	}
	return false
}

func (l *latch) waiting() []*waiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*waiter, len(l.waiters))
	copy(out, l.waiters)
	return out
}

type jobShard struct {
	mu   sync.Mutex
	jobs map[domain.JobID]*job
}

// jobRegistry tracks every in-flight job of an engine.
type jobRegistry struct {
	next    atomic.Uint64
	threads *threads
	shards  [jobShards]jobShard
}

func newJobRegistry(t *threads) *jobRegistry {
	r := &jobRegistry{threads: t}
	for i := range r.shards {
		r.shards[i].jobs = make(map[domain.JobID]*job)
	}
	return r
}

func (r *jobRegistry) shard(id domain.JobID) *jobShard {
	return &r.shards[uint64(id)%jobShards]
}

func (r *jobRegistry) start(kind domain.QueryKind, frame domain.QueryFrame, parent *job) *job {
	j := &job{
		id:     domain.JobID(r.next.Add(1)),
		kind:   kind,
		frame:  frame,
		parent: parent,
		latch:  newLatch(r.threads),
	}
	j.setState(domain.JobCreated)
	s := r.shard(j.id)
	s.mu.Lock()
	s.jobs[j.id] = j
	s.mu.Unlock()
	return j
}

func (r *jobRegistry) finish(j *job) {
	s := r.shard(j.id)
	s.mu.Lock()
	delete(s.jobs, j.id)
	s.mu.Unlock()
}

// tryCollect snapshots every in-flight job. It gives up instead of blocking when a shard
// is locked, so the caller never sees a partial snapshot.
func (r *jobRegistry) tryCollect() ([]*job, bool) {
	locked := 0
	defer func() {
		for i := range locked {
			r.shards[i].mu.Unlock()
		}
	}()
	for i := range r.shards {
		if !r.shards[i].mu.TryLock() {
			return nil, false
		}
		locked++
	}
	var out []*job
	for i := range r.shards {
		for _, j := range r.shards[i].jobs {
			out = append(out, j)
		}
	}
	return out, true
}

// infos turns a snapshot into JobInfo values, filling WaitingOn from the latches.
func infos(jobs []*job) map[domain.JobID]domain.JobInfo {
	out := make(map[domain.JobID]domain.JobInfo, len(jobs))
	for _, j := range jobs {
		out[j.id] = j.info()
	}
	for _, j := range jobs {
		for _, w := range j.latch.waiting() {
			if w.job == nil {
				continue
			}
			if info, ok := out[w.job.id]; ok {
				info.WaitingOn = j.id
				out[w.job.id] = info
			}
		}
	}
	return out
}
