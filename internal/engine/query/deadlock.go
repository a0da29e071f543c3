package query

import (
	"cmp"
	"slices"
	"sync"
	"time"

	"github.com/dominikbraun/graph"
	"go.trai.ch/quarry/internal/core/domain"
	"go.trai.ch/zerr"
)

const collectRetryDelay = time.Millisecond

// threads counts the goroutines working for an engine. When every one of them is parked
// on a latch nothing can make progress by itself, and onStall is started to look for a
// cycle between them.
type threads struct {
	mu       sync.Mutex
	active   int
	blocked  int
	watching bool
	onStall  func()
}

func (t *threads) enter() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.active++
}

func (t *threads) exit() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.active--
	t.checkLocked()
}

// fork is the thread slot of a Parallel call. The parent lends its slot to the first
// running child and every further child adds one, so the slot stays counted until the
// parent returns.
type fork struct {
	running int
}

func (t *threads) enterChild(f *fork) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if f.running > 0 {
		t.active++
	}
	f.running++
}

func (t *threads) exitChild(f *fork) {
	t.mu.Lock()
	defer t.mu.Unlock()
	f.running--
	if f.running > 0 {
		t.active--
		t.checkLocked()
	}
}

func (t *threads) block() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.blocked++
	t.checkLocked()
}

func (t *threads) unblock() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.blocked--
}

func (t *threads) stalledLocked() bool {
	return t.active > 0 && t.blocked == t.active
}

func (t *threads) stalled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stalledLocked()
}

func (t *threads) checkLocked() {
	if t.watching || t.onStall == nil || !t.stalledLocked() {
		return
	}
	t.watching = true
	go t.onStall()
}

// doneWatching ends a watcher run and starts another one if the threads are still stuck.
func (t *threads) doneWatching() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.watching = false
	t.checkLocked()
}

// waitEdge is a waiter of the latch of owner.
type waitEdge struct {
	from  *job
	owner *job
	w     *waiter
}

// watchDeadlock runs when every engine thread is blocked. It resolves one cycle between
// the blocked jobs, or fails every waiter when there is none.
func (e *Engine) watchDeadlock() {
	defer e.threads.doneWatching()
	for {
		if !e.threads.stalled() {
			return
		}
		jobs, ok := e.jobs.tryCollect()
		if !ok {
			time.Sleep(collectRetryDelay)
			continue
		}
		if !e.threads.stalled() {
			return
		}
		e.resolveDeadlock(jobs)
		return
	}
}

func (e *Engine) resolveDeadlock(jobs []*job) {
	g := graph.New(func(j *job) domain.JobID { return j.id }, graph.Directed())
	present := make(map[domain.JobID]bool, len(jobs))
	for _, j := range jobs {
		_ = g.AddVertex(j)
		present[j.id] = true
	}

	var edges []waitEdge
	var roots []waitEdge
	for _, j := range jobs {
		if j.parent != nil && present[j.parent.id] {
			_ = g.AddEdge(j.parent.id, j.id)
		}
		for _, w := range j.latch.waiting() {
			if w.job == nil || !present[w.job.id] {
				roots = append(roots, waitEdge{owner: j, w: w})
				continue
			}
			_ = g.AddEdge(w.job.id, j.id)
			edges = append(edges, waitEdge{from: w.job, owner: j, w: w})
		}
	}

	if cycle, edge, ok := findCycle(g, edges); ok {
		for _, cj := range cycle {
			cj.volatile.Store(true)
		}
		err := &domain.CycleError{Stack: frames(cycle), AcrossThreads: true}
		if edge.owner.latch.resume(edge.w, latchResult{cycle: err}) {
			e.metrics.RecordEvent(edge.owner.frame.Kind, domain.EventDeadlock)
			e.logger.Warn("resolved query deadlock: " + err.Error())
		}
		return
	}

	deadlock := zerr.With(zerr.Wrap(domain.ErrDeadlock, "wait for query"), "jobs", len(jobs))
	e.logger.Error(deadlock)
	for _, edge := range slices.Concat(edges, roots) {
		edge.owner.latch.resume(edge.w, latchResult{err: deadlock})
	}
}

// findCycle picks the first wait edge, by job id, that closes a cycle and returns the
// jobs on that cycle starting with the owner the edge waits on.
func findCycle(g graph.Graph[domain.JobID, *job], edges []waitEdge) ([]*job, waitEdge, bool) {
	sccs, err := graph.StronglyConnectedComponents(g)
	if err != nil {
		return nil, waitEdge{}, false
	}
	component := make(map[domain.JobID]int)
	for i, scc := range sccs {
		if len(scc) < 2 {
			continue
		}
		for _, id := range scc {
			component[id] = i + 1
		}
	}

	slices.SortFunc(edges, func(a, b waitEdge) int {
		if a.from.id != b.from.id {
			return cmp.Compare(a.from.id, b.from.id)
		}
		return cmp.Compare(a.owner.id, b.owner.id)
	})
	for _, edge := range edges {
		c := component[edge.from.id]
		if c == 0 || c != component[edge.owner.id] {
			continue
		}
		path, err := graph.ShortestPath(g, edge.owner.id, edge.from.id)
		if err != nil {
			continue
		}
		cycle := make([]*job, 0, len(path))
		for _, id := range path {
			j, err := g.Vertex(id)
			if err != nil {
				break
			}
			cycle = append(cycle, j)
		}
		if len(cycle) == len(path) {
			return cycle, edge, true
		}
	}
	return nil, waitEdge{}, false
}

func frames(jobs []*job) []domain.QueryFrame {
	out := make([]domain.QueryFrame, len(jobs))
	for i, j := range jobs {
		out[i] = j.frame
	}
	return out
}
