package query_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"testing/synctest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/quarry/internal/core/domain"
	"go.trai.ch/quarry/internal/engine/query"
)

// includes maps a file to the files it includes.
type includes map[string][]string

// defineExpand registers a query that concatenates a file name with the expansion of
// everything it includes.
func defineExpand(reg *query.Registry, graph includes, policy domain.CyclePolicy) *query.Query[string, string] {
	var expand *query.Query[string, string]
	expand = query.Define(reg, query.Spec[string, string]{
		Name:  "expand",
		Cycle: policy,
		Fallback: func(string, *domain.CycleError) string {
			return "<cycle>"
		},
		Provider: func(t *query.Task, file string) (string, error) {
			parts := []string{file}
			for i, inc := range graph[file] {
				s, err := expand.Get(t.At(domain.Span{File: file, Line: i + 1}), inc)
				if err != nil {
					return "", err
				}
				parts = append(parts, s)
			}
			return strings.Join(parts, "+"), nil
		},
	})
	return expand
}

func TestCycle_DefaultPolicyReturnsFallback(t *testing.T) {
	reg := query.NewRegistry()
	expand := defineExpand(reg, includes{"a": {"b"}, "b": {"a"}}, domain.CycleDefault)
	sink := &recordingSink{}
	e := query.NewEngine(reg, query.WithDiagnosticSink(sink))

	var got string
	err := e.Run(context.Background(), func(t *query.Task) error {
		var err error
		got, err = expand.Get(t, "a")
		return err
	})

	require.NoError(t, err)
	assert.Equal(t, "<cycle>", got, "the query that was requested again loses its result")

	diags := sink.all()
	require.Len(t, diags, 1)
	assert.Equal(t, domain.DiagError, diags[0].Level)
	assert.Equal(t, "cycle detected when computing expand(a)", diags[0].Message)
	require.Len(t, diags[0].Notes, 2)
	assert.Equal(t, "...which requires computing expand(b)...", diags[0].Notes[0].Message)
	assert.Equal(t, domain.Span{File: "a", Line: 1}, diags[0].Notes[0].Span)

	err = e.Finish()
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrSessionFailed))
}

func TestCycle_KeyIsNotCachedAfterCycle(t *testing.T) {
	reg := query.NewRegistry()
	expand := defineExpand(reg, includes{"a": {"a"}}, domain.CycleDefault)
	sink := &recordingSink{}
	e := query.NewEngine(reg, query.WithDiagnosticSink(sink))

	require.NoError(t, e.Run(context.Background(), func(t *query.Task) error {
		for range 2 {
			if err := expand.Ensure(t, "a"); err != nil {
				return err
			}
		}
		return nil
	}))

	// The second request computes again and finds the cycle again.
	assert.Len(t, sink.all(), 2)
	assert.Zero(t, e.Stats().Cached)
}

func TestCycle_DelayBugFailsOnlyWithoutErrors(t *testing.T) {
	reg := query.NewRegistry()
	expand := defineExpand(reg, includes{"a": {"a"}}, domain.CycleDelayBug)
	sink := &recordingSink{}
	e := query.NewEngine(reg, query.WithDiagnosticSink(sink))

	var got string
	require.NoError(t, e.Run(context.Background(), func(t *query.Task) error {
		var err error
		got, err = expand.Get(t, "a")
		return err
	}))

	assert.Equal(t, "<cycle>", got)
	assert.Empty(t, sink.all(), "delayed bugs are held back")
	assert.Equal(t, 1, e.Stats().DelayedBugs)

	err := e.Finish()
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrDelayedBug))
	diags := sink.all()
	require.Len(t, diags, 1)
	assert.Equal(t, domain.DiagError, diags[0].Level)
}

func TestCycle_FatalPolicyReturnsCycleError(t *testing.T) {
	reg := query.NewRegistry()
	expand := defineExpand(reg, includes{"a": {"b"}, "b": {"c"}, "c": {"a"}}, domain.CycleFatal)
	e := query.NewEngine(reg)

	err := e.Run(context.Background(), func(t *query.Task) error {
		return expand.Ensure(t, "a")
	})

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrCycleDetected))
	var cycle *domain.CycleError
	require.True(t, errors.As(err, &cycle))
	require.Len(t, cycle.Stack, 3)
	assert.Equal(t, "expand(a)", cycle.Stack[0].String())
	assert.Equal(t, "expand(b)", cycle.Stack[1].String())
	assert.Equal(t, "expand(c)", cycle.Stack[2].String())
	assert.False(t, cycle.AcrossThreads)
}

func TestCycle_NodesOnCycleAreVolatile(t *testing.T) {
	reg := query.NewRegistry()
	expand := defineExpand(reg, includes{"a": {"b"}, "b": {"a"}, "c": nil}, domain.CycleDefault)
	e := query.NewEngine(reg)
	require.NoError(t, e.Run(context.Background(), func(t *query.Task) error {
		if err := expand.Ensure(t, "a"); err != nil {
			return err
		}
		return expand.Ensure(t, "c")
	}))

	g, _, err := e.EncodeQueryResults()
	require.NoError(t, err)
	require.Len(t, g.Nodes, 3)
	volatile := 0
	for _, n := range g.Nodes {
		if n.Volatile {
			volatile++
		}
	}
	assert.Equal(t, 2, volatile)
}

func TestDeadlock_WatcherBreaksCycleAcrossThreads(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		reg := query.NewRegistry()
		var started sync.WaitGroup
		started.Add(2)
		var expand *query.Query[string, string]
		expand = query.Define(reg, query.Spec[string, string]{
			Name: "expand",
			Fallback: func(string, *domain.CycleError) string {
				return "<cycle>"
			},
			Provider: func(t *query.Task, file string) (string, error) {
				// Both roots own their key before either asks for the other one.
				started.Done()
				started.Wait()
				other := map[string]string{"a": "b", "b": "a"}[file]
				s, err := expand.Get(t, other)
				return file + "+" + s, err
			},
		})
		sink := &recordingSink{}
		e := query.NewEngine(reg, query.WithDiagnosticSink(sink))

		results := make(map[string]string)
		var mu sync.Mutex
		var wg sync.WaitGroup
		for _, root := range []string{"a", "b"} {
			wg.Go(func() {
				err := e.Run(context.Background(), func(t *query.Task) error {
					s, err := expand.Get(t, root)
					mu.Lock()
					results[root] = s
					mu.Unlock()
					return err
				})
				assert.NoError(t, err)
			})
		}
		wg.Wait()

		fallbacks := 0
		for _, s := range results {
			if s == "<cycle>" {
				fallbacks++
			}
		}
		assert.Equal(t, 1, fallbacks, "results: %v", results)

		diags := sink.all()
		require.Len(t, diags, 1)
		notes := diags[0].Notes
		require.NotEmpty(t, notes)
		assert.Equal(t, "the cycle spans multiple worker threads", notes[len(notes)-1].Message)

		jobs, ok := e.ActiveJobs()
		require.True(t, ok)
		assert.Empty(t, jobs)
	})
}

func TestDeadlock_WaitingOnOtherThreadIsNotADeadlock(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		reg := query.NewRegistry()
		release := make(chan struct{})
		slow := query.Define(reg, query.Spec[string, string]{
			Name: "slow",
			Provider: func(_ *query.Task, key string) (string, error) {
				<-release
				return key, nil
			},
		})
		e := query.NewEngine(reg)

		var wg sync.WaitGroup
		for range 2 {
			wg.Go(func() {
				err := e.Run(context.Background(), func(t *query.Task) error {
					return slow.Ensure(t, "k")
				})
				assert.NoError(t, err)
			})
		}
		synctest.Wait()

		jobs, ok := e.ActiveJobs()
		require.True(t, ok)
		require.Len(t, jobs, 1)
		for _, info := range jobs {
			assert.Equal(t, domain.JobRunning, info.State)
			assert.Equal(t, "slow(k)", info.Frame.String())
		}

		close(release)
		wg.Wait()
	})
}
