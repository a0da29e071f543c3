package watcher_test

import (
	"sync"
	"testing"
	"testing/synctest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/quarry/internal/adapters/watcher"
)

// batches collects every callback invocation.
type batches struct {
	mu  sync.Mutex
	got [][]string
}

func (b *batches) add(paths []string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.got = append(b.got, paths)
}

func (b *batches) all() [][]string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.got
}

func TestDebouncer_CoalescesBurst(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		var b batches
		d := watcher.NewDebouncer(100*time.Millisecond, b.add)

		d.Add("src/b.q")
		time.Sleep(50 * time.Millisecond)
		d.Add("src/a.q")
		d.Add("src/b.q")

		time.Sleep(99 * time.Millisecond)
		synctest.Wait()
		assert.Empty(t, b.all(), "the window restarts on every event")

		time.Sleep(2 * time.Millisecond)
		synctest.Wait()
		require.Len(t, b.all(), 1)
		assert.Equal(t, []string{"src/a.q", "src/b.q"}, b.all()[0])
	})
}

func TestDebouncer_SeparateBursts(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		var b batches
		d := watcher.NewDebouncer(100*time.Millisecond, b.add)

		d.Add("a.q")
		time.Sleep(150 * time.Millisecond)
		d.Add("b.q")
		time.Sleep(150 * time.Millisecond)
		synctest.Wait()

		assert.Equal(t, [][]string{{"a.q"}, {"b.q"}}, b.all())
	})
}

func TestDebouncer_Flush(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		var b batches
		d := watcher.NewDebouncer(time.Hour, b.add)

		d.Add("a.q")
		d.Flush()
		assert.Equal(t, [][]string{{"a.q"}}, b.all())

		// Nothing pending: no second batch.
		d.Flush()
		time.Sleep(2 * time.Hour)
		synctest.Wait()
		assert.Len(t, b.all(), 1)
	})
}

func TestDebouncer_NilCallback(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		d := watcher.NewDebouncer(time.Millisecond, nil)
		d.Add("a.q")
		time.Sleep(10 * time.Millisecond)
		synctest.Wait()
		d.Flush()
	})
}
