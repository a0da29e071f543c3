package watcher_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/quarry/internal/adapters/watcher"
	"go.trai.ch/quarry/internal/core/ports"
	"go.trai.ch/quarry/internal/core/ports/mocks"
	"go.uber.org/mock/gomock"
)

func TestWatcher_ReportsWrites(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "src")
	require.NoError(t, os.MkdirAll(src, 0o750))
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".quarry"), 0o750))

	ctrl := gomock.NewController(t)
	w, err := watcher.NewWatcher(mocks.NewMockLogger(ctrl))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx, root))
	defer func() { _ = w.Stop() }()

	events := make(chan ports.WatchEvent, 16)
	go func() {
		for ev := range w.Events() {
			events <- ev
		}
		close(events)
	}()

	// Writes inside the cache directory are not watched.
	require.NoError(t, os.WriteFile(filepath.Join(root, ".quarry", "cache.bin"), []byte("x"), 0o600))
	target := filepath.Join(src, "main.q")
	require.NoError(t, os.WriteFile(target, []byte("hello"), 0o600))

	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			require.True(t, ok, "event stream closed early")
			assert.NotContains(t, ev.Path, ".quarry")
			if ev.Path == target {
				return
			}
		case <-deadline:
			t.Fatal("no event for the written file")
		}
	}
}
