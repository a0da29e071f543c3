package watcher_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.trai.ch/quarry/internal/adapters/watcher"
	"go.trai.ch/quarry/internal/core/ports/mocks"
	"go.uber.org/mock/gomock"
)

func TestHashCache_ChangedFiltersIdenticalContent(t *testing.T) {
	ctrl := gomock.NewController(t)
	hasher := mocks.NewMockHasher(ctrl)
	cache := watcher.NewHashCache(hasher)

	hasher.EXPECT().ComputeFileHash("a.q").Return(uint64(1), nil)
	hasher.EXPECT().ComputeFileHash("b.q").Return(uint64(2), nil)
	cache.Prime([]string{"a.q", "b.q"})
	assert.Equal(t, 2, cache.Len())

	hasher.EXPECT().ComputeFileHash("a.q").Return(uint64(1), nil)
	hasher.EXPECT().ComputeFileHash("b.q").Return(uint64(3), nil)
	assert.Equal(t, []string{"b.q"}, cache.Changed([]string{"a.q", "b.q"}))
}

func TestHashCache_CreatedAndRemovedFiles(t *testing.T) {
	ctrl := gomock.NewController(t)
	hasher := mocks.NewMockHasher(ctrl)
	cache := watcher.NewHashCache(hasher)

	hasher.EXPECT().ComputeFileHash("old.q").Return(uint64(1), nil)
	cache.Prime([]string{"old.q"})

	gone := errors.New("no such file")
	hasher.EXPECT().ComputeFileHash("old.q").Return(uint64(0), gone)
	hasher.EXPECT().ComputeFileHash("new.q").Return(uint64(9), nil)
	hasher.EXPECT().ComputeFileHash("never.q").Return(uint64(0), gone)

	changed := cache.Changed([]string{"old.q", "new.q", "never.q"})
	assert.Equal(t, []string{"old.q", "new.q"}, changed)
	assert.Equal(t, 1, cache.Len())
}
