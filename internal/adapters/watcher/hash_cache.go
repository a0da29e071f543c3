package watcher

import (
	"sync"

	"go.trai.ch/quarry/internal/core/ports"
)

// HashCache remembers the content hash of every source, so watch mode can drop
// events that did not change any content, like a save without edits.
type HashCache struct {
	mu     sync.Mutex
	hashes map[string]uint64
	hasher ports.Hasher
}

// NewHashCache creates an empty cache.
func NewHashCache(hasher ports.Hasher) *HashCache {
	return &HashCache{
		hashes: make(map[string]uint64),
		hasher: hasher,
	}
}

// Prime records the current hash of each path. Unreadable paths are forgotten.
func (h *HashCache) Prime(paths []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, p := range paths {
		sum, err := h.hasher.ComputeFileHash(p)
		if err != nil {
			delete(h.hashes, p)
			continue
		}
		h.hashes[p] = sum
	}
}

// Changed returns the paths whose content differs from the recorded hash, and
// records the new hashes. A path that appeared or disappeared counts as changed.
func (h *HashCache) Changed(paths []string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	var changed []string
	for _, p := range paths {
		old, known := h.hashes[p]
		sum, err := h.hasher.ComputeFileHash(p)
		switch {
		case err != nil:
			if known {
				delete(h.hashes, p)
				changed = append(changed, p)
			}
		case !known || old != sum:
			h.hashes[p] = sum
			changed = append(changed, p)
		}
	}
	return changed
}

// Len returns the number of tracked paths.
func (h *HashCache) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.hashes)
}
