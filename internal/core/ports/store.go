package ports

import "go.trai.ch/quarry/internal/core/domain"

// IncrementalStore persists the dependency graph and query results between sessions.
//
//go:generate go run go.uber.org/mock/mockgen -source=store.go -destination=mocks/mock_store.go -package=mocks
type IncrementalStore interface {
	// Load reads the previous session below dir.
	// Returns nil, nil if no previous session exists.
	Load(dir string) (*domain.SerializedGraph, error)

	// Save writes the session below dir, replacing any previous one atomically.
	Save(dir string, graph *domain.SerializedGraph) error

	// Remove deletes the persisted session. Removing a missing session is not an error.
	Remove(dir string) error

	// Stat describes the persisted session without decoding it.
	Stat(dir string) (domain.CacheInfo, error)
}
