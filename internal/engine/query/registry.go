package query

import (
	"fmt"
	"sync"

	"go.trai.ch/quarry/internal/core/domain"
	"go.trai.ch/zerr"
)

// Provider computes the value of a query for one key. It must be a pure function of the
// key and of the queries it reads through t.
type Provider[K comparable, V any] func(t *Task, key K) (V, error)

// Spec defines one query kind.
type Spec[K comparable, V any] struct {
	// Name identifies the kind across sessions. It must be unique in a registry.
	Name string
	// Provider computes values. Input kinds have none.
	Provider Provider[K, V]
	// Flags control caching and dependency tracking.
	Flags domain.KindFlags
	// Cycle selects how a cycle through this kind is resolved.
	Cycle domain.CyclePolicy
	// Fallback produces the value that replaces a result lost to a cycle.
	// Without it the zero value is used.
	Fallback func(key K, cycle *domain.CycleError) V
	// HashKey feeds a key into a hasher. Defaults to domain.HashValue.
	HashKey func(h *domain.StableHasher, key K)
	// HashValue feeds a value into a hasher. Defaults to domain.HashValue, then to
	// hashing the value's encoding.
	HashValue func(h *domain.StableHasher, value V)
	// Codec encodes values for the on-disk cache. Defaults to JSON.
	Codec Codec[V]
	// KeyCodec encodes keys so later sessions can re-run the query. Defaults to JSON.
	KeyCodec Codec[K]
	// Describe renders a key for diagnostics. Defaults to fmt.Sprint.
	Describe func(key K) string
	// NoDiskCache keeps values out of the on-disk cache. Reused nodes of such kinds are
	// recomputed without tracking reads.
	NoDiskCache bool
}

// vtable is the type-erased part of a query kind the engine needs without knowing K
// and V.
type vtable interface {
	info() domain.KindInfo
	newState() kindState
	force(t *Task, key []byte) bool
	describeKey(key []byte) string
}

// Registry holds the query kinds known to an engine. Kinds are defined once at startup,
// before any engine is created from the registry.
type Registry struct {
	mu     sync.RWMutex
	kinds  []vtable
	byName map[string]domain.QueryKind
}

var _ domain.KindResolver = (*Registry)(nil)

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]domain.QueryKind)}
}

// Define registers a query kind and returns its typed handle.
// It panics on an empty or duplicate name and on key types that cannot be hashed;
// both are programming errors in the query definitions.
func Define[K comparable, V any](r *Registry, spec Spec[K, V]) *Query[K, V] {
	if spec.Name == "" {
		panic(zerr.Wrap(domain.ErrInvalidKind, "query kind without a name"))
	}
	q := &Query[K, V]{spec: spec}
	if q.spec.Codec == nil {
		q.spec.Codec = JSONCodec[V]{}
	}
	if q.spec.KeyCodec == nil {
		q.spec.KeyCodec = JSONCodec[K]{}
	}
	if q.spec.HashKey == nil {
		var zero K
		if !domain.HashValue(domain.NewStableHasher(), zero) {
			panic(zerr.With(zerr.With(zerr.Wrap(domain.ErrUnhashableKey, "define query"),
				"query", spec.Name), "key_type", fmt.Sprintf("%T", zero)))
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byName[spec.Name]; exists {
		panic(zerr.With(zerr.Wrap(domain.ErrDuplicateKind, "define query"), "query", spec.Name))
	}
	q.kind = domain.QueryKind(len(r.kinds)) //nolint:gosec // A registry holds a handful of kinds
	r.kinds = append(r.kinds, q)
	r.byName[spec.Name] = q.kind
	return q
}

// DefineInput registers an input kind. Values of input kinds are fed with Query.Feed
// instead of being computed.
func DefineInput[K comparable, V any](r *Registry, spec Spec[K, V]) *Query[K, V] {
	spec.Flags |= domain.FlagInput
	spec.Provider = nil
	return Define(r, spec)
}

// KindInfo implements domain.KindResolver.
func (r *Registry) KindInfo(kind domain.QueryKind) (domain.KindInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if int(kind) >= len(r.kinds) {
		return domain.KindInfo{}, false
	}
	return r.kinds[kind].info(), true
}

// KindByName implements domain.KindResolver.
func (r *Registry) KindByName(name string) (domain.KindInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kind, ok := r.byName[name]
	if !ok {
		return domain.KindInfo{}, false
	}
	return r.kinds[kind].info(), true
}

// Kinds returns every registered kind in registration order.
func (r *Registry) Kinds() []domain.KindInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.KindInfo, len(r.kinds))
	for i, vt := range r.kinds {
		out[i] = vt.info()
	}
	return out
}

func (r *Registry) vtables() []vtable {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]vtable, len(r.kinds))
	copy(out, r.kinds)
	return out
}
