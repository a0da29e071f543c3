package query

import (
	"hash/maphash"
	"sync"

	"go.trai.ch/quarry/internal/core/domain"
	"go.trai.ch/zerr"
)

const shardCount = 32

// kindState is the per-engine storage of one query kind, seen without its type
// parameters.
type kindState interface {
	// encodeFresh encodes every value computed this session whose bytes are not already
	// in the previous session's file.
	encodeFresh(out map[domain.DepNodeIndex][]byte) (encoded, failed int)
	// counts returns the number of cached and in-flight keys.
	counts() (cached, active int)
}

type entry[V any] struct {
	value V
	index domain.DepNodeIndex
	// fresh is set for values whose encoding is not carried over from the previous session.
	fresh bool
}

type cacheShard[K comparable, V any] struct {
	mu     sync.RWMutex
	cache  map[K]entry[V]
	active map[K]*job
}

// cacheStatus is the outcome of a cache lookup.
type cacheStatus uint8

const (
	statusMiss cacheStatus = iota
	statusHit
	statusInProgress
)

// queryState maps the keys of one kind to cached values and in-flight jobs. A key moves
// from absent to in progress to cached. A key whose job lost its result to a cycle goes
// back to absent.
type queryState[K comparable, V any] struct {
	query  *Query[K, V]
	seed   maphash.Seed
	shards [shardCount]cacheShard[K, V]
}

func newQueryState[K comparable, V any](q *Query[K, V]) *queryState[K, V] {
	s := &queryState[K, V]{query: q, seed: maphash.MakeSeed()}
	for i := range s.shards {
		s.shards[i].cache = make(map[K]entry[V])
		s.shards[i].active = make(map[K]*job)
	}
	return s
}

func (s *queryState[K, V]) shard(key K) *cacheShard[K, V] {
	return &s.shards[maphash.Comparable(s.seed, key)%shardCount]
}

// tryGet reports whether key is cached, in progress, or absent.
func (s *queryState[K, V]) tryGet(key K) (entry[V], *job, cacheStatus) {
	sh := s.shard(key)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	if e, ok := sh.cache[key]; ok {
		return e, nil, statusHit
	}
	if j, ok := sh.active[key]; ok {
		return entry[V]{}, j, statusInProgress
	}
	return entry[V]{}, nil, statusMiss
}

// claim is tryGet that registers a new job for an absent key. On statusMiss the
// returned job is the caller's own and the key is now in progress.
func (s *queryState[K, V]) claim(key K, start func() *job) (entry[V], *job, cacheStatus) {
	sh := s.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if e, ok := sh.cache[key]; ok {
		return e, nil, statusHit
	}
	if j, ok := sh.active[key]; ok {
		return entry[V]{}, j, statusInProgress
	}
	j := start()
	sh.active[key] = j
	return entry[V]{}, j, statusMiss
}

// complete caches the value of key and ends its in-progress state in one step.
// Completing a cached key is a bug in the engine.
func (s *queryState[K, V]) complete(key K, e entry[V]) {
	sh := s.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if _, ok := sh.cache[key]; ok {
		panic(zerr.With(zerr.Wrap(domain.ErrAlreadyCompleted, "complete query"),
			"query", s.query.spec.Name))
	}
	sh.cache[key] = e
	delete(sh.active, key)
}

// abandon returns key to absent.
func (s *queryState[K, V]) abandon(key K) {
	sh := s.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	delete(sh.active, key)
}

// activeKeys returns every key currently in progress.
func (s *queryState[K, V]) activeKeys() []K {
	var keys []K
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.RLock()
		for k := range sh.active {
			keys = append(keys, k)
		}
		sh.mu.RUnlock()
	}
	return keys
}

func (s *queryState[K, V]) counts() (cached, active int) {
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.RLock()
		cached += len(sh.cache)
		active += len(sh.active)
		sh.mu.RUnlock()
	}
	return cached, active
}

func (s *queryState[K, V]) encodeFresh(out map[domain.DepNodeIndex][]byte) (encoded, failed int) {
	if !s.query.cachesOnDisk() {
		return 0, 0
	}
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.RLock()
		for _, e := range sh.cache {
			if !e.fresh || !e.index.Valid() {
				continue
			}
			b, err := s.query.spec.Codec.Encode(e.value)
			if err != nil {
				failed++
				continue
			}
			out[e.index] = b
			encoded++
		}
		sh.mu.RUnlock()
	}
	return encoded, failed
}
