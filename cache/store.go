// Package cache holds the client-side key-addressed store of board payloads.
// Keys are request URLs, so per-client filter variants are distinct entries.
// Entries declare tags (logical entities they depend on) so cross-feature
// invalidation targets tags instead of key string prefixes; predicate
// invalidation is kept for callers that need it.
package cache

import (
	"sync"

	"fieldboard-api/domain"
)

// Store is the cache primitive set the mutation dispatchers build on.
//
// There is deliberately no cross-call transaction: two dispatchers racing on
// the same key interleave and the last write wins. The mutex below guards
// memory safety only.
type Store interface {
	// Read returns the cached payload for key, if any. The returned value is
	// a copy; callers may not mutate the cached state through it.
	Read(key string) (domain.BoardPayload, bool)
	// Put stores a fetched payload under key with the given tags, clearing
	// any stale mark.
	Put(key string, payload domain.BoardPayload, tags ...string)
	// Write applies update to the cached payload. Keys never fetched are
	// skipped. When revalidate is set the entry is marked stale.
	Write(key string, update func(domain.BoardPayload) domain.BoardPayload, revalidate bool)
	// Invalidate marks every entry whose key satisfies match as stale. The
	// value keeps serving reads until a revalidation replaces it.
	Invalidate(match func(key string) bool)
	// InvalidateTags marks every entry declaring any of the tags as stale.
	InvalidateTags(tags ...string)
	// Stale reports whether the entry for key is awaiting revalidation.
	Stale(key string) bool
	// Keys returns all cached keys satisfying match.
	Keys(match func(key string) bool) []string
}

type entry struct {
	payload domain.BoardPayload
	tags    map[string]struct{}
	stale   bool
}

// MemoryStore is the in-process Store implementation backing a single client.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*entry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]*entry)}
}

func (s *MemoryStore) Read(key string) (domain.BoardPayload, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		return domain.BoardPayload{}, false
	}
	return e.payload.Clone(), true
}

func (s *MemoryStore) Put(key string, payload domain.BoardPayload, tags ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tagSet := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		tagSet[t] = struct{}{}
	}
	s.entries[key] = &entry{payload: payload.Clone(), tags: tagSet}
}

func (s *MemoryStore) Write(key string, update func(domain.BoardPayload) domain.BoardPayload, revalidate bool) {
	if update == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		return
	}
	e.payload = update(e.payload.Clone())
	if revalidate {
		e.stale = true
	}
}

func (s *MemoryStore) Invalidate(match func(key string) bool) {
	if match == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, e := range s.entries {
		if match(key) {
			e.stale = true
		}
	}
}

func (s *MemoryStore) InvalidateTags(tags ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		for _, t := range tags {
			if _, ok := e.tags[t]; ok {
				e.stale = true
				break
			}
		}
	}
}

func (s *MemoryStore) Stale(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	return ok && e.stale
}

func (s *MemoryStore) Keys(match func(key string) bool) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.entries))
	for key := range s.entries {
		if match == nil || match(key) {
			keys = append(keys, key)
		}
	}
	return keys
}
