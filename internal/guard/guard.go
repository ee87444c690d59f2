// Package guard keeps the set of identities allowed to run administrative operations.
package guard

import (
	"sort"
	"sync"

	"github.com/vadiminshakov/tbills/internal/domain"
)

// Set is a concurrency-safe set of authorized identities.
type Set struct {
	mu         sync.RWMutex
	identities map[string]struct{}
}

// New returns a set seeded with identities; anonymous entries are ignored.
func New(identities ...string) *Set {
	s := &Set{identities: make(map[string]struct{})}
	for _, id := range identities {
		s.Add(id)
	}

	return s
}

// Add authorizes identity. It reports false when identity is anonymous or already present.
func (s *Set) Add(identity string) bool {
	if domain.IsAnonymous(identity) {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.identities[identity]; ok {
		return false
	}
	s.identities[identity] = struct{}{}

	return true
}

// Remove revokes identity. It reports false when identity was not present.
func (s *Set) Remove(identity string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.identities[identity]; !ok {
		return false
	}
	delete(s.identities, identity)

	return true
}

// Contains reports whether identity is authorized.
func (s *Set) Contains(identity string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.identities[identity]
	return ok
}

// List returns the authorized identities in ascending order.
func (s *Set) List() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.identities))
	for id := range s.identities {
		out = append(out, id)
	}
	sort.Strings(out)

	return out
}

// Replace swaps the whole set, used when restoring a snapshot.
func (s *Set) Replace(identities []string) {
	next := make(map[string]struct{}, len(identities))
	for _, id := range identities {
		if !domain.IsAnonymous(id) {
			next[id] = struct{}{}
		}
	}

	s.mu.Lock()
	s.identities = next
	s.mu.Unlock()
}

// Len returns the number of authorized identities.
func (s *Set) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.identities)
}

// AssertAdmin allows only non-anonymous callers present in the set.
func (s *Set) AssertAdmin(caller string) error {
	if domain.IsAnonymous(caller) {
		return domain.ErrAnonymousCaller
	}
	if !s.Contains(caller) {
		return domain.ErrUnauthorized.Withf("caller %s is not authorized", caller)
	}

	return nil
}

// AssertUser allows any non-anonymous caller.
func AssertUser(caller string) error {
	if domain.IsAnonymous(caller) {
		return domain.ErrAnonymousCaller
	}

	return nil
}
