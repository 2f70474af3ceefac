// Package issuerstore holds the set of issuer credentials
// DispatcherRegistry refreshes periodically from SettingsStore, with
// copy-on-read semantics so a refresh in progress never mutates a
// slice a BatchSender is mid-iteration over (spec.md §5 "Issuer set:
// refresh task mutates, copy-on-read").
package issuerstore

import (
	"sync"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/ethereum-optimism/distributor-dispatch/dispatch"
)

// Store holds the current issuer credential set behind a defensive-copy
// read path. The refresh task and Submit callers run on different
// goroutines, so the held set pointer itself is guarded by mu; the
// thread-unsafe set variant is fine underneath since every access to
// one particular set value happens either before it's published via
// Replace or via a Clone taken under the lock.
type Store struct {
	mu  sync.Mutex
	set mapset.Set[dispatch.IssuerCredential]
}

// New builds an empty Store.
func New() *Store {
	return &Store{set: mapset.NewThreadUnsafeSet[dispatch.IssuerCredential]()}
}

// Replace swaps the held set for a fresh snapshot built from issuers.
// Callers pass the full set read from SettingsStore on each refresh;
// Store does not merge or diff.
func (s *Store) Replace(issuers []dispatch.IssuerCredential) {
	next := mapset.NewThreadUnsafeSet(issuers...)
	s.mu.Lock()
	s.set = next
	s.mu.Unlock()
}

// Snapshot returns a defensive clone of the current issuer set as a
// slice, safe for a caller to range over while a concurrent Replace
// runs.
func (s *Store) Snapshot() []dispatch.IssuerCredential {
	s.mu.Lock()
	set := s.set
	s.mu.Unlock()
	if set == nil {
		return nil
	}
	return set.Clone().ToSlice()
}
