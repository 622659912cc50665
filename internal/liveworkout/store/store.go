// Package store owns the in-memory state of the one active session of a
// user. Every mutation replaces the whole session value; listeners only ever
// see immutable snapshots, never shared substructures.
package store

import (
	"sync"

	"github.com/irontracks/liveworkout/internal/liveworkout/session"
)

// Listener receives the snapshot produced by a mutation. A nil snapshot
// means the session was cleared. Listeners must not block; persistence
// listeners debounce internally.
type Listener func(snapshot *session.Session)

type Store struct {
	mu        sync.RWMutex
	current   *session.Session
	listeners []Listener
}

func New() *Store {
	return &Store{}
}

// Subscribe registers a listener for every subsequent snapshot.
func (s *Store) Subscribe(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

// Snapshot returns a deep copy of the current session, or nil.
func (s *Store) Snapshot() *session.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Clone()
}

// Active reports whether a session is currently held.
func (s *Store) Active() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current != nil
}

// Mutate applies fn to a copy of the current session and installs the
// result as the new value. fn receives nil when no session is active and may
// return nil to clear. All listeners are called with their own snapshot.
func (s *Store) Mutate(fn func(cur *session.Session) *session.Session) {
	s.mu.Lock()
	next := fn(s.current.Clone())
	s.current = next
	listeners := append([]Listener(nil), s.listeners...)
	s.mu.Unlock()

	for _, l := range listeners {
		l(next.Clone())
	}
}

// Replace installs the given session (or nil) as the new value. Used by
// cross-device reconciliation, which adopts whole snapshots.
func (s *Store) Replace(next *session.Session) {
	s.Mutate(func(*session.Session) *session.Session {
		return next.Clone()
	})
}

// Clear drops the session, notifying listeners with nil.
func (s *Store) Clear() {
	s.Replace(nil)
}
