package session

import (
	"sync"

	"pairchat/internal/store"
)

// Scope owns the unsubscribe handles acquired for one subscription
// lifetime (session, roster, active thread). Closing a scope releases
// every handle exactly once; callbacks and deferred writes check Active
// before touching state, which is what prevents a just-superseded thread
// from mutating roster state it no longer owns.
type Scope struct {
	mu      sync.Mutex
	closed  bool
	handles []store.UnsubscribeFunc
}

func NewScope() *Scope {
	return &Scope{}
}

// Add registers a handle with the scope. If the scope is already closed
// the handle is released immediately.
func (s *Scope) Add(unsub store.UnsubscribeFunc) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		unsub()
		return
	}
	s.handles = append(s.handles, unsub)
	s.mu.Unlock()
}

// Close releases all handles. Subsequent calls are no-ops.
func (s *Scope) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	handles := s.handles
	s.handles = nil
	s.mu.Unlock()

	for _, unsub := range handles {
		unsub()
	}
}

// Active reports whether the scope is still open.
func (s *Scope) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed
}
