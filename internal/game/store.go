package game

import (
	"slices"
	"sync"
)

// StateStore owns the authoritative in-memory session. Every mutation swaps
// in a new *State under the lock; readers get deep copies.
type StateStore struct {
	mu       sync.RWMutex
	state    *State
	onChange []func(*State)
}

// NewStateStore creates a store holding st (which may be nil).
func NewStateStore(st *State) *StateStore {
	return &StateStore{state: st}
}

// OnChange registers fn to be called with a snapshot after every mutation.
func (s *StateStore) OnChange(fn func(*State)) {
	s.mu.Lock()
	s.onChange = append(s.onChange, fn)
	s.mu.Unlock()
}

// Snapshot returns a deep copy of the current state, or nil.
func (s *StateStore) Snapshot() *State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone()
}

// Commit applies a turn result through the reducer.
func (s *StateStore) Commit(r TurnResult) *State {
	return s.swap(false, func(cur *State) *State { return Apply(cur, r) })
}

// Update applies fn to a copy of the current state and stores the copy.
// It is a no-op when no session is loaded.
func (s *StateStore) Update(fn func(*State)) *State {
	return s.swap(false, func(cur *State) *State {
		next := cur.Clone()
		fn(next)
		return next
	})
}

// SetMessageText rewrites the text of the message with id and reports
// whether it was found. It is used for streamed replies, so listeners are
// not notified; the commit that ends the turn notifies them.
func (s *StateStore) SetMessageText(id, text string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == nil {
		return false
	}
	i := s.state.FindMessage(id)
	if i < 0 {
		return false
	}
	next := *s.state
	next.History = slices.Clone(s.state.History)
	next.History[i].Text = text
	s.state = &next
	return true
}

// Replace installs st as the current session.
func (s *StateStore) Replace(st *State) {
	s.swap(true, func(*State) *State { return st })
}

// Reset discards the in-memory session and returns what was held.
func (s *StateStore) Reset() *State {
	s.mu.Lock()
	prev := s.state
	s.state = nil
	s.mu.Unlock()
	return prev
}

func (s *StateStore) swap(allowEmpty bool, fn func(*State) *State) *State {
	s.mu.Lock()
	if s.state == nil && !allowEmpty {
		s.mu.Unlock()
		return nil
	}
	s.state = fn(s.state)
	snap := s.state.Clone()
	hooks := slices.Clone(s.onChange)
	s.mu.Unlock()

	if snap == nil {
		return nil
	}
	for _, h := range hooks {
		h(snap)
	}
	return snap
}
