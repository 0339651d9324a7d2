package recorder

import (
	"sort"
	"sync"
)

// Registry tracks the sessions that currently own a recording target
type Registry struct {
	sessions sync.Map // target -> *Session
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{}
}

// acquire claims target for s. It fails with ErrTargetBusy when another
// session holds it.
func (r *Registry) acquire(target string, s *Session) error {
	if actual, loaded := r.sessions.LoadOrStore(target, s); loaded && actual.(*Session) != s {
		return ErrTargetBusy
	}
	return nil
}

func (r *Registry) release(target string, s *Session) {
	r.sessions.CompareAndDelete(target, s)
}

// Lookup returns the session recording into target
func (r *Registry) Lookup(target string) (*Session, bool) {
	v, ok := r.sessions.Load(target)
	if !ok {
		return nil, false
	}
	return v.(*Session), true
}

// Sessions returns a snapshot of the registered sessions ordered by target
func (r *Registry) Sessions() []*Session {
	var sessions []*Session
	r.sessions.Range(func(key, value interface{}) bool {
		sessions = append(sessions, value.(*Session))
		return true
	})
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].Target() < sessions[j].Target()
	})
	return sessions
}
