// Package connectivity reports whether the network is reachable.
//
// Components that issue network requests consult a Signal before doing so and
// fail fast with ErrOffline when it reports the network as down. The signal is
// advisory: being online does not guarantee a request will succeed.
package connectivity

import (
	"errors"
	"sync"
	"sync/atomic"
)

// ErrOffline is returned when an operation was refused because the network
// is known to be down. No network request is attempted in that case.
var ErrOffline = errors.New("connectivity: offline")

// Signal reports the current connectivity state.
// Implementations must be safe for concurrent use.
type Signal interface {
	Online() bool
}

// Always is a Signal that is always online.
type Always struct{}

// Online implements Signal.
func (Always) Online() bool { return true }

// Static is a Signal whose state is set explicitly.
// The zero value reports offline; use NewStatic to choose the initial state.
type Static struct {
	online atomic.Bool

	mu        sync.Mutex
	listeners []func(bool)
}

// NewStatic returns a Static signal with the given initial state.
func NewStatic(online bool) *Static {
	s := &Static{}
	s.online.Store(online)
	return s
}

// Online implements Signal.
func (s *Static) Online() bool {
	return s.online.Load()
}

// Set updates the state and notifies listeners when it changed.
func (s *Static) Set(online bool) {
	if s.online.Swap(online) == online {
		return
	}
	s.mu.Lock()
	listeners := append([]func(bool){}, s.listeners...)
	s.mu.Unlock()
	for _, fn := range listeners {
		fn(online)
	}
}

// OnChange registers fn to be called after every state change.
func (s *Static) OnChange(fn func(online bool)) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}
