// Package notify provides broadcast notification primitives.
package notify

import "sync"

// Signal is a broadcast notification mechanism. Callers wait on C(), and a
// Notify() call wakes all current waiters by closing the channel and
// swapping in a fresh one. Used to tell index consumers that new lines
// arrived without delivering the lines themselves.
type Signal struct {
	mu sync.Mutex
	ch chan struct{}
}

// NewSignal creates a ready-to-use Signal.
func NewSignal() *Signal { return &Signal{ch: make(chan struct{})} }

// Notify wakes all current waiters.
func (s *Signal) Notify() {
	s.mu.Lock()
	close(s.ch)
	s.ch = make(chan struct{})
	s.mu.Unlock()
}

// C returns a channel that is closed on the next Notify() call. Callers
// must re-call C() after each wakeup to arm the next wait.
func (s *Signal) C() <-chan struct{} {
	s.mu.Lock()
	ch := s.ch
	s.mu.Unlock()
	return ch
}
