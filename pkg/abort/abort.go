// Package abort provides a cooperative cancellation flag shared between the
// gateway's HTTP layer and in-flight provider calls. Unlike context.Context,
// a Signal can be set from either side of a streaming relay and observed both
// by polling and by channel select.
package abort

import "sync"

// Signal is a set-once cancellation flag. The zero value is not usable;
// create one with New. A Signal is shared by reference between the HTTP
// handler and the provider call driving a request, and once set it never
// resets.
type Signal struct {
	once sync.Once
	ch   chan struct{}
}

// New creates an unset Signal.
func New() *Signal {
	return &Signal{ch: make(chan struct{})}
}

// Set marks the signal as aborted. It is safe to call from multiple
// goroutines; only the first call has any effect.
func (s *Signal) Set() {
	s.once.Do(func() { close(s.ch) })
}

// Aborted reports whether the signal has been set.
func (s *Signal) Aborted() bool {
	select {
	case <-s.ch:
		return true
	default:
		return false
	}
}

// Done returns a channel that is closed once the signal is set,
// for use in select statements.
func (s *Signal) Done() <-chan struct{} {
	return s.ch
}
