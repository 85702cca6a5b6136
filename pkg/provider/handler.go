package provider

import (
	"errors"
	"sync"

	"github.com/polygate-dev/polygate/pkg/abort"
)

// ErrAborted is returned by Handler.Text once the shared abort signal is
// set. Client read loops treat it as a stop condition, not a failure.
var ErrAborted = errors.New("stream aborted")

// Event is one normalized streaming unit: either a text delta or the
// terminal done marker. Done is terminal; no event follows it on the
// same stream.
type Event struct {
	Text string
	Done bool
}

// Handler is the canonical event sink of the streaming normalizer. Vendor
// clients push parsed deltas into it; the gateway's relay consumes the
// resulting event sequence from Events. A Handler belongs to exactly one
// stream and guarantees that at most one Done event is emitted and that
// nothing follows it.
type Handler struct {
	abort  *abort.Signal
	events chan Event

	mu   sync.Mutex
	done bool
}

// NewHandler creates a Handler bound to the shared abort signal.
func NewHandler(sig *abort.Signal) *Handler {
	return &Handler{
		abort:  sig,
		events: make(chan Event, 16),
	}
}

// Abort exposes the shared abort signal so client read loops can poll it
// between chunks.
func (h *Handler) Abort() *abort.Signal {
	return h.abort
}

// Events returns the canonical event sequence. The channel is closed after
// the Done event (or on abort) and is safe to range over.
func (h *Handler) Events() <-chan Event {
	return h.events
}

// Text emits one text delta. Empty deltas (vendor keep-alives) are dropped.
// It returns ErrAborted once the abort signal is set, and an error if called
// after Done.
func (h *Handler) Text(text string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.done {
		return errors.New("text event after done")
	}
	if h.abort.Aborted() {
		return ErrAborted
	}
	if text == "" {
		return nil
	}
	select {
	case h.events <- Event{Text: text}:
		return nil
	case <-h.abort.Done():
		return ErrAborted
	}
}

// Done emits the terminal event and closes the event channel. It is
// idempotent; only the first call has any effect.
func (h *Handler) Done() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.done {
		return
	}
	h.done = true
	if !h.abort.Aborted() {
		select {
		case h.events <- Event{Done: true}:
		case <-h.abort.Done():
		}
	}
	close(h.events)
}
