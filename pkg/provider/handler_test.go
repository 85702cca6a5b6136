package provider

import (
	"errors"
	"testing"
	"time"

	"github.com/polygate-dev/polygate/pkg/abort"
)

func collect(t *testing.T, h *Handler) []Event {
	t.Helper()
	var events []Event
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-h.Events():
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-timeout:
			t.Fatal("timed out draining handler events")
		}
	}
}

func TestHandlerOrderPreserved(t *testing.T) {
	h := NewHandler(abort.New())
	for _, s := range []string{"he", "ll", "o"} {
		if err := h.Text(s); err != nil {
			t.Fatalf("Text(%q) = %v", s, err)
		}
	}
	h.Done()

	events := collect(t, h)
	if len(events) != 4 {
		t.Fatalf("got %d events, want 4", len(events))
	}
	var joined string
	for _, ev := range events[:3] {
		joined += ev.Text
	}
	if joined != "hello" {
		t.Errorf("concatenated deltas = %q, want %q", joined, "hello")
	}
	if !events[3].Done {
		t.Error("last event is not Done")
	}
}

func TestHandlerExactlyOneDone(t *testing.T) {
	h := NewHandler(abort.New())
	_ = h.Text("x")
	h.Done()
	h.Done() // idempotent

	events := collect(t, h)
	var dones int
	for _, ev := range events {
		if ev.Done {
			dones++
		}
	}
	if dones != 1 {
		t.Errorf("got %d Done events, want exactly 1", dones)
	}
	if !events[len(events)-1].Done {
		t.Error("Done is not the last event")
	}
}

func TestHandlerRejectsTextAfterDone(t *testing.T) {
	h := NewHandler(abort.New())
	h.Done()
	if err := h.Text("late"); err == nil {
		t.Error("Text after Done should fail")
	}
}

func TestHandlerDropsEmptyDeltas(t *testing.T) {
	h := NewHandler(abort.New())
	if err := h.Text(""); err != nil {
		t.Fatalf("empty delta: %v", err)
	}
	h.Done()

	events := collect(t, h)
	if len(events) != 1 || !events[0].Done {
		t.Errorf("keep-alive chunk leaked an event: %+v", events)
	}
}

func TestHandlerAbortStopsEmission(t *testing.T) {
	sig := abort.New()
	h := NewHandler(sig)

	if err := h.Text("first"); err != nil {
		t.Fatalf("Text before abort: %v", err)
	}

	sig.Set()

	if err := h.Text("after-abort"); !errors.Is(err, ErrAborted) {
		t.Errorf("Text after abort = %v, want ErrAborted", err)
	}

	// Done after abort must not emit an event, only close the channel.
	h.Done()
	ev, ok := <-h.Events()
	if !ok {
		t.Fatal("expected the pre-abort event to still be buffered")
	}
	if ev.Text != "first" {
		t.Errorf("buffered event = %+v, want the pre-abort delta", ev)
	}
	if ev2, ok := <-h.Events(); ok {
		t.Errorf("event emitted after abort: %+v", ev2)
	}
}
