// Package sse decodes the incremental byte framings used by vendor
// streaming APIs: server-sent events (blank-line terminated event/data
// blocks) and JSON lines. It deals only with transport framing; parsing
// the chunk payloads is the calling client's job.
package sse

import (
	"bufio"
	"io"
	"strings"

	"github.com/polygate-dev/polygate/pkg/abort"
)

// Event is one complete server-sent event. Name is empty for bare
// "data:" streams; Data joins multi-line data fields with newlines.
type Event struct {
	Name string
	Data string
}

// maxChunkSize bounds a single SSE line or JSON line. Vendor deltas are
// small, but buffered final chunks with usage payloads can be large.
const maxChunkSize = 1 << 20

// Read consumes an SSE stream and invokes fn for each complete event.
// Comment lines (leading ':') and fields other than event/data are
// ignored; empty events (keep-alives) are not dispatched.
//
// Read stops reading and returns nil as soon as sig is set — cooperative
// cancellation is an expected termination, not an error. An error from fn
// stops reading and is returned as-is; a transport error from the
// underlying reader is returned so the caller can surface it.
func Read(sig *abort.Signal, body io.Reader, fn func(Event) error) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxChunkSize)

	var ev Event
	var dataLines []string

	dispatch := func() error {
		if len(dataLines) == 0 && ev.Name == "" {
			return nil
		}
		ev.Data = strings.Join(dataLines, "\n")
		err := fn(ev)
		ev = Event{}
		dataLines = nil
		return err
	}

	for scanner.Scan() {
		if sig.Aborted() {
			return nil
		}

		line := scanner.Text()

		// Blank line terminates the current event.
		if line == "" {
			if err := dispatch(); err != nil {
				return err
			}
			continue
		}

		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			ev.Name = value
		case "data":
			dataLines = append(dataLines, value)
		}
	}

	if err := scanner.Err(); err != nil {
		if sig.Aborted() {
			return nil
		}
		return err
	}

	// Body closed without a trailing blank line: flush the final event.
	return dispatch()
}

// ReadLines consumes a JSON-lines stream and invokes fn for each non-empty
// line. Cancellation and error semantics match Read.
func ReadLines(sig *abort.Signal, body io.Reader, fn func(line string) error) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxChunkSize)

	for scanner.Scan() {
		if sig.Aborted() {
			return nil
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := fn(line); err != nil {
			return err
		}
	}

	if err := scanner.Err(); err != nil && !sig.Aborted() {
		return err
	}
	return nil
}
