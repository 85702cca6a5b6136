package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/polygate-dev/polygate/pkg/api"
)

// frameWriter serializes the OpenAI SSE chunk sequence onto the wire:
// one role-priming frame, one frame per text delta, a finish frame, and
// the literal [DONE] sentinel.
type frameWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher

	id      string
	model   string
	created int64
}

func newFrameWriter(w http.ResponseWriter, id, model string, created int64) *frameWriter {
	flusher, _ := w.(http.Flusher)
	return &frameWriter{w: w, flusher: flusher, id: id, model: model, created: created}
}

// begin sends the streaming response headers. Status is withheld until
// the first upstream event, so this is only called once the provider has
// produced something.
func (fw *frameWriter) begin() {
	h := fw.w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	fw.w.WriteHeader(http.StatusOK)
	fw.flush()
}

func (fw *frameWriter) chunk(choice api.ChunkChoice) error {
	payload, err := json.Marshal(api.ChatCompletionChunk{
		ID:      fw.id,
		Object:  api.ObjectChatCompletionChunk,
		Created: fw.created,
		Model:   fw.model,
		Choices: []api.ChunkChoice{choice},
	})
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(fw.w, "data: %s\n\n", payload); err != nil {
		return err
	}
	fw.flush()
	return nil
}

// role primes the stream with the assistant role and empty content.
func (fw *frameWriter) role() error {
	empty := ""
	return fw.chunk(api.ChunkChoice{
		Delta: api.ChunkDelta{Role: api.RoleAssistant, Content: &empty},
	})
}

// text emits one content delta.
func (fw *frameWriter) text(delta string) error {
	return fw.chunk(api.ChunkChoice{
		Delta: api.ChunkDelta{Content: &delta},
	})
}

// finish emits the finish_reason frame followed by the [DONE] sentinel.
func (fw *frameWriter) finish() error {
	reason := api.FinishReasonStop
	if err := fw.chunk(api.ChunkChoice{FinishReason: &reason}); err != nil {
		return err
	}
	if _, err := fmt.Fprint(fw.w, "data: [DONE]\n\n"); err != nil {
		return err
	}
	fw.flush()
	return nil
}

func (fw *frameWriter) flush() {
	if fw.flusher != nil {
		fw.flusher.Flush()
	}
}
