package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/polygate-dev/polygate/pkg/debug"
	"github.com/polygate-dev/polygate/pkg/provider"
	"github.com/polygate-dev/polygate/pkg/provider/sse"
)

// doneSentinel terminates an OpenAI-style SSE stream.
const doneSentinel = "[DONE]"

// RequestBody is the chat-completions request schema. Exported so the
// azure and compat clients can reuse the codec against their endpoints.
type RequestBody struct {
	Model       string             `json:"model,omitempty"`
	Messages    []provider.Message `json:"messages"`
	Temperature *float64           `json:"temperature,omitempty"`
	TopP        *float64           `json:"top_p,omitempty"`
	MaxTokens   *int               `json:"max_tokens,omitempty"`
	Stream      bool               `json:"stream,omitempty"`
}

// BuildRequestBody maps the canonical request onto the wire schema,
// applying the bound model's output token cap.
func BuildRequestBody(model provider.Model, req provider.Request, stream bool) RequestBody {
	return RequestBody{
		Model:       model.Name,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		MaxTokens:   model.MaxOutputTokens,
		Stream:      stream,
	}
}

type responseBody struct {
	ID      string `json:"id"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

type chunkBody struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
}

// Complete performs the blocking round trip against an OpenAI-style
// chat-completions endpoint and extracts the answer text and usage.
func Complete(ctx context.Context, hc *http.Client, url string, header http.Header, body RequestBody, client string) (string, provider.Details, error) {
	resp, err := provider.PostJSON(ctx, hc, url, header, body)
	if err != nil {
		return "", provider.Details{}, fmt.Errorf("%s: %w", client, err)
	}
	defer resp.Body.Close()

	if !provider.IsSuccess(resp) {
		return "", provider.Details{}, provider.ReadAPIError(client, resp)
	}

	var out responseBody
	if err := provider.DecodeJSON(resp, &out); err != nil {
		return "", provider.Details{}, fmt.Errorf("%s: %w", client, err)
	}
	if len(out.Choices) == 0 {
		return "", provider.Details{}, fmt.Errorf("%s: response carried no choices", client)
	}

	details := provider.Details{
		ID:           out.ID,
		InputTokens:  out.Usage.PromptTokens,
		OutputTokens: out.Usage.CompletionTokens,
	}
	return out.Choices[0].Message.Content, details, nil
}

// Stream performs the streaming call and feeds each delta through the
// normalizer. A non-2xx status surfaces as an error before any event is
// emitted, so the gateway's first-event handshake can report it cleanly.
func Stream(ctx context.Context, hc *http.Client, url string, header http.Header, body RequestBody, h *provider.Handler, client string) error {
	header = header.Clone()
	if header == nil {
		header = make(http.Header)
	}
	header.Set("Accept", "text/event-stream")

	resp, err := provider.PostJSON(ctx, hc, url, header, body)
	if err != nil {
		return fmt.Errorf("%s: %w", client, err)
	}
	defer resp.Body.Close()

	if !provider.IsSuccess(resp) {
		return provider.ReadAPIError(client, resp)
	}

	err = sse.Read(h.Abort(), resp.Body, func(ev sse.Event) error {
		if ev.Data == doneSentinel {
			h.Done()
			return nil
		}

		var chunk chunkBody
		if err := json.Unmarshal([]byte(ev.Data), &chunk); err != nil {
			slog.Warn("malformed stream chunk",
				"client", client,
				"error", err.Error(),
				"data", debug.Truncate(ev.Data, 200),
			)
			return fmt.Errorf("malformed stream chunk: %w", err)
		}
		if len(chunk.Choices) == 0 {
			return nil
		}
		return h.Text(chunk.Choices[0].Delta.Content)
	})
	if err != nil {
		if errors.Is(err, provider.ErrAborted) {
			return nil
		}
		return fmt.Errorf("%s: %w", client, err)
	}

	h.Done()
	return nil
}
