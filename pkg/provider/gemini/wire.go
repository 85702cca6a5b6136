package gemini

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

// Part is one text fragment of a content turn.
type Part struct {
	Text string `json:"text"`
}

// Content is one conversation turn in Gemini's schema. Roles are "user"
// and "model"; system guidance travels separately as systemInstruction.
type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts"`
}

type generationConfig struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	TopP            *float64 `json:"topP,omitempty"`
	MaxOutputTokens *int     `json:"maxOutputTokens,omitempty"`
}

// RequestBody is the generateContent request schema, shared with the
// vertexai client which speaks the same protocol on a different host.
type RequestBody struct {
	Contents          []Content         `json:"contents"`
	SystemInstruction *Content          `json:"systemInstruction,omitempty"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
}

// BuildRequestBody maps the canonical request onto the generateContent
// schema. System messages collapse into a single systemInstruction and
// assistant turns take the "model" role.
func BuildRequestBody(model provider.Model, req provider.Request) RequestBody {
	var body RequestBody
	var system []Part
	for _, m := range req.Messages {
		switch m.Role {
		case "system":
			system = append(system, Part{Text: m.Content})
		case "assistant":
			body.Contents = append(body.Contents, Content{Role: "model", Parts: []Part{{Text: m.Content}}})
		default:
			body.Contents = append(body.Contents, Content{Role: "user", Parts: []Part{{Text: m.Content}}})
		}
	}
	if len(system) > 0 {
		body.SystemInstruction = &Content{Parts: system}
	}
	if req.Temperature != nil || req.TopP != nil || model.MaxOutputTokens != nil {
		body.GenerationConfig = &generationConfig{
			Temperature:     req.Temperature,
			TopP:            req.TopP,
			MaxOutputTokens: model.MaxOutputTokens,
		}
	}
	return body
}

type responseBody struct {
	Candidates []struct {
		Content struct {
			Parts []Part `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
}

func (b responseBody) text() string {
	var out string
	if len(b.Candidates) > 0 {
		for _, p := range b.Candidates[0].Content.Parts {
			out += p.Text
		}
	}
	return out
}

// Complete performs the blocking generateContent round trip.
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
	if len(out.Candidates) == 0 {
		return "", provider.Details{}, fmt.Errorf("%s: response carried no candidates", client)
	}

	details := provider.Details{
		InputTokens:  out.UsageMetadata.PromptTokenCount,
		OutputTokens: out.UsageMetadata.CandidatesTokenCount,
	}
	return out.text(), details, nil
}

// Stream performs the streamGenerateContent?alt=sse call. Each data line
// is a full responseBody with the incremental candidate text; the stream
// has no explicit sentinel and ends when the body closes.
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
		var chunk responseBody
		if err := json.Unmarshal([]byte(ev.Data), &chunk); err != nil {
			slog.Warn("malformed stream chunk",
				"client", client,
				"error", err.Error(),
				"data", debug.Truncate(ev.Data, 200),
			)
			return fmt.Errorf("malformed stream chunk: %w", err)
		}
		return h.Text(chunk.text())
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
