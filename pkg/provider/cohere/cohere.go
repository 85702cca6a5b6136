// Package cohere implements the Cohere chat client. Cohere splits the
// conversation into the latest user message plus an explicit history and
// streams JSON lines tagged with an event_type instead of SSE frames.
package cohere

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/polygate-dev/polygate/pkg/debug"
	"github.com/polygate-dev/polygate/pkg/provider"
	"github.com/polygate-dev/polygate/pkg/provider/sse"
)

// Kind is the configuration type tag selecting this client.
const Kind = "cohere"

const defaultAPIBase = "https://api.cohere.ai/v1"

// Client calls the Cohere chat API.
type Client struct {
	name    string
	model   provider.Model
	apiBase string
	apiKey  string
	hc      *http.Client
}

// New validates the configuration and builds a Client bound to model.
func New(cfg provider.ClientConfig, model provider.Model) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, provider.MissingFieldError(cfg.ClientName(), "api_key")
	}
	apiBase := cfg.APIBase
	if apiBase == "" {
		apiBase = defaultAPIBase
	}
	return &Client{
		name:    cfg.ClientName(),
		model:   model,
		apiBase: strings.TrimSuffix(apiBase, "/"),
		apiKey:  cfg.APIKey,
		hc:      provider.NewHTTPClient(),
	}, nil
}

func (c *Client) Name() string { return c.name }

func (c *Client) Model() *provider.Model { return &c.model }

type historyEntry struct {
	Role    string `json:"role"`
	Message string `json:"message"`
}

type requestBody struct {
	Model       string         `json:"model"`
	Message     string         `json:"message"`
	ChatHistory []historyEntry `json:"chat_history,omitempty"`
	Preamble    string         `json:"preamble,omitempty"`
	Temperature *float64       `json:"temperature,omitempty"`
	P           *float64       `json:"p,omitempty"`
	MaxTokens   *int           `json:"max_tokens,omitempty"`
	Stream      bool           `json:"stream,omitempty"`
}

// buildRequestBody maps the canonical messages onto Cohere's shape: the
// final user message stands alone, earlier turns become chat_history
// with USER/CHATBOT roles, and system messages collapse into preamble.
func (c *Client) buildRequestBody(req provider.Request, stream bool) (requestBody, error) {
	body := requestBody{
		Model:       c.model.Name,
		Temperature: req.Temperature,
		P:           req.TopP,
		MaxTokens:   c.model.MaxOutputTokens,
		Stream:      stream,
	}

	var preamble []string
	var turns []historyEntry
	for _, m := range req.Messages {
		switch m.Role {
		case "system":
			preamble = append(preamble, m.Content)
		case "assistant":
			turns = append(turns, historyEntry{Role: "CHATBOT", Message: m.Content})
		default:
			turns = append(turns, historyEntry{Role: "USER", Message: m.Content})
		}
	}
	body.Preamble = strings.Join(preamble, "\n\n")

	if len(turns) == 0 {
		return requestBody{}, errors.New("request carries no user message")
	}
	last := turns[len(turns)-1]
	if last.Role != "USER" {
		return requestBody{}, errors.New("last message must be a user message")
	}
	body.Message = last.Message
	body.ChatHistory = turns[:len(turns)-1]
	return body, nil
}

type responseBody struct {
	Text         string `json:"text"`
	GenerationID string `json:"generation_id"`
	Meta         struct {
		BilledUnits struct {
			InputTokens  int `json:"input_tokens"`
			OutputTokens int `json:"output_tokens"`
		} `json:"billed_units"`
	} `json:"meta"`
}

func (c *Client) Send(ctx context.Context, req provider.Request) (string, provider.Details, error) {
	body, err := c.buildRequestBody(req, false)
	if err != nil {
		return "", provider.Details{}, fmt.Errorf("%s: %w", c.name, err)
	}

	resp, err := provider.PostJSON(ctx, c.hc, c.url(), c.header(), body)
	if err != nil {
		return "", provider.Details{}, fmt.Errorf("%s: %w", c.name, err)
	}
	defer resp.Body.Close()

	if !provider.IsSuccess(resp) {
		return "", provider.Details{}, provider.ReadAPIError(c.name, resp)
	}

	var out responseBody
	if err := provider.DecodeJSON(resp, &out); err != nil {
		return "", provider.Details{}, fmt.Errorf("%s: %w", c.name, err)
	}

	details := provider.Details{
		ID:           out.GenerationID,
		InputTokens:  out.Meta.BilledUnits.InputTokens,
		OutputTokens: out.Meta.BilledUnits.OutputTokens,
	}
	return out.Text, details, nil
}

type streamChunk struct {
	EventType string `json:"event_type"`
	Text      string `json:"text"`
}

func (c *Client) SendStreaming(ctx context.Context, req provider.Request, h *provider.Handler) error {
	body, err := c.buildRequestBody(req, true)
	if err != nil {
		return fmt.Errorf("%s: %w", c.name, err)
	}

	resp, err := provider.PostJSON(ctx, provider.StreamHTTPClient(c.hc), c.url(), c.header(), body)
	if err != nil {
		return fmt.Errorf("%s: %w", c.name, err)
	}
	defer resp.Body.Close()

	if !provider.IsSuccess(resp) {
		return provider.ReadAPIError(c.name, resp)
	}

	err = sse.ReadLines(h.Abort(), resp.Body, func(line string) error {
		var chunk streamChunk
		if err := json.Unmarshal([]byte(line), &chunk); err != nil {
			slog.Warn("malformed stream chunk",
				"client", c.name,
				"error", err.Error(),
				"data", debug.Truncate(line, 200),
			)
			return fmt.Errorf("malformed stream chunk: %w", err)
		}
		switch chunk.EventType {
		case "text-generation":
			return h.Text(chunk.Text)
		case "stream-end":
			h.Done()
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, provider.ErrAborted) {
			return nil
		}
		return fmt.Errorf("%s: %w", c.name, err)
	}

	h.Done()
	return nil
}

func (c *Client) url() string {
	return c.apiBase + "/chat"
}

func (c *Client) header() http.Header {
	header := make(http.Header)
	header.Set("Authorization", "Bearer "+c.apiKey)
	return header
}
