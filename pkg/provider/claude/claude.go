// Package claude implements the Anthropic Messages API client.
package claude

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
const Kind = "claude"

const (
	defaultAPIBase = "https://api.anthropic.com/v1"
	apiVersion     = "2023-06-01"

	// defaultMaxTokens fills the required max_tokens field when neither
	// the model configuration nor the request carries a cap.
	defaultMaxTokens = 4096
)

// Client calls the Anthropic Messages API.
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

type requestBody struct {
	Model       string             `json:"model"`
	System      string             `json:"system,omitempty"`
	Messages    []provider.Message `json:"messages"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature *float64           `json:"temperature,omitempty"`
	TopP        *float64           `json:"top_p,omitempty"`
	Stream      bool               `json:"stream,omitempty"`
}

// buildRequestBody lifts system messages into the top-level system field
// and fills the mandatory max_tokens.
func (c *Client) buildRequestBody(req provider.Request, stream bool) (requestBody, error) {
	if req.Temperature != nil && (*req.Temperature < 0 || *req.Temperature > 1) {
		return requestBody{}, fmt.Errorf("temperature %v out of range [0, 1]", *req.Temperature)
	}

	body := requestBody{
		Model:       c.model.Name,
		MaxTokens:   defaultMaxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		Stream:      stream,
	}
	if c.model.MaxOutputTokens != nil {
		body.MaxTokens = *c.model.MaxOutputTokens
	}

	var system []string
	for _, m := range req.Messages {
		if m.Role == "system" {
			system = append(system, m.Content)
			continue
		}
		body.Messages = append(body.Messages, m)
	}
	body.System = strings.Join(system, "\n\n")
	return body, nil
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type responseBody struct {
	ID      string         `json:"id"`
	Content []contentBlock `json:"content"`
	Usage   usage          `json:"usage"`
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

	var text string
	for _, block := range out.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	details := provider.Details{
		ID:           out.ID,
		InputTokens:  out.Usage.InputTokens,
		OutputTokens: out.Usage.OutputTokens,
	}
	return text, details, nil
}

// streamEvent covers the named SSE events the Messages API emits. Only
// content_block_delta carries answer text; message_stop terminates.
type streamEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) SendStreaming(ctx context.Context, req provider.Request, h *provider.Handler) error {
	body, err := c.buildRequestBody(req, true)
	if err != nil {
		return fmt.Errorf("%s: %w", c.name, err)
	}

	header := c.header()
	header.Set("Accept", "text/event-stream")

	resp, err := provider.PostJSON(ctx, provider.StreamHTTPClient(c.hc), c.url(), header, body)
	if err != nil {
		return fmt.Errorf("%s: %w", c.name, err)
	}
	defer resp.Body.Close()

	if !provider.IsSuccess(resp) {
		return provider.ReadAPIError(c.name, resp)
	}

	err = sse.Read(h.Abort(), resp.Body, func(ev sse.Event) error {
		switch ev.Name {
		case "content_block_delta", "error":
		case "message_stop":
			h.Done()
			return nil
		default:
			// ping, message_start, message_delta, content_block_start/stop
			return nil
		}

		var event streamEvent
		if err := json.Unmarshal([]byte(ev.Data), &event); err != nil {
			slog.Warn("malformed stream chunk",
				"client", c.name,
				"error", err.Error(),
				"data", debug.Truncate(ev.Data, 200),
			)
			return fmt.Errorf("malformed stream chunk: %w", err)
		}
		if event.Error != nil {
			return fmt.Errorf("stream error: %s", event.Error.Message)
		}
		return h.Text(event.Delta.Text)
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
	return c.apiBase + "/messages"
}

func (c *Client) header() http.Header {
	header := make(http.Header)
	header.Set("x-api-key", c.apiKey)
	header.Set("anthropic-version", apiVersion)
	return header
}
