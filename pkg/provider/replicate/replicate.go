// Package replicate implements the Replicate client. A completion is a
// two-step exchange: create a prediction, then either follow its stream
// URL (named SSE events output/done/error) or poll its get URL until the
// prediction settles.
package replicate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/polygate-dev/polygate/pkg/debug"
	"github.com/polygate-dev/polygate/pkg/provider"
	"github.com/polygate-dev/polygate/pkg/provider/sse"
)

// Kind is the configuration type tag selecting this client.
const Kind = "replicate"

const (
	defaultAPIBase = "https://api.replicate.com/v1"
	pollInterval   = time.Second
)

// Client calls Replicate's predictions API.
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

type predictionInput struct {
	Prompt       string   `json:"prompt"`
	SystemPrompt string   `json:"system_prompt,omitempty"`
	Temperature  *float64 `json:"temperature,omitempty"`
	TopP         *float64 `json:"top_p,omitempty"`
	MaxNewTokens *int     `json:"max_new_tokens,omitempty"`
}

type createBody struct {
	Stream bool            `json:"stream,omitempty"`
	Input  predictionInput `json:"input"`
}

// buildInput flattens the conversation into a single prompt, lifting
// system messages into system_prompt.
func (c *Client) buildInput(req provider.Request) predictionInput {
	var system, lines []string
	for _, m := range req.Messages {
		switch m.Role {
		case "system":
			system = append(system, m.Content)
		case "assistant":
			lines = append(lines, "assistant: "+m.Content)
		default:
			lines = append(lines, "user: "+m.Content)
		}
	}
	return predictionInput{
		Prompt:       strings.Join(lines, "\n"),
		SystemPrompt: strings.Join(system, "\n\n"),
		Temperature:  req.Temperature,
		TopP:         req.TopP,
		MaxNewTokens: c.model.MaxOutputTokens,
	}
}

type prediction struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Output any    `json:"output"`
	Error  any    `json:"error"`
	URLs   struct {
		Get    string `json:"get"`
		Stream string `json:"stream"`
	} `json:"urls"`
	Metrics struct {
		InputTokenCount  int `json:"input_token_count"`
		OutputTokenCount int `json:"output_token_count"`
	} `json:"metrics"`
}

// outputText joins a prediction output, which Replicate returns as either
// a string or an array of string fragments.
func (p prediction) outputText() string {
	switch v := p.Output.(type) {
	case string:
		return v
	case []any:
		var b strings.Builder
		for _, part := range v {
			if s, ok := part.(string); ok {
				b.WriteString(s)
			}
		}
		return b.String()
	}
	return ""
}

func (c *Client) create(ctx context.Context, req provider.Request, stream bool) (prediction, error) {
	body := createBody{Stream: stream, Input: c.buildInput(req)}

	resp, err := provider.PostJSON(ctx, c.hc, c.createURL(), c.header(), body)
	if err != nil {
		return prediction{}, err
	}
	defer resp.Body.Close()

	if !provider.IsSuccess(resp) {
		return prediction{}, provider.ReadAPIError(c.name, resp)
	}

	var p prediction
	if err := provider.DecodeJSON(resp, &p); err != nil {
		return prediction{}, err
	}
	return p, nil
}

func (c *Client) get(ctx context.Context, url string) (prediction, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return prediction{}, err
	}
	req.Header = c.header()

	resp, err := c.hc.Do(req)
	if err != nil {
		return prediction{}, err
	}
	defer resp.Body.Close()

	if !provider.IsSuccess(resp) {
		return prediction{}, provider.ReadAPIError(c.name, resp)
	}

	var p prediction
	if err := provider.DecodeJSON(resp, &p); err != nil {
		return prediction{}, err
	}
	return p, nil
}

// Send creates a prediction and polls it until it settles.
func (c *Client) Send(ctx context.Context, req provider.Request) (string, provider.Details, error) {
	p, err := c.create(ctx, req, false)
	if err != nil {
		return "", provider.Details{}, fmt.Errorf("%s: %w", c.name, err)
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		switch p.Status {
		case "succeeded":
			details := provider.Details{
				ID:           p.ID,
				InputTokens:  p.Metrics.InputTokenCount,
				OutputTokens: p.Metrics.OutputTokenCount,
			}
			return p.outputText(), details, nil
		case "failed", "canceled":
			return "", provider.Details{}, fmt.Errorf("%s: prediction %s: %v", c.name, p.Status, p.Error)
		}

		select {
		case <-ctx.Done():
			return "", provider.Details{}, fmt.Errorf("%s: %w", c.name, ctx.Err())
		case <-ticker.C:
		}

		p, err = c.get(ctx, p.URLs.Get)
		if err != nil {
			return "", provider.Details{}, fmt.Errorf("%s: %w", c.name, err)
		}
	}
}

// SendStreaming creates a streaming prediction and follows its SSE URL.
func (c *Client) SendStreaming(ctx context.Context, req provider.Request, h *provider.Handler) error {
	p, err := c.create(ctx, req, true)
	if err != nil {
		return fmt.Errorf("%s: %w", c.name, err)
	}
	if p.URLs.Stream == "" {
		return fmt.Errorf("%s: prediction carried no stream url", c.name)
	}

	streamReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URLs.Stream, nil)
	if err != nil {
		return fmt.Errorf("%s: %w", c.name, err)
	}
	streamReq.Header = c.header()
	streamReq.Header.Set("Accept", "text/event-stream")

	resp, err := provider.StreamHTTPClient(c.hc).Do(streamReq)
	if err != nil {
		return fmt.Errorf("%s: %w", c.name, err)
	}
	defer resp.Body.Close()

	if !provider.IsSuccess(resp) {
		return provider.ReadAPIError(c.name, resp)
	}

	err = sse.Read(h.Abort(), resp.Body, func(ev sse.Event) error {
		switch ev.Name {
		case "output":
			return h.Text(ev.Data)
		case "done":
			h.Done()
			return nil
		case "error":
			var e struct {
				Detail string `json:"detail"`
			}
			if err := json.Unmarshal([]byte(ev.Data), &e); err != nil || e.Detail == "" {
				slog.Warn("malformed stream chunk",
					"client", c.name,
					"data", debug.Truncate(ev.Data, 200),
				)
				return fmt.Errorf("stream error: %s", debug.Truncate(ev.Data, 200))
			}
			return fmt.Errorf("stream error: %s", e.Detail)
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

func (c *Client) createURL() string {
	return c.apiBase + "/models/" + c.model.Name + "/predictions"
}

func (c *Client) header() http.Header {
	header := make(http.Header)
	header.Set("Authorization", "Bearer "+c.apiKey)
	header.Set("Content-Type", "application/json")
	return header
}
