// Package qianwen implements the Alibaba DashScope (Qianwen) client.
// Streaming is opted into with the X-DashScope-SSE header; with
// incremental_output each SSE chunk carries only the new text.
package qianwen

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
const Kind = "qianwen"

const defaultAPIBase = "https://dashscope.aliyuncs.com/api/v1"

// Client calls the DashScope text-generation API.
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

type parameters struct {
	ResultFormat      string   `json:"result_format"`
	Temperature       *float64 `json:"temperature,omitempty"`
	TopP              *float64 `json:"top_p,omitempty"`
	MaxTokens         *int     `json:"max_tokens,omitempty"`
	IncrementalOutput bool     `json:"incremental_output,omitempty"`
}

type requestBody struct {
	Model string `json:"model"`
	Input struct {
		Messages []provider.Message `json:"messages"`
	} `json:"input"`
	Parameters parameters `json:"parameters"`
}

func (c *Client) buildRequestBody(req provider.Request, stream bool) requestBody {
	body := requestBody{
		Model: c.model.Name,
		Parameters: parameters{
			ResultFormat:      "message",
			Temperature:       req.Temperature,
			TopP:              req.TopP,
			MaxTokens:         c.model.MaxOutputTokens,
			IncrementalOutput: stream,
		},
	}
	body.Input.Messages = req.Messages
	return body
}

// chunk is both the buffered response and one streamed SSE payload.
type chunk struct {
	RequestID string `json:"request_id"`
	Output    struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
			FinishReason string `json:"finish_reason"`
		} `json:"choices"`
	} `json:"output"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (c *Client) Send(ctx context.Context, req provider.Request) (string, provider.Details, error) {
	body := c.buildRequestBody(req, false)

	resp, err := provider.PostJSON(ctx, c.hc, c.url(), c.header(false), body)
	if err != nil {
		return "", provider.Details{}, fmt.Errorf("%s: %w", c.name, err)
	}
	defer resp.Body.Close()

	if !provider.IsSuccess(resp) {
		return "", provider.Details{}, provider.ReadAPIError(c.name, resp)
	}

	var out chunk
	if err := provider.DecodeJSON(resp, &out); err != nil {
		return "", provider.Details{}, fmt.Errorf("%s: %w", c.name, err)
	}
	if out.Code != "" {
		return "", provider.Details{}, fmt.Errorf("%s: %s (%s)", c.name, out.Message, out.Code)
	}
	if len(out.Output.Choices) == 0 {
		return "", provider.Details{}, fmt.Errorf("%s: response carried no choices", c.name)
	}

	details := provider.Details{
		ID:           out.RequestID,
		InputTokens:  out.Usage.InputTokens,
		OutputTokens: out.Usage.OutputTokens,
	}
	return out.Output.Choices[0].Message.Content, details, nil
}

func (c *Client) SendStreaming(ctx context.Context, req provider.Request, h *provider.Handler) error {
	body := c.buildRequestBody(req, true)

	resp, err := provider.PostJSON(ctx, provider.StreamHTTPClient(c.hc), c.url(), c.header(true), body)
	if err != nil {
		return fmt.Errorf("%s: %w", c.name, err)
	}
	defer resp.Body.Close()

	if !provider.IsSuccess(resp) {
		return provider.ReadAPIError(c.name, resp)
	}

	err = sse.Read(h.Abort(), resp.Body, func(ev sse.Event) error {
		var out chunk
		if err := json.Unmarshal([]byte(ev.Data), &out); err != nil {
			slog.Warn("malformed stream chunk",
				"client", c.name,
				"error", err.Error(),
				"data", debug.Truncate(ev.Data, 200),
			)
			return fmt.Errorf("malformed stream chunk: %w", err)
		}
		if out.Code != "" {
			return fmt.Errorf("stream error: %s (%s)", out.Message, out.Code)
		}
		if len(out.Output.Choices) == 0 {
			return nil
		}
		choice := out.Output.Choices[0]
		if err := h.Text(choice.Message.Content); err != nil {
			return err
		}
		if choice.FinishReason == "stop" {
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
	return c.apiBase + "/services/aigc/text-generation/generation"
}

func (c *Client) header(stream bool) http.Header {
	header := make(http.Header)
	header.Set("Authorization", "Bearer "+c.apiKey)
	if stream {
		header.Set("X-DashScope-SSE", "enable")
	}
	return header
}
