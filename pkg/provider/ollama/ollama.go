// Package ollama implements the Ollama chat client. Ollama is
// self-hosted, so api_base is mandatory and authentication is optional.
// Streams are JSON lines with a done flag on the final object.
package ollama

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
const Kind = "ollama"

// Client calls an Ollama server's /api/chat endpoint.
type Client struct {
	name    string
	model   provider.Model
	apiBase string
	apiKey  string
	hc      *http.Client
}

// New validates the configuration and builds a Client bound to model.
func New(cfg provider.ClientConfig, model provider.Model) (*Client, error) {
	if cfg.APIBase == "" {
		return nil, provider.MissingFieldError(cfg.ClientName(), "api_base")
	}
	return &Client{
		name:    cfg.ClientName(),
		model:   model,
		apiBase: strings.TrimSuffix(cfg.APIBase, "/"),
		apiKey:  cfg.APIKey,
		hc:      provider.NewHTTPClient(),
	}, nil
}

func (c *Client) Name() string { return c.name }

func (c *Client) Model() *provider.Model { return &c.model }

type options struct {
	Temperature *float64 `json:"temperature,omitempty"`
	TopP        *float64 `json:"top_p,omitempty"`
	NumPredict  *int     `json:"num_predict,omitempty"`
}

type requestBody struct {
	Model    string             `json:"model"`
	Messages []provider.Message `json:"messages"`
	Stream   bool               `json:"stream"`
	Options  *options           `json:"options,omitempty"`
}

func (c *Client) buildRequestBody(req provider.Request, stream bool) requestBody {
	body := requestBody{
		Model:    c.model.Name,
		Messages: req.Messages,
		Stream:   stream,
	}
	if req.Temperature != nil || req.TopP != nil || c.model.MaxOutputTokens != nil {
		body.Options = &options{
			Temperature: req.Temperature,
			TopP:        req.TopP,
			NumPredict:  c.model.MaxOutputTokens,
		}
	}
	return body
}

// chunk is both the buffered response and one streamed line; the token
// counts appear only on the final (done) object.
type chunk struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	Done            bool   `json:"done"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
	Error           string `json:"error"`
}

func (c *Client) Send(ctx context.Context, req provider.Request) (string, provider.Details, error) {
	body := c.buildRequestBody(req, false)

	resp, err := provider.PostJSON(ctx, c.hc, c.url(), c.header(), body)
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
	if out.Error != "" {
		return "", provider.Details{}, fmt.Errorf("%s: %s", c.name, out.Error)
	}

	details := provider.Details{
		InputTokens:  out.PromptEvalCount,
		OutputTokens: out.EvalCount,
	}
	return out.Message.Content, details, nil
}

func (c *Client) SendStreaming(ctx context.Context, req provider.Request, h *provider.Handler) error {
	body := c.buildRequestBody(req, true)

	resp, err := provider.PostJSON(ctx, provider.StreamHTTPClient(c.hc), c.url(), c.header(), body)
	if err != nil {
		return fmt.Errorf("%s: %w", c.name, err)
	}
	defer resp.Body.Close()

	if !provider.IsSuccess(resp) {
		return provider.ReadAPIError(c.name, resp)
	}

	err = sse.ReadLines(h.Abort(), resp.Body, func(line string) error {
		var out chunk
		if err := json.Unmarshal([]byte(line), &out); err != nil {
			slog.Warn("malformed stream chunk",
				"client", c.name,
				"error", err.Error(),
				"data", debug.Truncate(line, 200),
			)
			return fmt.Errorf("malformed stream chunk: %w", err)
		}
		if out.Error != "" {
			return fmt.Errorf("stream error: %s", out.Error)
		}
		if err := h.Text(out.Message.Content); err != nil {
			return err
		}
		if out.Done {
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
	return c.apiBase + "/api/chat"
}

func (c *Client) header() http.Header {
	header := make(http.Header)
	if c.apiKey != "" {
		header.Set("Authorization", "Bearer "+c.apiKey)
	}
	return header
}
