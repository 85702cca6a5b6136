// Package cloudflare implements the Cloudflare Workers AI client.
// Responses arrive wrapped in a result envelope; streams are bare data:
// lines carrying {"response": ...} chunks and end with a [DONE] sentinel.
package cloudflare

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
const Kind = "cloudflare"

const doneSentinel = "[DONE]"

const defaultAPIBase = "https://api.cloudflare.com/client/v4"

// Client calls the Workers AI run endpoint for an account.
type Client struct {
	name      string
	model     provider.Model
	apiBase   string
	accountID string
	apiKey    string
	hc        *http.Client
}

// New validates the configuration and builds a Client bound to model.
func New(cfg provider.ClientConfig, model provider.Model) (*Client, error) {
	if cfg.AccountID == "" {
		return nil, provider.MissingFieldError(cfg.ClientName(), "account_id")
	}
	if cfg.APIKey == "" {
		return nil, provider.MissingFieldError(cfg.ClientName(), "api_key")
	}
	apiBase := cfg.APIBase
	if apiBase == "" {
		apiBase = defaultAPIBase
	}
	return &Client{
		name:      cfg.ClientName(),
		model:     model,
		apiBase:   strings.TrimSuffix(apiBase, "/"),
		accountID: cfg.AccountID,
		apiKey:    cfg.APIKey,
		hc:        provider.NewHTTPClient(),
	}, nil
}

func (c *Client) Name() string { return c.name }

func (c *Client) Model() *provider.Model { return &c.model }

type requestBody struct {
	Messages    []provider.Message `json:"messages"`
	Temperature *float64           `json:"temperature,omitempty"`
	TopP        *float64           `json:"top_p,omitempty"`
	MaxTokens   *int               `json:"max_tokens,omitempty"`
	Stream      bool               `json:"stream,omitempty"`
}

func (c *Client) buildRequestBody(req provider.Request, stream bool) requestBody {
	return requestBody{
		Messages:    req.Messages,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		MaxTokens:   c.model.MaxOutputTokens,
		Stream:      stream,
	}
}

type responseBody struct {
	Result struct {
		Response string `json:"response"`
	} `json:"result"`
	Success bool `json:"success"`
	Errors  []struct {
		Message string `json:"message"`
	} `json:"errors"`
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

	var out responseBody
	if err := provider.DecodeJSON(resp, &out); err != nil {
		return "", provider.Details{}, fmt.Errorf("%s: %w", c.name, err)
	}
	if !out.Success {
		msg := "request failed"
		if len(out.Errors) > 0 {
			msg = out.Errors[0].Message
		}
		return "", provider.Details{}, fmt.Errorf("%s: %s", c.name, msg)
	}

	// Workers AI does not report token usage on this endpoint.
	return out.Result.Response, provider.Details{}, nil
}

type streamChunk struct {
	Response string `json:"response"`
}

func (c *Client) SendStreaming(ctx context.Context, req provider.Request, h *provider.Handler) error {
	body := c.buildRequestBody(req, true)

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
		if ev.Data == doneSentinel {
			h.Done()
			return nil
		}
		var chunk streamChunk
		if err := json.Unmarshal([]byte(ev.Data), &chunk); err != nil {
			slog.Warn("malformed stream chunk",
				"client", c.name,
				"error", err.Error(),
				"data", debug.Truncate(ev.Data, 200),
			)
			return fmt.Errorf("malformed stream chunk: %w", err)
		}
		return h.Text(chunk.Response)
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
	return c.apiBase + "/accounts/" + c.accountID + "/ai/run/" + c.model.Name
}

func (c *Client) header() http.Header {
	header := make(http.Header)
	header.Set("Authorization", "Bearer "+c.apiKey)
	return header
}
