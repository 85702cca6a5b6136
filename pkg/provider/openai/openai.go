// Package openai implements the OpenAI chat-completions client. Its wire
// codec is shared by the azure and compat clients, which speak the same
// protocol against different endpoints.
package openai

import (
	"context"
	"fmt"
	"net/http"

	"github.com/polygate-dev/polygate/pkg/provider"
)

// Kind is the configuration type tag selecting this client.
const Kind = "openai"

const defaultAPIBase = "https://api.openai.com/v1"

// Client calls the OpenAI chat-completions API.
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
		apiBase: apiBase,
		apiKey:  cfg.APIKey,
		hc:      provider.NewHTTPClient(),
	}, nil
}

func (c *Client) Name() string { return c.name }

func (c *Client) Model() *provider.Model { return &c.model }

func (c *Client) Send(ctx context.Context, req provider.Request) (string, provider.Details, error) {
	if err := validate(req); err != nil {
		return "", provider.Details{}, fmt.Errorf("%s: %w", c.name, err)
	}
	body := BuildRequestBody(c.model, req, false)
	return Complete(ctx, c.hc, c.url(), c.header(), body, c.name)
}

func (c *Client) SendStreaming(ctx context.Context, req provider.Request, h *provider.Handler) error {
	if err := validate(req); err != nil {
		return fmt.Errorf("%s: %w", c.name, err)
	}
	body := BuildRequestBody(c.model, req, true)
	return Stream(ctx, provider.StreamHTTPClient(c.hc), c.url(), c.header(), body, h, c.name)
}

func (c *Client) url() string {
	return c.apiBase + "/chat/completions"
}

func (c *Client) header() http.Header {
	header := make(http.Header)
	header.Set("Authorization", "Bearer "+c.apiKey)
	return header
}

// validate enforces OpenAI's sampling parameter ranges.
func validate(req provider.Request) error {
	if req.Temperature != nil && (*req.Temperature < 0 || *req.Temperature > 2) {
		return fmt.Errorf("temperature %v out of range [0, 2]", *req.Temperature)
	}
	if req.TopP != nil && (*req.TopP <= 0 || *req.TopP > 1) {
		return fmt.Errorf("top_p %v out of range (0, 1]", *req.TopP)
	}
	return nil
}
