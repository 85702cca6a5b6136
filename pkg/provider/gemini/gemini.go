// Package gemini implements the Google Generative Language client. Its
// wire codec is shared by the vertexai client, which serves the same
// generateContent protocol from regional Vertex AI endpoints.
package gemini

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/polygate-dev/polygate/pkg/provider"
)

// Kind is the configuration type tag selecting this client.
const Kind = "gemini"

const defaultAPIBase = "https://generativelanguage.googleapis.com/v1beta"

// Client calls the Generative Language API with API-key authentication.
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

func (c *Client) Send(ctx context.Context, req provider.Request) (string, provider.Details, error) {
	body := BuildRequestBody(c.model, req)
	return Complete(ctx, c.hc, c.url("generateContent", ""), nil, body, c.name)
}

func (c *Client) SendStreaming(ctx context.Context, req provider.Request, h *provider.Handler) error {
	body := BuildRequestBody(c.model, req)
	return Stream(ctx, provider.StreamHTTPClient(c.hc), c.url("streamGenerateContent", "alt=sse"), nil, body, h, c.name)
}

func (c *Client) url(op, extra string) string {
	u := c.apiBase + "/models/" + url.PathEscape(c.model.Name) + ":" + op +
		"?key=" + url.QueryEscape(c.apiKey)
	if extra != "" {
		u += "&" + extra
	}
	return u
}
