// Package compat implements a provider client for services exposing an
// OpenAI-compatible chat-completions API. Well-known hosted platforms
// are resolved to their base URL by name; anything else needs an
// explicit api_base.
package compat

import (
	"context"
	"net/http"
	"strings"

	"github.com/polygate-dev/polygate/pkg/provider"
	"github.com/polygate-dev/polygate/pkg/provider/openai"
)

// Kind is the configuration type tag selecting this client.
const Kind = "openai-compatible"

// platformBases maps hosted platform names to their OpenAI-compatible
// API base URL. A client whose name matches one of these keys does not
// need api_base configured.
var platformBases = map[string]string{
	"anyscale":   "https://api.endpoints.anyscale.com/v1",
	"deepinfra":  "https://api.deepinfra.com/v1/openai",
	"fireworks":  "https://api.fireworks.ai/inference/v1",
	"groq":       "https://api.groq.com/openai/v1",
	"mistral":    "https://api.mistral.ai/v1",
	"moonshot":   "https://api.moonshot.cn/v1",
	"openrouter": "https://openrouter.ai/api/v1",
	"octoai":     "https://text.octoai.run/v1",
	"perplexity": "https://api.perplexity.ai",
	"together":   "https://api.together.xyz/v1",
}

// Client speaks the OpenAI wire protocol against a configurable base URL.
type Client struct {
	name    string
	model   provider.Model
	apiBase string
	apiKey  string
	hc      *http.Client
}

// New builds a client for the given configuration. The base URL is
// taken from api_base when set, otherwise looked up by client name in
// the known-platform table.
func New(cfg provider.ClientConfig, model provider.Model) (*Client, error) {
	apiBase := strings.TrimSuffix(cfg.APIBase, "/")
	if apiBase == "" {
		known, ok := platformBases[cfg.ClientName()]
		if !ok {
			return nil, provider.MissingFieldError(cfg.ClientName(), "api_base")
		}
		apiBase = known
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
	body := openai.BuildRequestBody(c.model, req, false)
	return openai.Complete(ctx, c.hc, c.url(), c.header(), body, c.name)
}

func (c *Client) SendStreaming(ctx context.Context, req provider.Request, h *provider.Handler) error {
	body := openai.BuildRequestBody(c.model, req, true)
	return openai.Stream(ctx, provider.StreamHTTPClient(c.hc), c.url(), c.header(), body, h, c.name)
}

func (c *Client) url() string {
	return c.apiBase + "/chat/completions"
}

func (c *Client) header() http.Header {
	header := make(http.Header)
	if c.apiKey != "" {
		header.Set("Authorization", "Bearer "+c.apiKey)
	}
	return header
}
