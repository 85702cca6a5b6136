// Package azure implements the Azure OpenAI chat-completions client. The
// wire protocol is the OpenAI codec; only addressing and authentication
// differ: requests go to a resource-scoped deployment URL with an
// api-version query parameter and authenticate with an api-key header.
package azure

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/polygate-dev/polygate/pkg/provider"
	"github.com/polygate-dev/polygate/pkg/provider/openai"
)

// Kind is the configuration type tag selecting this client.
const Kind = "azure-openai"

const defaultAPIVersion = "2024-02-01"

// Client calls an Azure OpenAI deployment.
type Client struct {
	name       string
	model      provider.Model
	apiBase    string
	apiKey     string
	apiVersion string
	hc         *http.Client
}

// New validates the configuration and builds a Client bound to model.
// api_base is the resource endpoint, e.g. https://myresource.openai.azure.com.
func New(cfg provider.ClientConfig, model provider.Model) (*Client, error) {
	if cfg.APIBase == "" {
		return nil, provider.MissingFieldError(cfg.ClientName(), "api_base")
	}
	if cfg.APIKey == "" {
		return nil, provider.MissingFieldError(cfg.ClientName(), "api_key")
	}
	apiVersion := cfg.APIVersion
	if apiVersion == "" {
		apiVersion = defaultAPIVersion
	}
	return &Client{
		name:       cfg.ClientName(),
		model:      model,
		apiBase:    strings.TrimSuffix(cfg.APIBase, "/"),
		apiKey:     cfg.APIKey,
		apiVersion: apiVersion,
		hc:         provider.NewHTTPClient(),
	}, nil
}

func (c *Client) Name() string { return c.name }

func (c *Client) Model() *provider.Model { return &c.model }

func (c *Client) Send(ctx context.Context, req provider.Request) (string, provider.Details, error) {
	body := openai.BuildRequestBody(c.model, req, false)
	body.Model = "" // the deployment in the URL selects the model
	return openai.Complete(ctx, c.hc, c.url(), c.header(), body, c.name)
}

func (c *Client) SendStreaming(ctx context.Context, req provider.Request, h *provider.Handler) error {
	body := openai.BuildRequestBody(c.model, req, true)
	body.Model = ""
	return openai.Stream(ctx, provider.StreamHTTPClient(c.hc), c.url(), c.header(), body, h, c.name)
}

func (c *Client) url() string {
	return c.apiBase + "/openai/deployments/" + url.PathEscape(c.model.Name) +
		"/chat/completions?api-version=" + url.QueryEscape(c.apiVersion)
}

func (c *Client) header() http.Header {
	header := make(http.Header)
	header.Set("api-key", c.apiKey)
	return header
}
