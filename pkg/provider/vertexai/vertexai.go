// Package vertexai implements the Google Vertex AI client for Gemini
// models. It reuses the gemini wire codec against the regional Vertex
// endpoint and authenticates with a caller-supplied OAuth access token.
package vertexai

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/polygate-dev/polygate/pkg/provider"
	"github.com/polygate-dev/polygate/pkg/provider/gemini"
)

// Kind is the configuration type tag selecting this client.
const Kind = "vertexai"

// Client calls Vertex AI's generateContent endpoints.
type Client struct {
	name        string
	model       provider.Model
	project     string
	location    string
	accessToken string
	hc          *http.Client
}

// New validates the configuration and builds a Client bound to model.
func New(cfg provider.ClientConfig, model provider.Model) (*Client, error) {
	if cfg.Project == "" {
		return nil, provider.MissingFieldError(cfg.ClientName(), "project")
	}
	if cfg.Location == "" {
		return nil, provider.MissingFieldError(cfg.ClientName(), "location")
	}
	if cfg.AccessToken == "" {
		return nil, provider.MissingFieldError(cfg.ClientName(), "access_token")
	}
	return &Client{
		name:        cfg.ClientName(),
		model:       model,
		project:     cfg.Project,
		location:    cfg.Location,
		accessToken: cfg.AccessToken,
		hc:          provider.NewHTTPClient(),
	}, nil
}

func (c *Client) Name() string { return c.name }

func (c *Client) Model() *provider.Model { return &c.model }

func (c *Client) Send(ctx context.Context, req provider.Request) (string, provider.Details, error) {
	body := gemini.BuildRequestBody(c.model, req)
	return gemini.Complete(ctx, c.hc, c.url("generateContent", ""), c.header(), body, c.name)
}

func (c *Client) SendStreaming(ctx context.Context, req provider.Request, h *provider.Handler) error {
	body := gemini.BuildRequestBody(c.model, req)
	return gemini.Stream(ctx, provider.StreamHTTPClient(c.hc), c.url("streamGenerateContent", "alt=sse"), c.header(), body, h, c.name)
}

func (c *Client) url(op, query string) string {
	u := fmt.Sprintf("https://%s-aiplatform.googleapis.com/v1/projects/%s/locations/%s/publishers/google/models/%s:%s",
		c.location, url.PathEscape(c.project), url.PathEscape(c.location), url.PathEscape(c.model.Name), op)
	if query != "" {
		u += "?" + query
	}
	return u
}

func (c *Client) header() http.Header {
	header := make(http.Header)
	header.Set("Authorization", "Bearer "+c.accessToken)
	return header
}
