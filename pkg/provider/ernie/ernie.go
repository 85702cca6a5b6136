// Package ernie implements the Baidu ERNIE (wenxinworkshop) client. The
// API authenticates with an access_token query parameter, requires
// user/assistant turns to alternate, and streams bare data: lines where
// the final chunk carries is_end instead of a sentinel.
package ernie

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/polygate-dev/polygate/pkg/debug"
	"github.com/polygate-dev/polygate/pkg/provider"
	"github.com/polygate-dev/polygate/pkg/provider/sse"
)

// Kind is the configuration type tag selecting this client.
const Kind = "ernie"

const defaultAPIBase = "https://aip.baidubce.com/rpc/2.0/ai_custom/v1/wenxinworkshop/chat"

// Client calls the wenxinworkshop chat API.
type Client struct {
	name        string
	model       provider.Model
	apiBase     string
	accessToken string
	hc          *http.Client
}

// New validates the configuration and builds a Client bound to model.
func New(cfg provider.ClientConfig, model provider.Model) (*Client, error) {
	if cfg.AccessToken == "" {
		return nil, provider.MissingFieldError(cfg.ClientName(), "access_token")
	}
	apiBase := cfg.APIBase
	if apiBase == "" {
		apiBase = defaultAPIBase
	}
	return &Client{
		name:        cfg.ClientName(),
		model:       model,
		apiBase:     strings.TrimSuffix(apiBase, "/"),
		accessToken: cfg.AccessToken,
		hc:          provider.NewHTTPClient(),
	}, nil
}

func (c *Client) Name() string { return c.name }

func (c *Client) Model() *provider.Model { return &c.model }

type requestBody struct {
	Messages        []provider.Message `json:"messages"`
	System          string             `json:"system,omitempty"`
	Temperature     *float64           `json:"temperature,omitempty"`
	TopP            *float64           `json:"top_p,omitempty"`
	MaxOutputTokens *int               `json:"max_output_tokens,omitempty"`
	Stream          bool               `json:"stream,omitempty"`
}

// buildRequestBody lifts system messages into the system field; the API
// rejects them inside the message list.
func (c *Client) buildRequestBody(req provider.Request, stream bool) requestBody {
	body := requestBody{
		Temperature:     req.Temperature,
		TopP:            req.TopP,
		MaxOutputTokens: c.model.MaxOutputTokens,
		Stream:          stream,
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
	return body
}

// chunk is both the buffered response and one streamed data line. The
// API reports errors with a 200 status and an error_code body.
type chunk struct {
	ID     string `json:"id"`
	Result string `json:"result"`
	IsEnd  bool   `json:"is_end"`
	Usage  struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	ErrorCode int    `json:"error_code"`
	ErrorMsg  string `json:"error_msg"`
}

func (c *Client) Send(ctx context.Context, req provider.Request) (string, provider.Details, error) {
	body := c.buildRequestBody(req, false)

	resp, err := provider.PostJSON(ctx, c.hc, c.url(), nil, body)
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
	if out.ErrorCode != 0 {
		return "", provider.Details{}, fmt.Errorf("%s: %s (code %d)", c.name, out.ErrorMsg, out.ErrorCode)
	}

	details := provider.Details{
		ID:           out.ID,
		InputTokens:  out.Usage.PromptTokens,
		OutputTokens: out.Usage.CompletionTokens,
	}
	return out.Result, details, nil
}

func (c *Client) SendStreaming(ctx context.Context, req provider.Request, h *provider.Handler) error {
	body := c.buildRequestBody(req, true)

	header := make(http.Header)
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
		var out chunk
		if err := json.Unmarshal([]byte(ev.Data), &out); err != nil {
			slog.Warn("malformed stream chunk",
				"client", c.name,
				"error", err.Error(),
				"data", debug.Truncate(ev.Data, 200),
			)
			return fmt.Errorf("malformed stream chunk: %w", err)
		}
		if out.ErrorCode != 0 {
			return fmt.Errorf("stream error: %s (code %d)", out.ErrorMsg, out.ErrorCode)
		}
		if err := h.Text(out.Result); err != nil {
			return err
		}
		if out.IsEnd {
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
	return c.apiBase + "/" + c.model.Name + "?access_token=" + url.QueryEscape(c.accessToken)
}
