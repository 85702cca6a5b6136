// Package integration exercises the gateway end-to-end: a real listener,
// the full middleware chain, and an in-process OpenAI-compatible vendor
// stub behind an openai-compatible client.
package integration

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/polygate-dev/polygate/pkg/api"
	"github.com/polygate-dev/polygate/pkg/auth"
	"github.com/polygate-dev/polygate/pkg/config"
	"github.com/polygate-dev/polygate/pkg/gateway"
	"github.com/polygate-dev/polygate/pkg/provider"
	"github.com/polygate-dev/polygate/pkg/usage/memory"
)

// startVendor runs a minimal OpenAI-compatible chat completions stub.
func startVendor(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		var req struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
			Stream bool `json:"stream"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		prompt := req.Messages[len(req.Messages)-1].Content
		if strings.Contains(prompt, "trigger-error") {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			io.WriteString(w, `{"error":{"message":"vendor overloaded","type":"server_error"}}`)
			return
		}

		if req.Stream {
			w.Header().Set("Content-Type", "text/event-stream")
			w.WriteHeader(http.StatusOK)
			for _, delta := range []string{"echo: ", prompt} {
				payload, _ := json.Marshal(map[string]any{
					"id":      "chatcmpl-vendor-1",
					"object":  "chat.completion.chunk",
					"model":   req.Model,
					"choices": []map[string]any{{"index": 0, "delta": map[string]any{"content": delta}}},
				})
				fmt.Fprintf(w, "data: %s\n\n", payload)
			}
			fmt.Fprint(w, "data: [DONE]\n\n")
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"id":     "chatcmpl-vendor-1",
			"object": "chat.completion",
			"model":  req.Model,
			"choices": []map[string]any{{
				"index":         0,
				"message":       map[string]any{"role": "assistant", "content": "echo: " + prompt},
				"finish_reason": "stop",
			}},
			"usage": map[string]any{"prompt_tokens": 3, "completion_tokens": 2, "total_tokens": 5},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

// startGateway runs the full server on a loopback listener and returns
// its base URL.
func startGateway(t *testing.T, cfg *config.Config) string {
	t.Helper()

	authn, err := auth.FromConfig(cfg.Auth)
	if err != nil {
		t.Fatal(err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := gateway.NewServer(cfg, memory.New(100), authn, logger)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- srv.ServeOn(ctx, ln)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("server exited with error: %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Error("server did not shut down")
		}
	})

	return "http://" + ln.Addr().String()
}

func vendorConfig(vendorURL string) *config.Config {
	cfg := config.Defaults()
	cfg.Clients = []provider.ClientConfig{{
		Type:    "openai-compatible",
		Name:    "mock",
		APIBase: vendorURL + "/v1",
		Models:  []provider.ModelConfig{{Name: "mock-small"}},
	}}
	return &cfg
}

func postJSON(t *testing.T, url, body string, header http.Header) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestCompletionEndToEnd(t *testing.T) {
	vendor := startVendor(t)
	base := startGateway(t, vendorConfig(vendor.URL))

	resp := postJSON(t, base+"/v1/chat/completions",
		`{"model":"mock:mock-small","messages":[{"role":"user","content":"ping"}]}`, nil)
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("status = %d, body %s", resp.StatusCode, body)
	}

	var completion api.ChatCompletion
	if err := json.NewDecoder(resp.Body).Decode(&completion); err != nil {
		t.Fatal(err)
	}
	if completion.Choices[0].Message.Content != "echo: ping" {
		t.Errorf("content = %q", completion.Choices[0].Message.Content)
	}
	if completion.Model != "mock:mock-small" {
		t.Errorf("model = %q", completion.Model)
	}
	if completion.Usage.TotalTokens != 5 {
		t.Errorf("usage = %+v", completion.Usage)
	}

	// The completion lands in the usage ledger.
	usageResp := postGet(t, base+"/v1/usage")
	var ledger struct {
		Data []struct {
			ID     string `json:"id"`
			Model  string `json:"model"`
			Stream bool   `json:"stream"`
		} `json:"data"`
	}
	if err := json.NewDecoder(usageResp.Body).Decode(&ledger); err != nil {
		t.Fatal(err)
	}
	if len(ledger.Data) != 1 || ledger.Data[0].Model != "mock:mock-small" {
		t.Errorf("ledger = %+v", ledger.Data)
	}
}

func postGet(t *testing.T, url string) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestStreamingEndToEnd(t *testing.T) {
	vendor := startVendor(t)
	base := startGateway(t, vendorConfig(vendor.URL))

	resp := postJSON(t, base+"/v1/chat/completions",
		`{"model":"mock:mock-small","stream":true,"messages":[{"role":"user","content":"ping"}]}`, nil)
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("status = %d, body %s", resp.StatusCode, body)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content type = %q", ct)
	}

	var payloads []string
	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		if data, ok := strings.CutPrefix(sc.Text(), "data: "); ok {
			payloads = append(payloads, data)
		}
	}
	if err := sc.Err(); err != nil {
		t.Fatal(err)
	}

	if len(payloads) < 4 || payloads[len(payloads)-1] != "[DONE]" {
		t.Fatalf("payloads = %q", payloads)
	}

	var text bytes.Buffer
	sawRole := false
	for _, p := range payloads[:len(payloads)-1] {
		var chunk api.ChatCompletionChunk
		if err := json.Unmarshal([]byte(p), &chunk); err != nil {
			t.Fatalf("decoding %q: %v", p, err)
		}
		delta := chunk.Choices[0].Delta
		if delta.Role == api.RoleAssistant {
			sawRole = true
		}
		if delta.Content != nil {
			text.WriteString(*delta.Content)
		}
	}
	if !sawRole {
		t.Error("missing role-priming frame")
	}
	if text.String() != "echo: ping" {
		t.Errorf("streamed text = %q", text.String())
	}
}

func TestVendorErrorSurfacesBeforeStream(t *testing.T) {
	vendor := startVendor(t)
	base := startGateway(t, vendorConfig(vendor.URL))

	resp := postJSON(t, base+"/v1/chat/completions",
		`{"model":"mock:mock-small","stream":true,"messages":[{"role":"user","content":"trigger-error"}]}`, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("content type = %q, want JSON error envelope", ct)
	}
	var envelope api.ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatal(err)
	}
	if envelope.Error.Type != api.ErrorTypeInvalidRequest {
		t.Errorf("error type = %q, want %q", envelope.Error.Type, api.ErrorTypeInvalidRequest)
	}
	if !strings.Contains(envelope.Error.Message, "vendor overloaded") {
		t.Errorf("message = %q", envelope.Error.Message)
	}
}

func TestUnknownModelRejected(t *testing.T) {
	vendor := startVendor(t)
	base := startGateway(t, vendorConfig(vendor.URL))

	resp := postJSON(t, base+"/v1/chat/completions",
		`{"model":"nope","messages":[{"role":"user","content":"hi"}]}`, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestAPIKeyAuthEndToEnd(t *testing.T) {
	vendor := startVendor(t)
	cfg := vendorConfig(vendor.URL)
	cfg.Auth.Type = "apikey"
	cfg.Auth.APIKeys = []config.APIKeyConfig{{Key: "sk-secret", Subject: "ci"}}
	base := startGateway(t, cfg)

	body := `{"model":"mock:mock-small","messages":[{"role":"user","content":"hi"}]}`

	resp := postJSON(t, base+"/v1/chat/completions", body, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status without key = %d, want 401", resp.StatusCode)
	}

	authed := http.Header{}
	authed.Set("Authorization", "Bearer sk-secret")
	resp = postJSON(t, base+"/v1/chat/completions", body, authed)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status with key = %d, want 200", resp.StatusCode)
	}
}
