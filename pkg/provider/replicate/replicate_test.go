package replicate

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/polygate-dev/polygate/pkg/abort"
	"github.com/polygate-dev/polygate/pkg/provider"
)

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	c, err := New(provider.ClientConfig{
		Type:    Kind,
		APIKey:  "r8-test",
		APIBase: baseURL,
	}, provider.NewModel(Kind, "meta/llama-3-8b-instruct"))
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestBuildInputFlattensConversation(t *testing.T) {
	c := newTestClient(t, "")
	input := c.buildInput(provider.Request{
		Messages: []provider.Message{
			{Role: "system", Content: "be terse"},
			{Role: "user", Content: "hi"},
			{Role: "assistant", Content: "hello"},
			{Role: "user", Content: "again"},
		},
	})
	if input.SystemPrompt != "be terse" {
		t.Errorf("system_prompt = %q", input.SystemPrompt)
	}
	want := "user: hi\nassistant: hello\nuser: again"
	if input.Prompt != want {
		t.Errorf("prompt = %q, want %q", input.Prompt, want)
	}
}

func TestOutputText(t *testing.T) {
	if got := (prediction{Output: "whole"}).outputText(); got != "whole" {
		t.Errorf("string output = %q", got)
	}
	if got := (prediction{Output: []any{"a", "b", "c"}}).outputText(); got != "abc" {
		t.Errorf("fragment output = %q", got)
	}
}

func TestSendSucceededImmediately(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models/meta/llama-3-8b-instruct/predictions" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer r8-test" {
			t.Errorf("authorization = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"id":      "pred-1",
			"status":  "succeeded",
			"output":  []any{"he", "llo"},
			"metrics": map[string]any{"input_token_count": 4, "output_token_count": 2},
		})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	text, details, err := c.Send(context.Background(), provider.Request{
		Messages: []provider.Message{{Role: "user", Content: "hi"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if text != "hello" || details.ID != "pred-1" || details.InputTokens != 4 {
		t.Errorf("text = %q, details = %+v", text, details)
	}
}

func TestSendFailedPrediction(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"id":     "pred-2",
			"status": "failed",
			"error":  "CUDA out of memory",
		})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, _, err := c.Send(context.Background(), provider.Request{
		Messages: []provider.Message{{Role: "user", Content: "hi"}},
	})
	if err == nil || !strings.Contains(err.Error(), "CUDA out of memory") {
		t.Errorf("err = %v", err)
	}
}

func TestSendStreaming(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("POST /models/meta/llama-3-8b-instruct/predictions", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"id":"pred-3","status":"starting","urls":{"stream":"%s/stream"}}`, srv.URL)
	})
	mux.HandleFunc("GET /stream", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte("event: output\ndata: he\n\n"))
		w.Write([]byte("event: output\ndata: llo\n\n"))
		w.Write([]byte("event: done\ndata: {}\n\n"))
	})

	c := newTestClient(t, srv.URL)
	h := provider.NewHandler(abort.New())
	if err := c.SendStreaming(context.Background(), provider.Request{
		Messages: []provider.Message{{Role: "user", Content: "hi"}},
	}, h); err != nil {
		t.Fatal(err)
	}

	var text string
	var dones int
	for ev := range h.Events() {
		if ev.Done {
			dones++
		}
		text += ev.Text
	}
	if text != "hello" || dones != 1 {
		t.Errorf("text = %q, dones = %d", text, dones)
	}
}

func TestSendStreamingVendorErrorEvent(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("POST /models/meta/llama-3-8b-instruct/predictions", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"id":"pred-4","status":"starting","urls":{"stream":"%s/stream"}}`, srv.URL)
	})
	mux.HandleFunc("GET /stream", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte(`event: error` + "\n" + `data: {"detail":"model crashed"}` + "\n\n"))
	})

	c := newTestClient(t, srv.URL)
	h := provider.NewHandler(abort.New())
	err := c.SendStreaming(context.Background(), provider.Request{
		Messages: []provider.Message{{Role: "user", Content: "hi"}},
	}, h)
	if err == nil || !strings.Contains(err.Error(), "model crashed") {
		t.Errorf("err = %v", err)
	}
}
