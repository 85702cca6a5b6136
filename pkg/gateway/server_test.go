package gateway

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/polygate-dev/polygate/pkg/auth"
	"github.com/polygate-dev/polygate/pkg/config"
	"github.com/polygate-dev/polygate/pkg/usage/memory"
)

func testServerHandler(t *testing.T, cfg *config.Config) http.Handler {
	t.Helper()
	authn, err := auth.FromConfig(cfg.Auth)
	if err != nil {
		t.Fatal(err)
	}
	srv := NewServer(cfg, memory.New(10), authn, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return srv.httpServer.Handler
}

func TestServerPreflight(t *testing.T) {
	handler := testServerHandler(t, testConfig())

	req := httptest.NewRequest(http.MethodOptions, "/v1/chat/completions", nil)
	req.Header.Set("Origin", "https://example.com")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", w.Code)
	}
	for header, want := range map[string]string{
		"Access-Control-Allow-Origin":  "*",
		"Access-Control-Allow-Methods": "GET,POST,PUT,PATCH,DELETE",
		"Access-Control-Allow-Headers": "Content-Type,Authorization",
	} {
		if got := w.Header().Get(header); got != want {
			t.Errorf("%s = %q, want %q", header, got, want)
		}
	}
	if w.Body.Len() != 0 {
		t.Errorf("preflight body = %q, want empty", w.Body.String())
	}
}

func TestServerPreflightUnknownPath(t *testing.T) {
	handler := testServerHandler(t, testConfig())

	req := httptest.NewRequest(http.MethodOptions, "/v1/no-such", nil)
	req.Header.Set("Origin", "https://example.com")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q on 404 response", got)
	}
	if !strings.Contains(w.Body.String(), "invalid_request_error") {
		t.Errorf("body = %q, want error envelope", w.Body.String())
	}
}

func TestServerCORSOnErrors(t *testing.T) {
	handler := testServerHandler(t, testConfig())

	req := httptest.NewRequest(http.MethodGet, "/no-such", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q on error response", got)
	}
}

func TestServerAuthRequired(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.Type = "apikey"
	cfg.Auth.APIKeys = []config.APIKeyConfig{{Key: "sk-good", Subject: "test"}}
	handler := testServerHandler(t, cfg)

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(`{}`))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status without key = %d, want 401", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("401 response missing CORS headers")
	}

	// Bypass paths stay open.
	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("healthz status = %d, want 200", w.Code)
	}
}

func TestServerMetricsEndpoint(t *testing.T) {
	cfg := testConfig()
	handler := testServerHandler(t, cfg)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "polygate_") {
		t.Error("metrics output missing gateway collectors")
	}
}

func TestServerMetricsDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.Observability.Metrics.Enabled = false
	handler := testServerHandler(t, cfg)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}
