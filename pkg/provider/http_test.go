package provider

import (
	"io"
	"net/http"
	"strings"
	"testing"
)

func errResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func TestReadAPIErrorEnvelopes(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"openai style", `{"error":{"message":"invalid api key"}}`, "invalid api key"},
		{"cloudflare style", `{"errors":[{"message":"no such model"}]}`, "no such model"},
		{"cohere style", `{"message":"too many tokens"}`, "too many tokens"},
		{"ernie style", `{"error_msg":"invalid access token"}`, "invalid access token"},
		{"replicate style", `{"detail":"version not found"}`, "version not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ReadAPIError("test", errResponse(400, tt.body))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %v, want message %q", err, tt.want)
			}
			if !strings.Contains(err.Error(), "400") {
				t.Errorf("error %v does not carry the status code", err)
			}
		})
	}
}

func TestReadAPIErrorRawFallback(t *testing.T) {
	err := ReadAPIError("test", errResponse(502, "upstream exploded"))
	if err == nil || !strings.Contains(err.Error(), "upstream exploded") {
		t.Errorf("error = %v, want raw body fallback", err)
	}
}

func TestIsSuccess(t *testing.T) {
	for status, want := range map[int]bool{199: false, 200: true, 204: true, 299: true, 301: false, 400: false, 500: false} {
		if got := IsSuccess(&http.Response{StatusCode: status}); got != want {
			t.Errorf("IsSuccess(%d) = %v, want %v", status, got, want)
		}
	}
}
