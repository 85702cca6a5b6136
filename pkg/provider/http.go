package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/polygate-dev/polygate/pkg/debug"
)

// DefaultTimeout bounds a synchronous vendor round trip. Streaming calls
// use an untimed client and rely on context cancellation and the abort
// signal instead, since a legitimate stream can outlast any fixed timeout.
const DefaultTimeout = 120 * time.Second

// maxErrorBody bounds how much of a vendor error body is read.
const maxErrorBody = 64 * 1024

// NewHTTPClient returns the HTTP client used for synchronous vendor calls.
func NewHTTPClient() *http.Client {
	return &http.Client{Timeout: DefaultTimeout}
}

// StreamHTTPClient derives an untimed client from hc for streaming calls,
// sharing its transport so connection pools and per-vendor transport
// settings carry over.
func StreamHTTPClient(hc *http.Client) *http.Client {
	return &http.Client{Transport: hc.Transport}
}

// PostJSON issues a POST with a JSON-encoded payload. Extra headers are
// applied on top of Content-Type. The caller owns the response body.
func PostJSON(ctx context.Context, hc *http.Client, url string, header http.Header, payload any) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding request body: %w", err)
	}

	debug.Trace("providers", "vendor request", "url", url, "body", debug.Truncate(string(body), 2000))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	return hc.Do(req)
}

// DecodeJSON decodes a vendor response body into v.
func DecodeJSON(resp *http.Response, v any) error {
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("parsing vendor response: %w", err)
	}
	return nil
}

// vendorErrorEnvelope matches the error body shapes the supported vendors
// use. Only one of the fields is populated for any given vendor.
type vendorErrorEnvelope struct {
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
	Message  string `json:"message"`
	ErrorMsg string `json:"error_msg"`
	Detail   string `json:"detail"`
}

func (e vendorErrorEnvelope) message() string {
	switch {
	case e.Error != nil && e.Error.Message != "":
		return e.Error.Message
	case len(e.Errors) > 0 && e.Errors[0].Message != "":
		return e.Errors[0].Message
	case e.Message != "":
		return e.Message
	case e.ErrorMsg != "":
		return e.ErrorMsg
	case e.Detail != "":
		return e.Detail
	}
	return ""
}

// ReadAPIError turns a non-2xx vendor response into an error carrying the
// vendor's own message when one can be extracted, or a truncated raw body
// otherwise. The response body is consumed but not closed.
func ReadAPIError(client string, resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	var envelope vendorErrorEnvelope
	if err := json.Unmarshal(raw, &envelope); err == nil {
		if msg := envelope.message(); msg != "" {
			return fmt.Errorf("%s: %s (status %d)", client, msg, resp.StatusCode)
		}
	}
	return fmt.Errorf("%s: unexpected status %d: %s", client, resp.StatusCode, debug.Truncate(string(raw), 300))
}

// IsSuccess reports whether the vendor returned a 2xx status.
func IsSuccess(resp *http.Response) bool {
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}
