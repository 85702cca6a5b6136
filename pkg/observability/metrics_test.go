package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// TestMetricsRegistered verifies that all metrics are registered in the
// default registry and become visible once observed.
func TestMetricsRegistered(t *testing.T) {
	// Seed every metric so counters and histograms appear in Gather.
	RequestsTotal.WithLabelValues("GET", "/healthz", "2xx").Inc()
	RequestDuration.WithLabelValues("GET", "/healthz").Observe(0.1)
	StreamingConnections.Inc()
	StreamingConnections.Dec()
	RecordProviderCall("openai", "gpt-4o", "ok", 0.5, 10, 5)

	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("unexpected gather error: %v", err)
	}

	expected := map[string]bool{
		"polygate_requests_total":                false,
		"polygate_request_duration_seconds":      false,
		"polygate_streaming_connections_active":  false,
		"polygate_provider_requests_total":       false,
		"polygate_provider_latency_seconds":      false,
		"polygate_provider_tokens_total":         false,
	}
	for _, mf := range families {
		if _, ok := expected[mf.GetName()]; ok {
			expected[mf.GetName()] = true
		}
	}
	for name, seen := range expected {
		if !seen {
			t.Errorf("metric %s not registered", name)
		}
	}
}

func counterValue(t *testing.T, vec *prometheus.CounterVec, labels ...string) float64 {
	t.Helper()
	var m dto.Metric
	c, err := vec.GetMetricWithLabelValues(labels...)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Write(&m); err != nil {
		t.Fatal(err)
	}
	return m.GetCounter().GetValue()
}

func TestMetricsMiddleware(t *testing.T) {
	handler := MetricsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	before := counterValue(t, RequestsTotal, "POST", "/v1/other", "4xx")

	req := httptest.NewRequest(http.MethodPost, "/v1/other", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	after := counterValue(t, RequestsTotal, "POST", "/v1/other", "4xx")
	if after != before+1 {
		t.Errorf("requests_total = %v, want %v", after, before+1)
	}
}

func TestRecordProviderCallTokenDirections(t *testing.T) {
	inBefore := counterValue(t, ProviderTokensTotal, "claude", "claude-3-5-sonnet", "input")
	outBefore := counterValue(t, ProviderTokensTotal, "claude", "claude-3-5-sonnet", "output")

	RecordProviderCall("claude", "claude-3-5-sonnet", "ok", 1.2, 7, 3)

	if got := counterValue(t, ProviderTokensTotal, "claude", "claude-3-5-sonnet", "input"); got != inBefore+7 {
		t.Errorf("input tokens = %v, want %v", got, inBefore+7)
	}
	if got := counterValue(t, ProviderTokensTotal, "claude", "claude-3-5-sonnet", "output"); got != outBefore+3 {
		t.Errorf("output tokens = %v, want %v", got, outBefore+3)
	}
}
