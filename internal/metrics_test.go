package internal

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestInstrumentHandlerCountsStatus(t *testing.T) {
	before := testutil.ToFloat64(httpRequests.WithLabelValues("test-route", "418"))

	handler := InstrumentHandler("test-route", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		w.WriteHeader(http.StatusOK)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if got := testutil.ToFloat64(httpRequests.WithLabelValues("test-route", "418")); got != before+1 {
		t.Fatalf("expected counter to increase by one, got %v -> %v", before, got)
	}
}

func TestInstrumentHandlerKeepsFlusher(t *testing.T) {
	handler := InstrumentHandler("flush", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := w.(http.Flusher); !ok {
			t.Fatalf("expected wrapped writer to implement http.Flusher")
		}
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
}

func TestMetricsHandlerExposesCounters(t *testing.T) {
	IncWebhookEvent("push", "handled")

	rec := httptest.NewRecorder()
	MetricsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if !strings.Contains(rec.Body.String(), "autotest_webhook_events_total") {
		t.Fatalf("expected webhook counter in output")
	}
}
