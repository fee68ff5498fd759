package internal

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "autotest"

// registry is private so that library defaults never leak into /metrics.
var registry = prometheus.NewRegistry()

var (
	webhookEvents = promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "webhook_events_total",
		Help:      "Webhook deliveries by event kind and outcome.",
	}, []string{"event", "outcome"})

	publishErrors = promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "publish_errors_total",
		Help:      "Failed engine publishes by transport driver.",
	}, []string{"driver"})

	buildStreams = promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "build_streams_total",
		Help:      "Container build proxy requests by outcome.",
	}, []string{"outcome"})

	httpRequests = promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "http_requests_total",
		Help:      "HTTP requests by route and status code.",
	}, []string{"route", "status"})

	recoveries = promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "panics_recovered_total",
		Help:      "Panics recovered by the supervisor.",
	}, []string{"origin"})
)

func IncWebhookEvent(event, outcome string) {
	webhookEvents.WithLabelValues(event, outcome).Inc()
}

func IncPublishError(driver string) {
	publishErrors.WithLabelValues(driver).Inc()
}

func IncBuildStream(outcome string) {
	buildStreams.WithLabelValues(outcome).Inc()
}

func IncRecovery(origin string) {
	recoveries.WithLabelValues(origin).Inc()
}

// MetricsHandler serves the private registry in the Prometheus text format.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// InstrumentHandler counts requests served by next under the given route label.
func InstrumentHandler(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		defer func() {
			httpRequests.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
		}()
		next.ServeHTTP(rec, r)
	})
}

// statusRecorder remembers the status code while still letting streaming
// handlers flush.
type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (s *statusRecorder) WriteHeader(code int) {
	if !s.wroteHeader {
		s.status = code
		s.wroteHeader = true
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(p []byte) (int, error) {
	s.wroteHeader = true
	return s.ResponseWriter.Write(p)
}

func (s *statusRecorder) Flush() {
	if flusher, ok := s.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}
