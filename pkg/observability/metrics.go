package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "ssohub"

// Metrics holds all Prometheus metrics
type Metrics struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec

	// Single logout
	SLORequestsTotal    *prometheus.CounterVec
	SLODeliveryDuration *prometheus.HistogramVec
	SLOExecutionsTotal  *prometheus.CounterVec
	SessionsTerminated  prometheus.Counter

	EventDeliveriesTotal    *prometheus.CounterVec
	DirectoryCacheLookups   *prometheus.CounterVec
	RegistryOperationsTotal *prometheus.CounterVec
}

// NewMetrics creates the metrics and registers them on registry. A nil
// registry leaves them unregistered, which tests use.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	f := promauto.With(registry)

	counter := func(subsystem, name, help string, labels ...string) *prometheus.CounterVec {
		return f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: subsystem,
			Name:      name,
			Help:      help,
		}, labels)
	}

	return &Metrics{
		HTTPRequestsTotal: counter("http", "requests_total",
			"HTTP requests by method, route and status code", "method", "path", "status"),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by method and route",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
		HTTPResponseSize: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "http",
			Name:      "response_size_bytes",
			Help:      "HTTP response body size by method and route",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 6),
		}, []string{"method", "path"}),

		SLORequestsTotal: counter("slo", "requests_total",
			"Logout request contexts produced, by logout type and final status", "logout_type", "status"),
		SLODeliveryDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "slo",
			Name:      "delivery_duration_seconds",
			Help:      "Back-channel logout delivery latency by protocol",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"protocol"}),
		SLOExecutionsTotal: counter("slo", "executions_total",
			"Single logout executions by outcome", "outcome"),
		SessionsTerminated: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "sessions_terminated_total",
			Help:      "SSO sessions removed from the registry",
		}),

		EventDeliveriesTotal: counter("event", "deliveries_total",
			"Event webhook deliveries by event type and outcome", "event_type", "status"),
		DirectoryCacheLookups: counter("directory", "cache_lookups_total",
			"Service directory cache lookups by result", "result"),
		RegistryOperationsTotal: counter("registry", "operations_total",
			"Ticket registry operations by operation and status", "operation", "status"),
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	size   int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	n, err := s.ResponseWriter.Write(b)
	s.size += n
	return n, err
}

// PathLabeler maps a request to the path label recorded on HTTP metrics.
// Routers supply one that returns the route template so session IDs do not
// explode label cardinality.
type PathLabeler func(r *http.Request) string

// HTTPMetricsMiddleware records request count, latency and response size
func HTTPMetricsMiddleware(metrics *Metrics, label PathLabeler) func(http.Handler) http.Handler {
	if label == nil {
		label = func(r *http.Request) string { return r.URL.Path }
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := &statusRecorder{ResponseWriter: w}
			start := time.Now()
			next.ServeHTTP(rec, r)
			elapsed := time.Since(start)

			if rec.status == 0 {
				rec.status = http.StatusOK
			}
			path := label(r)
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(rec.status)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(elapsed.Seconds())
			metrics.HTTPResponseSize.WithLabelValues(r.Method, path).Observe(float64(rec.size))
		})
	}
}

// MetricsHandler returns the /metrics handler for the registry
func MetricsHandler(registry *prometheus.Registry) http.Handler {
	return promhttp.InstrumentMetricHandler(registry, promhttp.HandlerFor(registry, promhttp.HandlerOpts{
		ErrorHandling: promhttp.ContinueOnError,
	}))
}
