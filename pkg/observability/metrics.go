package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Registry metrics
	RegistryOperationsTotal  *prometheus.CounterVec
	RegistryOperationErrors  *prometheus.CounterVec
	RegistryOperationSeconds *prometheus.HistogramVec

	// Federated authentication metrics
	FederatedAuthTotal   *prometheus.CounterVec
	FederatedAuthSeconds *prometheus.HistogramVec

	// Cache metrics
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fedbroker_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fedbroker_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		RegistryOperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fedbroker_registry_operations_total",
				Help: "Total number of registry operations",
			},
			[]string{"resource", "operation", "status"},
		),
		RegistryOperationErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fedbroker_registry_operation_errors_total",
				Help: "Total number of failed registry operations",
			},
			[]string{"resource", "operation", "error_type"},
		),
		RegistryOperationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fedbroker_registry_operation_duration_seconds",
				Help:    "Registry operation duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"resource", "operation"},
		),
		FederatedAuthTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fedbroker_federated_auth_total",
				Help: "Total number of federated authentication attempts",
			},
			[]string{"protocol", "outcome"},
		),
		FederatedAuthSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fedbroker_federated_auth_duration_seconds",
				Help:    "Federated authentication duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"protocol"},
		),
		CacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fedbroker_cache_hits_total",
				Help: "Total number of cache hits",
			},
			[]string{"tier"},
		),
		CacheMissesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fedbroker_cache_misses_total",
				Help: "Total number of cache misses",
			},
			[]string{"tier"},
		),
		registry: registry,
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.RegistryOperationsTotal,
		m.RegistryOperationErrors,
		m.RegistryOperationSeconds,
		m.FederatedAuthTotal,
		m.FederatedAuthSeconds,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
	)

	return m
}

// Handler returns an HTTP handler exposing the metrics registry
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveHTTPRequest records a completed HTTP request
func (m *Metrics) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// ObserveRegistryOperation records a registry operation and its outcome
func (m *Metrics) ObserveRegistryOperation(resource, operation, status string, duration time.Duration) {
	m.RegistryOperationsTotal.WithLabelValues(resource, operation, status).Inc()
	m.RegistryOperationSeconds.WithLabelValues(resource, operation).Observe(duration.Seconds())
}

// ObserveRegistryError records a failed registry operation by error type
func (m *Metrics) ObserveRegistryError(resource, operation, errorType string) {
	m.RegistryOperationErrors.WithLabelValues(resource, operation, errorType).Inc()
}

// ObserveFederatedAuth records a federated authentication attempt
func (m *Metrics) ObserveFederatedAuth(protocol, outcome string, duration time.Duration) {
	m.FederatedAuthTotal.WithLabelValues(protocol, outcome).Inc()
	m.FederatedAuthSeconds.WithLabelValues(protocol).Observe(duration.Seconds())
}
