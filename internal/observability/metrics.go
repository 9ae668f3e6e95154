package observability

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "chat_gateway"

// Metrics collects provider attempt counters.
type Metrics interface {
	RecordRequest(ctx context.Context, labels RequestLabels)
	RecordError(ctx context.Context, labels RequestLabels)
}

// RequestLabels contains metric dimensions.
type RequestLabels struct {
	Provider string
	Variant  string
}

// PrometheusMetrics implements Metrics on a dedicated registry
type PrometheusMetrics struct {
	registry *prometheus.Registry
	requests *prometheus.CounterVec
	errors   *prometheus.CounterVec
}

// NewPrometheusMetrics creates and registers the gateway collectors. Go
// runtime and process collectors are registered alongside.
func NewPrometheusMetrics() *PrometheusMetrics {
	registry := prometheus.NewRegistry()
	m := &PrometheusMetrics{
		registry: registry,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_requests_total",
			Help:      "Chat attempts per provider.",
		}, []string{"provider", "variant"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_errors_total",
			Help:      "Failed chat attempts per provider.",
		}, []string{"provider", "variant"}),
	}
	registry.MustRegister(
		m.requests,
		m.errors,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// RecordRequest increments the request counter
func (m *PrometheusMetrics) RecordRequest(_ context.Context, labels RequestLabels) {
	m.requests.WithLabelValues(labels.Provider, labels.Variant).Inc()
}

// RecordError increments the error counter
func (m *PrometheusMetrics) RecordError(_ context.Context, labels RequestLabels) {
	m.errors.WithLabelValues(labels.Provider, labels.Variant).Inc()
}

// Registry exposes the underlying registry
func (m *PrometheusMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the /metrics exporter
func (m *PrometheusMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// NoopMetrics discards everything
type NoopMetrics struct{}

func (NoopMetrics) RecordRequest(context.Context, RequestLabels) {}
func (NoopMetrics) RecordError(context.Context, RequestLabels)   {}
