// Package metrics collects Prometheus metrics for inference calls and the web surface.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the application's metrics. A nil *Collector is valid and records nothing.
type Collector struct {
	registry *prometheus.Registry

	inferenceRequestsTotal   *prometheus.CounterVec
	inferenceRequestDuration *prometheus.HistogramVec
	captionAttemptsTotal     *prometheus.CounterVec
	captionResultsTotal      *prometheus.CounterVec
	httpRequestsTotal        *prometheus.CounterVec
}

// NewCollector creates a collector backed by its own registry.
func NewCollector(namespace string) *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	c := &Collector{registry: reg}

	c.inferenceRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inference_requests_total",
			Help:      "Total number of hosted inference requests",
		},
		[]string{"model", "status"},
	)

	c.inferenceRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "inference_request_duration_seconds",
			Help:      "Hosted inference request duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"model"},
	)

	c.captionAttemptsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "caption_attempts_total",
			Help:      "Caption attempts by outcome (ok, retryable, terminal)",
		},
		[]string{"outcome"},
	)

	c.captionResultsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "caption_results_total",
			Help:      "Caption requests by final result (ok, exhausted)",
		},
		[]string{"result"},
	)

	c.httpRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of UI HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	return c
}

// RecordInference records one hosted inference request.
func (c *Collector) RecordInference(model, status string, duration time.Duration) {
	if c == nil {
		return
	}
	c.inferenceRequestsTotal.WithLabelValues(model, status).Inc()
	c.inferenceRequestDuration.WithLabelValues(model).Observe(duration.Seconds())
}

// RecordCaptionAttempt records the outcome of a single caption attempt.
func (c *Collector) RecordCaptionAttempt(outcome string) {
	if c == nil {
		return
	}
	c.captionAttemptsTotal.WithLabelValues(outcome).Inc()
}

// RecordCaptionResult records the final result of a caption request.
func (c *Collector) RecordCaptionResult(result string) {
	if c == nil {
		return
	}
	c.captionResultsTotal.WithLabelValues(result).Inc()
}

// RecordHTTPRequest records a request served by the UI.
func (c *Collector) RecordHTTPRequest(method, path string, status int) {
	if c == nil {
		return
	}
	c.httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
}

// Handler exposes the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
