package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// Registry is the dedicated Prometheus registry for the API.
	Registry = prometheus.NewRegistry()

	// HTTPRequests counts requests by method, path, and status.
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "path", "status"},
	)
	// HTTPDuration records request durations in seconds.
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method", "path", "status"},
	)

	// SolveDuration tracks per-strategy solver wall time by terminal status.
	SolveDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "solve_duration_seconds", Help: "Strategy solve duration by status.", Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 30, 60}},
		[]string{"status"},
	)
	// PlansProduced counts plans per strategy name.
	PlansProduced = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "plans_produced_total", Help: "Plans produced per weight strategy."},
		[]string{"strategy"},
	)
	// RunsStarted counts recovery runs accepted by the API.
	RunsStarted = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "recovery_runs_total", Help: "Recovery runs started."},
	)
	// RestrictionRows counts catalogue load outcomes.
	RestrictionRows = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "restriction_rows_total", Help: "Restriction rows by load outcome."},
		[]string{"outcome"}, // accepted, skipped
	)

	// WebhookDeliveries counts webhook delivery outcomes by event type and status.
	WebhookDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "webhook_deliveries_total", Help: "Webhook deliveries by event type and status."},
		[]string{"event_type", "status"},
	)
	// WebhookLatency tracks webhook delivery latencies in milliseconds.
	WebhookLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "webhook_delivery_latency_ms", Help: "Webhook delivery latency in ms.", Buckets: []float64{10, 50, 100, 200, 500, 1000, 2000, 5000}},
		[]string{"event_type", "status"},
	)
)

// RegisterDefault registers collectors to the package registry.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(HTTPRequests)
		Registry.MustRegister(HTTPDuration)
		Registry.MustRegister(SolveDuration)
		Registry.MustRegister(PlansProduced)
		Registry.MustRegister(RunsStarted)
		Registry.MustRegister(RestrictionRows)
		Registry.MustRegister(WebhookDeliveries)
		Registry.MustRegister(WebhookLatency)
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

var regOnce sync.Once
