package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// Registry is the dedicated Prometheus registry for the API
	Registry = prometheus.NewRegistry()
	// HTTPRequests counts requests by method, path, and status
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "path", "status"},
	)
	// HTTPDuration records request durations in seconds
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method", "path", "status"},
	)

	// AllocationRuns counts optimization runs by outcome
	AllocationRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "allocation_runs_total", Help: "Allocation runs by status."},
		[]string{"status"},
	)
	// SolveSeconds tracks wall time spent in the MILP solver
	SolveSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "allocation_solve_seconds", Help: "MILP solve time in seconds.", Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 30}},
		[]string{"status"},
	)
	// SolveNodes tracks branch-and-bound nodes per solve
	SolveNodes = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "allocation_bnb_nodes", Help: "Branch-and-bound nodes per solve.", Buckets: prometheus.ExponentialBuckets(1, 4, 8)},
	)

	// TravelTimeLookups counts lane duration lookups by provider and result (known, unknown, error)
	TravelTimeLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "travel_time_lookups_total", Help: "Travel-time lookups by provider and result."},
		[]string{"provider", "result"},
	)
	// TravelTimeCache counts cache hits and misses
	TravelTimeCache = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "travel_time_cache_total", Help: "Travel-time cache lookups by result."},
		[]string{"result"},
	)

	// WebhookDeliveries counts webhook delivery outcomes by event type and status
	WebhookDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "webhook_deliveries_total", Help: "Webhook deliveries by event type and status."},
		[]string{"event_type", "status"},
	)
	// WebhookLatency tracks webhook delivery latencies in milliseconds
	WebhookLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "webhook_delivery_latency_ms", Help: "Webhook delivery latency in ms.", Buckets: []float64{10, 50, 100, 200, 500, 1000, 2000, 5000}},
		[]string{"event_type", "status"},
	)

	// RunsPurged counts runs removed by the retention job
	RunsPurged = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "allocation_runs_purged_total", Help: "Runs removed by retention."},
	)
)

// RegisterDefault registers collectors to the default registry.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(HTTPRequests)
		Registry.MustRegister(HTTPDuration)
		Registry.MustRegister(AllocationRuns)
		Registry.MustRegister(SolveSeconds)
		Registry.MustRegister(SolveNodes)
		Registry.MustRegister(TravelTimeLookups)
		Registry.MustRegister(TravelTimeCache)
		Registry.MustRegister(WebhookDeliveries)
		Registry.MustRegister(WebhookLatency)
		Registry.MustRegister(RunsPurged)
		// Go/process collectors on our registry
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

var regOnce sync.Once
