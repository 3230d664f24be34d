package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Registry holds all Prometheus metrics.
type Registry struct {
	*prometheus.Registry

	// HTTP metrics
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight prometheus.Gauge

	// Dashboard metrics
	cyclesTotal         *prometheus.CounterVec
	cycleDuration       prometheus.Histogram
	cyclesSkipped       *prometheus.CounterVec
	fetchTotal          *prometheus.CounterVec
	controlTotal        *prometheus.CounterVec
	activeSymbolChanges prometheus.Counter
}

// NewRegistry creates a new metrics registry with all metrics registered.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	// Register Go runtime metrics
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &Registry{
		Registry: reg,

		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),

		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		httpRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently in flight",
			},
		),
	}

	reg.MustRegister(r.httpRequestsTotal)
	reg.MustRegister(r.httpRequestDuration)
	reg.MustRegister(r.httpRequestsInFlight)

	// Dashboard metrics
	r.cyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradewatch_cycles_total",
			Help: "Total number of refresh cycles by result",
		},
		[]string{"result"},
	)
	r.cycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tradewatch_cycle_duration_seconds",
			Help:    "Refresh cycle duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
	)
	r.cyclesSkipped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradewatch_cycles_skipped_total",
			Help: "Triggers dropped because a cycle was in flight",
		},
		[]string{"trigger"},
	)
	r.fetchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradewatch_fetch_total",
			Help: "Backend fetches by resource and outcome",
		},
		[]string{"resource", "outcome"},
	)
	r.controlTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradewatch_control_total",
			Help: "Control requests by action and status",
		},
		[]string{"action", "status"},
	)
	r.activeSymbolChanges = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tradewatch_active_symbol_changes_total",
			Help: "Total number of active symbol changes",
		},
	)

	reg.MustRegister(r.cyclesTotal)
	reg.MustRegister(r.cycleDuration)
	reg.MustRegister(r.cyclesSkipped)
	reg.MustRegister(r.fetchTotal)
	reg.MustRegister(r.controlTotal)
	reg.MustRegister(r.activeSymbolChanges)

	return r
}

// RecordRequest records metrics for an HTTP request.
func (r *Registry) RecordRequest(method, path string, status int, duration float64) {
	statusStr := statusToString(status)
	r.httpRequestsTotal.WithLabelValues(method, path, statusStr).Inc()
	r.httpRequestDuration.WithLabelValues(method, path).Observe(duration)
}

// InFlightInc increments in-flight requests.
func (r *Registry) InFlightInc() {
	r.httpRequestsInFlight.Inc()
}

// InFlightDec decrements in-flight requests.
func (r *Registry) InFlightDec() {
	r.httpRequestsInFlight.Dec()
}

// RecordCycle records a finished refresh cycle.
func (r *Registry) RecordCycle(result string, duration float64) {
	r.cyclesTotal.WithLabelValues(result).Inc()
	r.cycleDuration.Observe(duration)
}

// RecordSkipped records a trigger dropped while a cycle was running.
func (r *Registry) RecordSkipped(trigger string) {
	r.cyclesSkipped.WithLabelValues(trigger).Inc()
}

// RecordFetch records one backend read.
func (r *Registry) RecordFetch(resource, outcome string) {
	r.fetchTotal.WithLabelValues(resource, outcome).Inc()
}

// RecordControl records a pause/resume request.
func (r *Registry) RecordControl(action, status string) {
	r.controlTotal.WithLabelValues(action, status).Inc()
}

// RecordSymbolChange records a change of the active symbol.
func (r *Registry) RecordSymbolChange() {
	r.activeSymbolChanges.Inc()
}

func statusToString(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	case status >= 200:
		return "2xx"
	default:
		return "1xx"
	}
}
