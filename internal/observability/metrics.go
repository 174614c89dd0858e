package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Upstream health states reported via SetUpstreamState.
var upstreamStates = []string{"connected", "reconnecting", "failed"}

// Metrics bundles Prometheus collectors for the daemon.
type Metrics struct {
	registry        *prometheus.Registry
	Requests        *prometheus.CounterVec
	Duration        *prometheus.HistogramVec
	ActiveConns     prometheus.Gauge
	FramingErrs     *prometheus.CounterVec
	UpstreamRetries prometheus.Counter
	UpstreamState   *prometheus.GaugeVec
}

// NewMetrics constructs a metrics registry with daemon collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	reqs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fgp_vercel_requests_total",
		Help: "Requests dispatched, by method and outcome (ok or error kind)",
	}, []string{"method", "outcome"})

	durs := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fgp_vercel_request_duration_seconds",
		Help:    "Request handling duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method"})

	conns := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "fgp_vercel_active_connections",
		Help: "Open local socket connections",
	})

	framing := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fgp_vercel_framing_errors_total",
		Help: "Frame-level failures by reason",
	}, []string{"reason"})

	retries := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fgp_vercel_upstream_retries_total",
		Help: "Upstream transport failures that triggered the bounded retry",
	})

	state := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "fgp_vercel_upstream_state",
		Help: "Upstream connection health (1 for the current state)",
	}, []string{"state"})

	reg.MustRegister(reqs, durs, conns, framing, retries, state)

	return &Metrics{
		registry:        reg,
		Requests:        reqs,
		Duration:        durs,
		ActiveConns:     conns,
		FramingErrs:     framing,
		UpstreamRetries: retries,
		UpstreamState:   state,
	}
}

// Registry returns the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an HTTP handler exporting the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordRequest records one dispatched request.
func (m *Metrics) RecordRequest(method, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	if method == "" {
		method = "unknown"
	}
	m.Requests.WithLabelValues(method, outcome).Inc()
	m.Duration.WithLabelValues(method).Observe(duration.Seconds())
}

// IncConnections increments the open connection gauge.
func (m *Metrics) IncConnections() {
	if m == nil {
		return
	}
	m.ActiveConns.Inc()
}

// DecConnections decrements the open connection gauge.
func (m *Metrics) DecConnections() {
	if m == nil {
		return
	}
	m.ActiveConns.Dec()
}

// RecordFramingError records a frame-level failure.
func (m *Metrics) RecordFramingError(reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "unknown"
	}
	m.FramingErrs.WithLabelValues(reason).Inc()
}

// RecordUpstreamRetry counts one bounded retry attempt.
func (m *Metrics) RecordUpstreamRetry() {
	if m == nil {
		return
	}
	m.UpstreamRetries.Inc()
}

// SetUpstreamState marks the current upstream health state.
func (m *Metrics) SetUpstreamState(current string) {
	if m == nil {
		return
	}
	for _, s := range upstreamStates {
		v := 0.0
		if s == current {
			v = 1.0
		}
		m.UpstreamState.WithLabelValues(s).Set(v)
	}
}
