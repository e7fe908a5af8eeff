// Package metrics provides the Prometheus collectors of the roster service.
package metrics

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/shift-roster/internal/shift"
)

const namespace = "roster"

// Metrics holds every collector exposed on /metrics.
type Metrics struct {
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	statusTransitions   *prometheus.CounterVec
	snapshotAttempts    *prometheus.CounterVec
	lastSnapshotSaved   prometheus.Gauge

	registry *prometheus.Registry
}

// New creates the collectors and registers them on registry. A nil registry
// gets a fresh one with the Go and process collectors.
func New(registry *prometheus.Registry) (*Metrics, error) {
	if registry == nil {
		registry = prometheus.NewRegistry()
		if err := registry.Register(collectors.NewGoCollector()); err != nil {
			return nil, fmt.Errorf("failed to register go collector: %w", err)
		}
		if err := registry.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
			return nil, fmt.Errorf("failed to register process collector: %w", err)
		}
	}

	m := &Metrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register roster metrics: %w", err)
	}
	return m, nil
}

func (m *Metrics) initMetrics() {
	m.httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests by method, route and status code",
		},
		[]string{"method", "route", "status"},
	)

	m.httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method and route",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"method", "route"},
	)

	m.statusTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "status_transitions_total",
			Help:      "Roster status changes persisted while reconciling, by previous and new status",
		},
		[]string{"from", "to"},
	)

	m.snapshotAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshot_attempts_total",
			Help:      "Daily snapshot attempts by outcome",
		},
		[]string{"outcome"}, // saved, pending, already_recorded, empty, error
	)

	m.lastSnapshotSaved = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_snapshot_saved_timestamp_seconds",
			Help:      "Unix time of the last saved daily snapshot",
		},
	)
}

// Describe implements prometheus.Collector.
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	m.httpRequestsTotal.Describe(ch)
	m.httpRequestDuration.Describe(ch)
	m.statusTransitions.Describe(ch)
	m.snapshotAttempts.Describe(ch)
	m.lastSnapshotSaved.Describe(ch)
}

// Collect implements prometheus.Collector.
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	m.httpRequestsTotal.Collect(ch)
	m.httpRequestDuration.Collect(ch)
	m.statusTransitions.Collect(ch)
	m.snapshotAttempts.Collect(ch)
	m.lastSnapshotSaved.Collect(ch)
}

// ObserveTransition counts one persisted status change.
func (m *Metrics) ObserveTransition(from, to shift.Status) {
	if m == nil {
		return
	}
	if from == "" {
		from = "unknown"
	}
	m.statusTransitions.WithLabelValues(string(from), string(to)).Inc()
}

// ObserveSnapshot counts one snapshot attempt.
func (m *Metrics) ObserveSnapshot(outcome string) {
	if m == nil {
		return
	}
	m.snapshotAttempts.WithLabelValues(outcome).Inc()
	if outcome == "saved" {
		m.lastSnapshotSaved.SetToCurrentTime()
	}
}

// ObserveRequest records one served HTTP request. route is the matched
// pattern, never the raw path.
func (m *Metrics) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
