// Package metrics exposes prometheus metrics for runs, frames and clients.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "agentflow"

// Metrics holds every collector of the server on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	RunsStarted   *prometheus.CounterVec
	RunsFinished  *prometheus.CounterVec
	RunsActive    prometheus.Gauge
	RunDuration   *prometheus.HistogramVec
	Transitions   *prometheus.CounterVec
	FramesDropped prometheus.Counter
	RunsBlocked   *prometheus.CounterVec
	ClientsActive prometheus.Gauge
	JournalErrors prometheus.Counter
}

// New creates and registers all collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		RunsStarted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "runs",
				Name:      "started_total",
				Help:      "Total number of runs started",
			},
			[]string{"run_key", "mode"},
		),

		RunsFinished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "runs",
				Name:      "finished_total",
				Help:      "Total number of runs finished, by final state",
			},
			[]string{"run_key", "state"},
		),

		RunsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "runs",
				Name:      "active",
				Help:      "Number of runs currently running",
			},
		),

		RunDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "runs",
				Name:      "duration_seconds",
				Help:      "Wall-clock run duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"run_key"},
		),

		Transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "engine",
				Name:      "transitions_total",
				Help:      "Total number of run transitions",
			},
			[]string{"type"},
		),

		FramesDropped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "stream",
				Name:      "frames_dropped_total",
				Help:      "Total number of stream frames dropped as protocol violations",
			},
		),

		RunsBlocked: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "policy",
				Name:      "blocked_total",
				Help:      "Total number of run triggers refused by policy",
			},
			[]string{"run_key"},
		),

		ClientsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "ws",
				Name:      "clients",
				Help:      "Number of connected websocket clients",
			},
		),

		JournalErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "journal",
				Name:      "errors_total",
				Help:      "Total number of failed journal writes",
			},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.RunsStarted,
		m.RunsFinished,
		m.RunsActive,
		m.RunDuration,
		m.Transitions,
		m.FramesDropped,
		m.RunsBlocked,
		m.ClientsActive,
		m.JournalErrors,
	)
	return m
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
