// File: control/metrics.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Runtime metrics collector for sessions and command dispatch.
// All recording methods are safe on a nil *Metrics.

package control

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/momentics/hioload-session/api"
)

// MetricsConfig configures the Prometheus collectors.
type MetricsConfig struct {
	Namespace   string
	Subsystem   string
	ConstLabels prometheus.Labels

	// Registry receives the collectors. A private registry is created
	// when nil.
	Registry prometheus.Registerer
}

// MetricsOption customizes MetricsConfig.
type MetricsOption func(*MetricsConfig)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Namespace = namespace
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) MetricsOption {
	return func(c *MetricsConfig) {
		c.ConstLabels = labels
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) MetricsOption {
	return func(c *MetricsConfig) {
		c.Registry = registry
	}
}

// Metrics holds the session-level collectors.
type Metrics struct {
	gatherer prometheus.Gatherer

	sessionsActive   prometheus.Gauge
	sessionsTotal    prometheus.Counter
	sessionsClosed   *prometheus.CounterVec
	commands         *prometheus.CounterVec
	sendRejected     prometheus.Counter
	requestsRejected prometheus.Counter
}

// NewMetrics creates and registers the collectors.
func NewMetrics(opts ...MetricsOption) *Metrics {
	cfg := MetricsConfig{Namespace: "hioload"}
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.Registry == nil {
		cfg.Registry = prometheus.NewRegistry()
	}
	factory := promauto.With(cfg.Registry)
	m := &Metrics{
		sessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        "sessions_active",
			Help:        "Number of connected sessions",
			ConstLabels: cfg.ConstLabels,
		}),
		sessionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        "sessions_total",
			Help:        "Total number of accepted sessions",
			ConstLabels: cfg.ConstLabels,
		}),
		sessionsClosed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        "sessions_closed_total",
			Help:        "Closed sessions by close reason",
			ConstLabels: cfg.ConstLabels,
		}, []string{"reason"}),
		commands: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        "commands_total",
			Help:        "Dispatched commands by result",
			ConstLabels: cfg.ConstLabels,
		}, []string{"result"}),
		sendRejected: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        "send_rejected_total",
			Help:        "TrySend calls that were not accepted",
			ConstLabels: cfg.ConstLabels,
		}),
		requestsRejected: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        "requests_rejected_total",
			Help:        "Inbound data rejected by the pipeline",
			ConstLabels: cfg.ConstLabels,
		}),
	}
	if g, ok := cfg.Registry.(prometheus.Gatherer); ok {
		m.gatherer = g
	}
	return m
}

// Handler serves the collectors in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// SessionOpened records an accepted session.
func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.sessionsTotal.Inc()
	m.sessionsActive.Inc()
}

// SessionClosed records a closed session.
func (m *Metrics) SessionClosed(reason api.CloseReason) {
	if m == nil {
		return
	}
	m.sessionsActive.Dec()
	m.sessionsClosed.WithLabelValues(reason.String()).Inc()
}

// CommandExecuted records a dispatched command.
func (m *Metrics) CommandExecuted(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.commands.WithLabelValues(result).Inc()
}

// SendRejected records a TrySend that returned false.
func (m *Metrics) SendRejected() {
	if m == nil {
		return
	}
	m.sendRejected.Inc()
}

// RequestRejected records inbound data the pipeline refused.
func (m *Metrics) RequestRejected() {
	if m == nil {
		return
	}
	m.requestsRejected.Inc()
}
