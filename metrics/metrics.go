// Package metrics holds the proxy's Prometheus collectors. All collectors
// live on a private registry so tests can build as many Metrics values as
// they like without duplicate-registration panics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Forward outcome labels.
const (
	OutcomeOK         = "ok"
	OutcomeNoBackends = "no_backends"
	OutcomeAllDown    = "all_down"
)

// Probe and replay result labels.
const (
	ResultOK   = "ok"
	ResultFail = "fail"
)

// Metrics bundles every collector the proxy exports.
type Metrics struct {
	registry *prometheus.Registry

	ForwardsTotal    *prometheus.CounterVec
	ForwardDuration  prometheus.Histogram
	SendFailures     prometheus.Counter
	ProbesTotal      *prometheus.CounterVec
	ReplaysTotal     *prometheus.CounterVec
	JournalEntries   prometheus.Gauge
	ConnectedClients prometheus.Gauge
}

// New creates and registers all collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		ForwardsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "msgproxy_forwards_total",
			Help: "Forwarded requests by outcome.",
		}, []string{"outcome"}),
		ForwardDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "msgproxy_forward_duration_seconds",
			Help:    "End-to-end forward latency including retries and failover.",
			Buckets: prometheus.DefBuckets,
		}),
		SendFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "msgproxy_backend_send_failures_total",
			Help: "Per-replica send attempts that exhausted their retries.",
		}),
		ProbesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "msgproxy_heartbeat_probes_total",
			Help: "Heartbeat probes by result.",
		}, []string{"result"}),
		ReplaysTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "msgproxy_journal_replays_total",
			Help: "Journal replays to recovering replicas by result.",
		}, []string{"result"}),
		JournalEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "msgproxy_journal_entries",
			Help: "Current journal length.",
		}),
		ConnectedClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "msgproxy_connected_clients",
			Help: "Client sessions registered for server-initiated push.",
		}),
	}

	reg.MustRegister(
		m.ForwardsTotal,
		m.ForwardDuration,
		m.SendFailures,
		m.ProbesTotal,
		m.ReplaysTotal,
		m.JournalEntries,
		m.ConnectedClients,
	)
	return m
}

// Handler returns the exposition endpoint for this Metrics' registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
