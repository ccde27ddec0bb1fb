// Package telemetry exposes the module's prometheus collectors. All
// collectors live on a private registry so embedding applications never
// collide with the default one.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "peermon"

// Probe outcomes used as the "result" label on PingsTotal.
const (
	ResultSuccess  = "success"
	ResultTimeout  = "timeout"
	ResultRejected = "rejected"
	ResultError    = "error"
)

var (
	// Registry holds every collector of this package.
	Registry = prometheus.NewRegistry()

	PingsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pings_total",
			Help:      "Probes sent, labelled by outcome.",
		},
		[]string{"result"},
	)

	PingLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ping_latency_seconds",
			Help:      "Round-trip time of successful probes.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
		},
	)

	PeersOnline = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "peers_online",
			Help:      "Peers currently marked online, per group.",
		},
		[]string{"group"},
	)

	MonitorRounds = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "monitor_rounds_total",
			Help:      "Liveness rounds completed, per group.",
		},
		[]string{"group"},
	)

	DiagnosticsRuns = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "diagnostics_runs_total",
			Help:      "Diagnostics runs completed.",
		},
	)

	ShareEchoes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "share_echoes_total",
			Help:      "Provisioning echoes observed.",
		},
	)
)

func init() {
	Registry.MustRegister(
		PingsTotal,
		PingLatency,
		PeersOnline,
		MonitorRounds,
		DiagnosticsRuns,
		ShareEchoes,
	)
}

// ObservePing records one probe outcome.
func ObservePing(result string, latencySeconds float64) {
	PingsTotal.WithLabelValues(result).Inc()
	if result == ResultSuccess {
		PingLatency.Observe(latencySeconds)
	}
}

// MetricsHandler serves the registry in the prometheus text format.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
