// Package metrics exposes Prometheus counters and gauges for the sync
// round lifecycle. Grounded on
// internal/ha's health-check accounting, recast with a real Prometheus
// registry the way orbas1-Synnergy's core.HealthLogger builds one,
// replacing the teacher's hand-rolled /proc-scraping text exporter.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is the process-wide registry of sync-engine gauges and counters.
type Metrics struct {
	Registry *prometheus.Registry

	ReportsTotal          prometheus.Counter
	SyncRoundsTotal        *prometheus.CounterVec
	SyncRoundDuration      *prometheus.HistogramVec
	PeerForwardCursorAge   *prometheus.GaugeVec
	PeerBackwardCursorAge  *prometheus.GaugeVec
}

// New builds and registers the sync engine's Prometheus collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,
		ReportsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "meshnode_reports_total",
			Help: "Total location reports accepted into the store, from ingest or peer pull.",
		}),
		SyncRoundsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "meshnode_sync_rounds_total",
			Help: "Completed per-peer sync rounds, labeled by peer and outcome.",
		}, []string{"peer", "outcome"}),
		SyncRoundDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "meshnode_sync_round_duration_seconds",
			Help:    "Wall-clock duration of one per-peer sync round.",
			Buckets: prometheus.DefBuckets,
		}, []string{"peer"}),
		PeerForwardCursorAge: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "meshnode_peer_forward_cursor_age_ms",
			Help: "Milliseconds between now and a peer's forward cursor.",
		}, []string{"peer"}),
		PeerBackwardCursorAge: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "meshnode_peer_backward_cursor_age_ms",
			Help: "Milliseconds between a peer's backward cursor and zero.",
		}, []string{"peer"}),
	}

	reg.MustRegister(
		m.ReportsTotal,
		m.SyncRoundsTotal,
		m.SyncRoundDuration,
		m.PeerForwardCursorAge,
		m.PeerBackwardCursorAge,
	)
	return m
}
