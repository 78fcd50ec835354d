// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ProviderRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "signalledger_provider_requests_total", Help: "Provider lookups by outcome"},
		[]string{"provider", "outcome"},
	)
	ProviderLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "signalledger_provider_latency_seconds",
			Help:    "Provider lookup latency",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"provider"},
	)
	CacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "signalledger_cache_lookups_total", Help: "Resolution cache lookups"},
		[]string{"result"},
	)
	Resolutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "signalledger_resolutions_total", Help: "Resolver outcomes"},
		[]string{"outcome"},
	)
	LedgerOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "signalledger_ledger_operations_total", Help: "Ledger operations by kind and result"},
		[]string{"op", "result"},
	)
	ActivePositions = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "signalledger_active_positions", Help: "Positions currently ACTIVE"},
	)
	SignalsIngested = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "signalledger_signals_ingested_total", Help: "Signals ingested by source"},
		[]string{"source"},
	)
	SnapshotSaves = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "signalledger_snapshot_saves_total", Help: "Ledger snapshot saves by backend and result"},
		[]string{"backend", "result"},
	)
)

func init() {
	prometheus.MustRegister(
		ProviderRequests, ProviderLatency, CacheLookups, Resolutions,
		LedgerOps, ActivePositions, SignalsIngested, SnapshotSaves,
	)
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Result maps an error to the "ok"/"error" label value.
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
