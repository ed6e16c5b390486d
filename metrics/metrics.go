// Package metrics exposes Prometheus counters and gauges for the
// failure-detector and consensus activity of every node in this
// process, mirroring the teacher pack's telemetry.Registry pattern
// (a private registry plus package-level CounterVec/GaugeVec
// instances labeled by node address instead of HTTP "op").
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Registry = prometheus.NewRegistry()

	SuspicionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fdnode",
			Name:      "suspicions_total",
			Help:      "Total healthy-to-suspected transitions observed by a node's failure detector.",
		},
		[]string{"node", "peer"},
	)

	RecoveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fdnode",
			Name:      "recoveries_total",
			Help:      "Total suspected-to-healthy transitions observed by a node's failure detector.",
		},
		[]string{"node", "peer"},
	)

	SuspectedGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "fdnode",
			Name:      "suspected_peers",
			Help:      "Current number of peers a node's failure detector believes have crashed.",
		},
		[]string{"node"},
	)

	ConsensusRoundsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fdnode",
			Name:      "consensus_rounds_total",
			Help:      "Total consensus runs started through a node's StartConsensus; rounds advanced after a coordinator failure or a RequestConsensus are not counted.",
		},
		[]string{"node"},
	)

	ConsensusDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fdnode",
			Name:      "consensus_decisions_total",
			Help:      "Total changes of a node's consensus value, sampled once per second; a decision that leaves the value unchanged is not counted.",
		},
		[]string{"node"},
	)

	CoordinatorFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fdnode",
			Name:      "coordinator_failures_total",
			Help:      "Total times a node detected its round's coordinator had failed.",
		},
		[]string{"node"},
	)
)

func init() {
	Registry.MustRegister(
		SuspicionsTotal,
		RecoveriesTotal,
		SuspectedGauge,
		ConsensusRoundsTotal,
		ConsensusDecisionsTotal,
		CoordinatorFailuresTotal,
	)
}

// Handler exposes /metrics. Mount it with mux.Handle("/metrics", metrics.Handler()).
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
