package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	RemoteCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "xlgw_remote_calls_total",
			Help: "Round trips to the carrier backend by operation and outcome",
		},
		[]string{"op", "outcome"}, // ok|rejected|timeout|transport|circuit_open
	)

	RemoteCallSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "xlgw_remote_call_seconds",
			Help:    "Latency of carrier backend round trips",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	PurchasesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "xlgw_purchases_total",
			Help: "Purchase operations by rail and resulting state",
		},
		[]string{"rail", "state"},
	)

	LocalRejectsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "xlgw_local_rejects_total",
			Help: "Calls refused before reaching the carrier backend",
		},
		[]string{"kind"},
	)

	AuditEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "xlgw_audit_events_total",
			Help: "Audit events handled by the ClickHouse loader",
		},
		[]string{"outcome"}, // stored|poison|failed
	)
)

func MustRegister(r prometheus.Registerer) {
	r.MustRegister(
		RemoteCallsTotal,
		RemoteCallSeconds,
		PurchasesTotal,
		LocalRejectsTotal,
		AuditEventsTotal,
	)
}
