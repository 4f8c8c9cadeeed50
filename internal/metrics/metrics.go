package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	TransitionsApplied = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "chatstatus_transitions_applied_total", Help: "Status transitions written to the store."},
		[]string{"status"},
	)
	TransitionsRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "chatstatus_transitions_rejected_total", Help: "Status transitions rejected by the priority gate."},
		[]string{"status"},
	)
	PendingReplays = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "chatstatus_pending_replays_total", Help: "Deferred updates replayed after an in-flight write finished."},
	)
	Escalations = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "chatstatus_escalations_total", Help: "Delivery escalation timer firings by outcome."},
		[]string{"outcome"},
	)
	SyncRecords = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "chatstatus_sync_records_total", Help: "Cross-device sync records written."},
	)
)

func Init() {
	prometheus.MustRegister(TransitionsApplied)
	prometheus.MustRegister(TransitionsRejected)
	prometheus.MustRegister(PendingReplays)
	prometheus.MustRegister(Escalations)
	prometheus.MustRegister(SyncRecords)
}
