// Package metrics exposes the engine's Prometheus collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EntriesEnqueued counts queue entries created by the populator
	EntriesEnqueued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "notify_entries_enqueued_total",
		Help: "Queue entries created by the populator",
	})

	// Dispatches counts terminal and retry outcomes per worker dispatch
	Dispatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notify_dispatches_total",
			Help: "Dispatch outcomes",
		},
		[]string{"outcome"}, // delivered, retry, failed, skipped
	)

	// DispatchLatency observes provider call latency
	DispatchLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "notify_dispatch_latency_seconds",
		Help:    "Push provider call latency in seconds",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 10), // 10ms to ~10s
	})

	// GateBlocks counts blocked sends per reason
	GateBlocks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notify_gate_blocks_total",
			Help: "Eligibility gate blocks",
		},
		[]string{"reason"},
	)

	// QueueDepth reports queue entries per status, refreshed on worker ticks
	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "notify_queue_depth",
			Help: "Queue entries by status",
		},
		[]string{"status"},
	)

	// SyncDispatches counts third-party sync jobs per result
	SyncDispatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_dispatches_total",
			Help: "Third-party sync dispatches",
		},
		[]string{"result"}, // ok, error
	)
)

// ObserveDispatch records one provider call
func ObserveDispatch(outcome string, d time.Duration) {
	Dispatches.WithLabelValues(outcome).Inc()
	DispatchLatency.Observe(d.Seconds())
}
