// Package metrics provides Prometheus instrumentation for the EventFlow
// pipeline and the exposition endpoint the workers and the ingress serve.
//
// Collectors are process-wide and safe for concurrent updates. Metric names
// are part of the operational contract (dashboards and alerts reference
// them), so they follow the established eventflow naming.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EventsReceived counts events accepted by the HTTP ingress.
	EventsReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "events_received_total",
			Help: "Total number of events received",
		},
		[]string{"event_type"},
	)

	// EventsProcessed counts events persisted successfully.
	EventsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "events_processed_total",
			Help: "Total number of events processed successfully",
		},
		[]string{"event_type"},
	)

	// EventsFailed counts events that were dead-lettered, by failure kind.
	EventsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "events_failed_total",
			Help: "Total number of events that failed processing",
		},
		[]string{"event_type", "error_type"},
	)

	// EventsDuplicate counts events skipped by the idempotency gate,
	// including duplicate-key races lost at persist time.
	EventsDuplicate = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "events_duplicate_total",
			Help: "Total number of duplicate events detected",
		},
		[]string{"event_type"},
	)

	// EventsTimeout counts events abandoned at the per-event deadline.
	// These are neither acked nor dead-lettered; the broker redelivers them.
	EventsTimeout = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "events_timeout_total",
			Help: "Total number of events abandoned at the processing deadline",
		},
	)

	// QueueDepth tracks the current stream length as seen by the dispatcher.
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "queue_depth",
			Help: "Current number of events in queue",
		},
	)

	// ActiveWorkers tracks the number of running worker processes.
	ActiveWorkers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "active_workers",
			Help: "Number of active worker processes",
		},
	)

	// ProcessingDuration observes end-to-end per-event processing time.
	ProcessingDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "event_processing_duration_seconds",
			Help:    "Time spent processing events",
			Buckets: []float64{0.1, 0.5, 1.0, 2.0, 5.0, 10.0},
		},
		[]string{"event_type"},
	)
)
