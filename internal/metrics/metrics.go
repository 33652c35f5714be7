// Package metrics provides Prometheus metrics for the messaging core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ActiveConnections tracks the number of open realtime connections.
	ActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chatcore_ws_active_connections",
			Help: "Number of currently open realtime connections",
		},
	)

	// RejectedConnections counts handshakes refused before the upgrade.
	RejectedConnections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatcore_ws_rejected_connections_total",
			Help: "Total number of realtime handshakes rejected",
		},
		[]string{"reason"},
	)

	// RoomJoins counts successful join_conversation events.
	RoomJoins = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chatcore_ws_room_joins_total",
			Help: "Total number of room joins",
		},
	)

	// EventsDelivered counts events queued to a connection, by event name.
	EventsDelivered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatcore_ws_events_delivered_total",
			Help: "Total number of events queued to connections",
		},
		[]string{"event"},
	)

	// EventsDropped counts events discarded because a connection's queue was full.
	EventsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatcore_ws_events_dropped_total",
			Help: "Total number of events dropped for slow connections",
		},
		[]string{"event"},
	)

	// MessagesSent counts persisted messages by type.
	MessagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatcore_messages_sent_total",
			Help: "Total number of messages persisted",
		},
		[]string{"message_type"},
	)

	// ReadMarks counts mark-read operations.
	ReadMarks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chatcore_read_marks_total",
			Help: "Total number of conversation mark-read operations",
		},
	)
)

// RecordConnectionOpened increments the live connection gauge.
func RecordConnectionOpened() {
	ActiveConnections.Inc()
}

// RecordConnectionClosed decrements the live connection gauge.
func RecordConnectionClosed() {
	ActiveConnections.Dec()
}

// RecordDelivery records one event queued to (or dropped for) a connection.
func RecordDelivery(event string, dropped bool) {
	if dropped {
		EventsDropped.WithLabelValues(event).Inc()
		return
	}
	EventsDelivered.WithLabelValues(event).Inc()
}
