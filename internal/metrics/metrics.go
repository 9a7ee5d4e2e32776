// Package metrics exposes Prometheus collectors for the collaboration hub.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ConnectionsActive tracks currently open websocket connections.
	ConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "graphroom_connections_active",
		Help: "Number of open websocket connections.",
	})

	// RoomsActive tracks rooms with at least one connection.
	RoomsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "graphroom_rooms_active",
		Help: "Number of rooms with at least one connected client.",
	})

	// MessagesTotal counts inbound messages by type.
	MessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "graphroom_messages_total",
		Help: "Inbound websocket messages by message type.",
	}, []string{"type"})

	// EventsAppendedTotal counts mutation events appended to event logs.
	EventsAppendedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "graphroom_events_appended_total",
		Help: "Mutation events appended to room event logs.",
	})

	// ConflictsResolvedTotal counts resolved edit conflicts.
	ConflictsResolvedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "graphroom_conflicts_resolved_total",
		Help: "Edit conflicts resolved by last-write-wins arbitration.",
	})

	// PresenceSweepsTotal counts reaper sweeps that reclaimed stale presence.
	PresenceSweepsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "graphroom_presence_sweeps_total",
		Help: "Idle reaper sweeps that removed stale presence records.",
	})
)
