// Package metrics holds the Prometheus collectors of the chat server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Connections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "caterchat_ws_connections",
		Help: "Authenticated websocket connections currently registered",
	})
	Events = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "caterchat_ws_events_total",
		Help: "Inbound socket events by name and outcome",
	}, []string{"event", "outcome"})
	Broadcasts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "caterchat_broadcasts_total",
		Help: "Broadcasts fanned out, by target channel kind",
	}, []string{"target"})
	DroppedFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "caterchat_ws_dropped_frames_total",
		Help: "Outbound frames dropped because a client's send queue was full",
	})
	MessagesPersisted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "caterchat_messages_persisted_total",
		Help: "Chat messages stored",
	})
	RelayErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "caterchat_relay_errors_total",
		Help: "Redis relay failures by operation",
	}, []string{"op"})
)
