package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Connection metrics
	ConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "peerlink_connections_active",
			Help: "WebSocket connections currently open",
		},
	)

	ConnectionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "peerlink_connections_total",
			Help: "Total WebSocket connections accepted",
		},
	)

	ConnectionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "peerlink_connection_duration_seconds",
			Help:    "Lifetime of closed WebSocket connections",
			Buckets: []float64{1, 10, 60, 300, 900, 3600, 4 * 3600},
		},
	)

	// Protocol metrics
	CommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "peerlink_commands_total",
			Help: "Inbound commands dispatched, by type",
		},
		[]string{"type"},
	)

	EventsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "peerlink_events_sent_total",
			Help: "Events written to peers, by type",
		},
		[]string{"type"},
	)

	DecodeErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "peerlink_decode_errors_total",
			Help: "Inbound frames that could not be decoded",
		},
	)

	IgnoredMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "peerlink_ignored_messages_total",
			Help: "Messages skipped by direction guards",
		},
		[]string{"direction"}, // "inbound" (event from client) or "outbound" (command in mailbox)
	)

	// Presence metrics
	RegisteredPeers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "peerlink_registered_peers",
			Help: "Nicknames currently registered",
		},
	)

	Registrations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "peerlink_registrations_total",
			Help: "Register commands, by whether they displaced an existing entry",
		},
		[]string{"result"}, // "new" or "replaced"
	)

	Rendezvous = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "peerlink_rendezvous_total",
			Help: "SendFile outcomes",
		},
		[]string{"outcome"}, // "delivered" or "not_found"
	)

	// Audit metrics
	AuditDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "peerlink_audit_dropped_total",
			Help: "Audit records dropped because the queue was full",
		},
	)

	AuditFlushDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "peerlink_audit_flush_duration_seconds",
			Help:    "Audit batch insert latency",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
	)

	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "peerlink_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)
)
