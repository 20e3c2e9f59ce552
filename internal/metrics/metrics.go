// Package metrics holds the prometheus collectors of the chat server.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Connection metrics
	ActiveConnections = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "chat_connections_active",
		Help: "The current number of open client connections.",
	}, []string{"transport"})
	TotalConnections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_connections_total",
		Help: "The total number of client connections accepted.",
	}, []string{"transport"})
	AcceptErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_accept_errors_total",
		Help: "The total number of failed accept calls.",
	}, []string{"transport"})
	ProtocolErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chat_protocol_errors_total",
		Help: "The total number of connections closed because of an undecodable frame.",
	})

	// Session metrics
	Sessions = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "chat_sessions",
		Help: "The current number of registered sessions by presence status.",
	}, []string{"status"})
	SessionsDemoted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chat_sessions_demoted_total",
		Help: "The total number of sessions marked OFFLINE by the inactivity sweep.",
	})

	// Request metrics
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_requests_total",
		Help: "The total number of requests handled by operation and status code.",
	}, []string{"operation", "status"})
	RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "chat_request_duration_seconds",
		Help:    "Time to handle each request operation.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	// Delivery metrics
	PushesDelivered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_pushes_delivered_total",
		Help: "The total number of incoming-message pushes queued for delivery by kind.",
	}, []string{"kind"})
	PushesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chat_push_dropped_total",
		Help: "The total number of pushes dropped because the recipient was slow or gone.",
	})
)

// Handler returns the HTTP handler exposing the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
