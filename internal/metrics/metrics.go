// Package metrics provides Prometheus instrumentation for the chat client.
// It exposes a gauge for connection state, counters for frame and message
// throughput, and histograms for request round trips.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Connected is 1 while the chat socket is open.
	Connected = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chatclient_connected",
		Help: "Whether the chat WebSocket is currently connected",
	})

	// ReconnectsTotal counts connection attempts after the first one.
	ReconnectsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chatclient_reconnects_total",
		Help: "Total number of reconnect attempts",
	})

	// FramesTotal counts WebSocket frames, labeled by direction.
	FramesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chatclient_frames_total",
		Help: "Total number of WebSocket text frames",
	}, []string{"direction"}) // direction = "in", "out"

	// FramesDropped counts outbound frames dropped while disconnected.
	FramesDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chatclient_frames_dropped_total",
		Help: "Outbound frames dropped because the socket was not connected",
	})

	// ParseErrors counts inbound frames that were not valid JSON.
	ParseErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chatclient_parse_errors_total",
		Help: "Inbound frames dropped because they could not be parsed",
	})

	// MessagesTotal counts chat messages, labeled by outcome.
	MessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chatclient_messages_total",
		Help: "Total number of chat messages processed",
	}, []string{"type"}) // type = "sent", "received", "duplicate", "signal"

	// StaleResponses counts responses discarded because the user had moved
	// to another conversation.
	StaleResponses = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chatclient_stale_responses_total",
		Help: "Responses discarded because their subject is no longer open",
	}, []string{"event"})

	// RequestLatency records the time from request to correlated response.
	RequestLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "chatclient_request_latency_seconds",
		Help:    "Round trip time of correlated requests in seconds",
		Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	}, []string{"event"})

	// CallsTotal counts call lifecycle transitions.
	CallsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chatclient_calls_total",
		Help: "Call lifecycle events",
	}, []string{"event"}) // event = "started", "answered", "connected", "failed", "ended"
)

func init() {
	prometheus.MustRegister(
		Connected,
		ReconnectsTotal,
		FramesTotal,
		FramesDropped,
		ParseErrors,
		MessagesTotal,
		StaleResponses,
		RequestLatency,
		CallsTotal,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
