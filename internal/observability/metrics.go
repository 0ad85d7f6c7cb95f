package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce             sync.Once
	chatMessagesSent         *prometheus.CounterVec
	chatWSClientsActive      prometheus.Gauge
	chatPrivateChatsExpired  prometheus.Counter
	chatConversationsTrimmed prometheus.Counter
	chatPresenceTransitions  *prometheus.CounterVec
	chatRequestsTotal        *prometheus.CounterVec
	chatLatencySeconds       *prometheus.HistogramVec
)

// RegisterMetrics initialises the Prometheus collectors used by the chatroom service.
func RegisterMetrics() {
	registerOnce.Do(func() {
		chatMessagesSent = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_messages_sent_total",
			Help: "Total number of chat messages accepted by the engine.",
		}, []string{"kind", "scope"})

		chatWSClientsActive = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chat_ws_clients_active",
			Help: "Number of websocket subscribers currently connected to the event stream.",
		})

		chatPrivateChatsExpired = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chat_private_chats_expired_total",
			Help: "Total number of private conversations deleted by the inactivity sweep.",
		})

		chatConversationsTrimmed = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chat_conversations_trimmed_total",
			Help: "Total number of conversations re-trimmed to capacity by the sweep.",
		})

		chatPresenceTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_presence_transitions_total",
			Help: "Total number of presence status transitions, by resulting status.",
		}, []string{"to"})

		chatRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_requests_total",
			Help: "Total number of chat API requests served.",
		}, []string{"method", "route", "status"})

		chatLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "chat_latency_seconds",
			Help:    "Latency distribution for chat API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		prometheus.MustRegister(
			chatMessagesSent,
			chatWSClientsActive,
			chatPrivateChatsExpired,
			chatConversationsTrimmed,
			chatPresenceTransitions,
			chatRequestsTotal,
			chatLatencySeconds,
		)
	})
}

// ChatMessagesSent exposes the message counter.
func ChatMessagesSent() *prometheus.CounterVec {
	RegisterMetrics()
	return chatMessagesSent
}

// ChatWSClientsActive exposes the websocket subscriber gauge.
func ChatWSClientsActive() prometheus.Gauge {
	RegisterMetrics()
	return chatWSClientsActive
}

// ChatPrivateChatsExpired exposes the expiry counter.
func ChatPrivateChatsExpired() prometheus.Counter {
	RegisterMetrics()
	return chatPrivateChatsExpired
}

// ChatConversationsTrimmed exposes the sweep trim counter.
func ChatConversationsTrimmed() prometheus.Counter {
	RegisterMetrics()
	return chatConversationsTrimmed
}

// ChatPresenceTransitions exposes the presence transition counter.
func ChatPresenceTransitions() *prometheus.CounterVec {
	RegisterMetrics()
	return chatPresenceTransitions
}

// ChatRequests exposes the request counter.
func ChatRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return chatRequestsTotal
}

// ChatLatency exposes the latency histogram.
func ChatLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return chatLatencySeconds
}
