package core

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the engine's instrumentation. One set per engine instance,
// registered on the engine's own registry so two servers in one process
// never collide.
type Metrics struct {
	ActiveConnections prometheus.Gauge
	FramesDecoded     prometheus.Counter
	DecodeErrors      prometheus.Counter
	PendingCalls      prometheus.Gauge
	CallTimeouts      prometheus.Counter
	HeartbeatLatency  prometheus.Gauge
}

// NewMetrics builds the engine metrics and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ActiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "duplexnet",
			Name:      "active_connections",
			Help:      "Number of currently registered connections.",
		}),
		FramesDecoded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "duplexnet",
			Name:      "frames_decoded_total",
			Help:      "Inbound frames decoded successfully.",
		}),
		DecodeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "duplexnet",
			Name:      "frame_decode_errors_total",
			Help:      "Inbound frames discarded as malformed.",
		}),
		PendingCalls: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "duplexnet",
			Name:      "pending_calls",
			Help:      "Correlated requests awaiting a response.",
		}),
		CallTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "duplexnet",
			Name:      "call_timeouts_total",
			Help:      "Correlated requests expired without a response.",
		}),
		HeartbeatLatency: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "duplexnet",
			Name:      "heartbeat_latency_seconds",
			Help:      "Most recent heartbeat-measured latency across connections.",
		}),
	}
	reg.MustRegister(
		m.ActiveConnections,
		m.FramesDecoded,
		m.DecodeErrors,
		m.PendingCalls,
		m.CallTimeouts,
		m.HeartbeatLatency,
	)
	return m
}
