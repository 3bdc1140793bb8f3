package stats

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "pushserver"

// Metrics exports broker counters to prometheus. A nil *Metrics is a no-op.
type Metrics struct {
	Connections *prometheus.GaugeVec
	Channels    prometheus.Gauge
	Messages    *prometheus.CounterVec
	Requests    *prometheus.CounterVec
	Evictions   prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Connections: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections",
			Help:      "Registered sessions by transport.",
		}, []string{"transport"}),
		Channels: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "channels",
			Help:      "Channels with at least one local subscriber.",
		}),
		Messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "Published messages by type.",
		}, []string{"type"}),
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Processed requests by command.",
		}, []string{"command"}),
		Evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evictions_total",
			Help:      "Sessions closed because their channel was full.",
		}),
	}

	if reg != nil {
		reg.MustRegister(m.Connections, m.Channels, m.Messages, m.Requests, m.Evictions)
	}

	return m
}

func (m *Metrics) message(messageType string) {
	if m == nil {
		return
	}
	m.Messages.WithLabelValues(messageType).Inc()
}

func (m *Metrics) request(command string) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(command).Inc()
}

func (m *Metrics) connection(websocket bool, delta int64) {
	if m == nil {
		return
	}
	transport := "polling"
	if websocket {
		transport = "websocket"
	}
	m.Connections.WithLabelValues(transport).Add(float64(delta))
}

func (m *Metrics) eviction() {
	if m == nil {
		return
	}
	m.Evictions.Inc()
}

func (m *Metrics) channels(n int) {
	if m == nil {
		return
	}
	m.Channels.Set(float64(n))
}
