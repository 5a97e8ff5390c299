// Package metrics exposes Prometheus instrumentation for the webthing client.
//
// A nil *Metrics is valid and records nothing, so components can take an
// optional *Metrics without checking it.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "webthing"

// Metrics holds the client's collectors.
type Metrics struct {
	connectionState prometheus.Gauge
	connectAttempts prometheus.Counter
	reconnects      prometheus.Counter
	framesReceived  *prometheus.CounterVec // by command
	framesSent      *prometheus.CounterVec // by command
	framesDropped   *prometheus.CounterVec // by reason
	sendsDropped    prometheus.Counter
	callbacks       prometheus.Counter
	callbackPanics  *prometheus.CounterVec // by topic
	topics          prometheus.Gauge
}

// New creates the collectors and registers them with reg.
// A nil reg creates unregistered collectors, which is useful in tests.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		connectionState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connection_state",
			Help:      "Connection state (0=disconnected, 1=connecting, 2=connected)",
		}),
		connectAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connect_attempts_total",
			Help:      "Total number of websocket connection attempts",
		}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnects_total",
			Help:      "Total number of reconnects scheduled after a connection was lost",
		}),
		framesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stomp",
			Name:      "frames_received_total",
			Help:      "STOMP frames received, by command",
		}, []string{"command"}),
		framesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stomp",
			Name:      "frames_sent_total",
			Help:      "STOMP frames sent, by command",
		}, []string{"command"}),
		framesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stomp",
			Name:      "frames_dropped_total",
			Help:      "Inbound frames dropped, by reason",
		}, []string{"reason"}), // reason: decode, unexpected
		sendsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sends_dropped_total",
			Help:      "Application sends dropped because the client was not connected",
		}),
		callbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "callbacks_total",
			Help:      "Subscriber callback invocations",
		}),
		callbackPanics: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "callback_panics_total",
			Help:      "Subscriber callbacks that panicked, by topic",
		}, []string{"topic"}),
		topics: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "topics",
			Help:      "Number of topics with at least one callback",
		}),
	}

	if reg == nil {
		return m, nil
	}
	for _, c := range m.collectors() {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
	}
	return m, nil
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.connectionState,
		m.connectAttempts,
		m.reconnects,
		m.framesReceived,
		m.framesSent,
		m.framesDropped,
		m.sendsDropped,
		m.callbacks,
		m.callbackPanics,
		m.topics,
	}
}

// SetConnectionState records the numeric connection state.
func (m *Metrics) SetConnectionState(state int) {
	if m == nil {
		return
	}
	m.connectionState.Set(float64(state))
}

// ConnectAttempt counts one dial.
func (m *Metrics) ConnectAttempt() {
	if m == nil {
		return
	}
	m.connectAttempts.Inc()
}

// Reconnect counts one scheduled reconnect.
func (m *Metrics) Reconnect() {
	if m == nil {
		return
	}
	m.reconnects.Inc()
}

// FrameReceived counts an inbound frame. Heartbeats use command "HEARTBEAT".
func (m *Metrics) FrameReceived(command string) {
	if m == nil {
		return
	}
	m.framesReceived.WithLabelValues(command).Inc()
}

// FrameSent counts an outbound frame.
func (m *Metrics) FrameSent(command string) {
	if m == nil {
		return
	}
	m.framesSent.WithLabelValues(command).Inc()
}

// FrameDropped counts an inbound frame that was discarded.
func (m *Metrics) FrameDropped(reason string) {
	if m == nil {
		return
	}
	m.framesDropped.WithLabelValues(reason).Inc()
}

// SendDropped counts an application send lost while disconnected.
func (m *Metrics) SendDropped() {
	if m == nil {
		return
	}
	m.sendsDropped.Inc()
}

// CallbackInvoked counts one callback invocation.
func (m *Metrics) CallbackInvoked() {
	if m == nil {
		return
	}
	m.callbacks.Inc()
}

// CallbackPanicked counts a recovered callback panic.
func (m *Metrics) CallbackPanicked(topic string) {
	if m == nil {
		return
	}
	m.callbackPanics.WithLabelValues(topic).Inc()
}

// SetTopics records the number of registered topics.
func (m *Metrics) SetTopics(n int) {
	if m == nil {
		return
	}
	m.topics.Set(float64(n))
}
