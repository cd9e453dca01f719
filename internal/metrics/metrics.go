// Package metrics counts protocol and session activity. A nil *Metrics is
// valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Drop reasons.
const (
	DropDecode    = "decode"
	DropInvalid   = "invalid"
	DropExpired   = "expired"
	DropSession   = "session"
	DropDuplicate = "duplicate"
	DropQueueFull = "queue_full"
	DropRetries   = "retries"
)

type Metrics struct {
	sent        *prometheus.CounterVec
	received    *prometheus.CounterVec
	dropped     *prometheus.CounterVec
	retries     prometheus.Counter
	reconnects  prometheus.Counter
	transitions *prometheus.CounterVec
	roster      prometheus.Gauge
}

// New registers the collectors on reg. Passing nil uses a private registry,
// which keeps tests and multiple engines in one process from colliding.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		sent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mazeparty",
			Name:      "messages_sent_total",
			Help:      "Protocol messages sent, by kind.",
		}, []string{"kind"}),
		received: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mazeparty",
			Name:      "messages_received_total",
			Help:      "Protocol messages accepted, by kind.",
		}, []string{"kind"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mazeparty",
			Name:      "messages_dropped_total",
			Help:      "Protocol messages dropped, by reason.",
		}, []string{"reason"}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mazeparty",
			Name:      "message_retries_total",
			Help:      "Reliable messages resent after a missing ack.",
		}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mazeparty",
			Name:      "reconnect_attempts_total",
			Help:      "Automatic reconnect attempts.",
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mazeparty",
			Name:      "session_transitions_total",
			Help:      "Session state machine transitions, by target state.",
		}, []string{"state"}),
		roster: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "mazeparty",
			Name:      "roster_size",
			Help:      "Players in the current session.",
		}),
	}
	reg.MustRegister(m.sent, m.received, m.dropped, m.retries, m.reconnects, m.transitions, m.roster)
	return m
}

func (m *Metrics) Sent(kind string) {
	if m == nil {
		return
	}
	m.sent.WithLabelValues(kind).Inc()
}

func (m *Metrics) Received(kind string) {
	if m == nil {
		return
	}
	m.received.WithLabelValues(kind).Inc()
}

func (m *Metrics) Dropped(reason string) {
	if m == nil {
		return
	}
	m.dropped.WithLabelValues(reason).Inc()
}

func (m *Metrics) Retry() {
	if m == nil {
		return
	}
	m.retries.Inc()
}

func (m *Metrics) Reconnect() {
	if m == nil {
		return
	}
	m.reconnects.Inc()
}

func (m *Metrics) Transition(state string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(state).Inc()
}

func (m *Metrics) RosterSize(n int) {
	if m == nil {
		return
	}
	m.roster.Set(float64(n))
}
