/*
The telemetry package exposes prometheus metrics for sockets. A nil *Metrics is
valid and records nothing, so components never have to check whether metrics
were configured.
*/
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"

	"bastionzero.com/wasync/connection/transporter"
)

const (
	namespace = "wasync"
	subsystem = "socket"
)

// Negotiation results
const (
	NegotiationSuccess     = "success"
	NegotiationUnsupported = "unsupported"
	NegotiationFailure     = "failure"
)

type Metrics struct {
	negotiations   *prometheus.CounterVec
	reconnects     *prometheus.CounterVec
	framesReceived *prometheus.CounterVec
	framesSent     *prometheus.CounterVec
	openSockets    prometheus.Gauge
}

// NewMetrics builds the collectors and, when registerer is not nil, registers them
func NewMetrics(registerer prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		negotiations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "negotiation_attempts_total",
			Help:      "The number of transport handshakes attempted, by transport and result",
		}, []string{"transport", "result"}),
		reconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "reconnect_decisions_total",
			Help:      "The number of reconnect policy decisions, by decision",
		}, []string{"decision"}),
		framesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "frames_received_total",
			Help:      "The number of frames received, by transport",
		}, []string{"transport"}),
		framesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "frames_sent_total",
			Help:      "The number of frames sent, by transport",
		}, []string{"transport"}),
		openSockets: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "connected",
			Help:      "The number of sockets currently holding a connected transport",
		}),
	}

	if registerer != nil {
		for _, collector := range m.collectors() {
			if err := registerer.Register(collector); err != nil {
				return nil, err
			}
		}
	}

	return m, nil
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{m.negotiations, m.reconnects, m.framesReceived, m.framesSent, m.openSockets}
}

func (m *Metrics) Negotiation(kind transporter.Kind, result string) {
	if m == nil {
		return
	}
	m.negotiations.WithLabelValues(kind.String(), result).Inc()
}

func (m *Metrics) ReconnectDecision(decision string) {
	if m == nil {
		return
	}
	m.reconnects.WithLabelValues(decision).Inc()
}

func (m *Metrics) FrameReceived(kind transporter.Kind) {
	if m == nil {
		return
	}
	m.framesReceived.WithLabelValues(kind.String()).Inc()
}

func (m *Metrics) FrameSent(kind transporter.Kind) {
	if m == nil {
		return
	}
	m.framesSent.WithLabelValues(kind.String()).Inc()
}

func (m *Metrics) Connected() {
	if m == nil {
		return
	}
	m.openSockets.Inc()
}

func (m *Metrics) Disconnected() {
	if m == nil {
		return
	}
	m.openSockets.Dec()
}
