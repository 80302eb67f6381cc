// Package metrics holds the Prometheus collectors for connection and stream activity.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all client collectors.
type Metrics struct {
	// Connection metrics
	Dials       prometheus.Counter
	DialErrors  prometheus.Counter
	Connected   prometheus.Gauge
	Sends       *prometheus.CounterVec
	FramesRead  prometheus.Counter
	StaleFrames prometheus.Counter

	// Stream metrics
	StreamEvents *prometheus.CounterVec
	Turns        *prometheus.CounterVec
}

// New creates collectors registered with reg. A nil reg leaves them unregistered.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		Dials: factory.NewCounter(prometheus.CounterOpts{
			Name: "chatstream_dials_total",
			Help: "Total number of transports dialed",
		}),
		DialErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "chatstream_dial_errors_total",
			Help: "Total number of failed dials and invalid addresses",
		}),
		Connected: factory.NewGauge(prometheus.GaugeOpts{
			Name: "chatstream_connected",
			Help: "1 while the transport is open",
		}),
		Sends: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatstream_sends_total",
				Help: "Total number of outbound frames by result",
			},
			[]string{"result"},
		),
		FramesRead: factory.NewCounter(prometheus.CounterOpts{
			Name: "chatstream_frames_received_total",
			Help: "Total number of inbound frames delivered",
		}),
		StaleFrames: factory.NewCounter(prometheus.CounterOpts{
			Name: "chatstream_stale_frames_total",
			Help: "Inbound frames dropped because their transport was replaced",
		}),
		StreamEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatstream_stream_events_total",
				Help: "Reassembler decisions by kind",
			},
			[]string{"kind"},
		),
		Turns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatstream_turns_total",
				Help: "Chat turns created by role",
			},
			[]string{"role"},
		),
	}
}

// Discard returns unregistered collectors for callers that do not export metrics.
func Discard() *Metrics {
	return New(nil)
}

// RecordSend counts an outbound frame.
func (m *Metrics) RecordSend(err error) {
	if err != nil {
		m.Sends.WithLabelValues("error").Inc()
		return
	}
	m.Sends.WithLabelValues("ok").Inc()
}

// SetConnected updates the connection gauge.
func (m *Metrics) SetConnected(connected bool) {
	if connected {
		m.Connected.Set(1)
		return
	}
	m.Connected.Set(0)
}
