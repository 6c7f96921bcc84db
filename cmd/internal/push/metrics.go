package push

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exposes the push subsystem's counters. A nil *Metrics is valid and
// records nothing, so tests can skip registration entirely.
type Metrics struct {
	openStreams prometheus.Gauge
	published   prometheus.Counter
	received    prometheus.Counter
	delivered   prometheus.Counter
	dropped     prometheus.Counter
}

// NewMetrics registers the push metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		openStreams: f.NewGauge(prometheus.GaugeOpts{
			Name: "deadbolt_push_open_streams",
			Help: "Streams currently open on this server.",
		}),
		published: f.NewCounter(prometheus.CounterOpts{
			Name: "deadbolt_push_events_published_total",
			Help: "Events published by this server.",
		}),
		received: f.NewCounter(prometheus.CounterOpts{
			Name: "deadbolt_push_events_received_total",
			Help: "Events received from other servers over pub/sub.",
		}),
		delivered: f.NewCounter(prometheus.CounterOpts{
			Name: "deadbolt_push_frames_delivered_total",
			Help: "Frames enqueued to local streams.",
		}),
		dropped: f.NewCounter(prometheus.CounterOpts{
			Name: "deadbolt_push_frames_dropped_total",
			Help: "Frames dropped because a stream queue was full or closing.",
		}),
	}
}

func (m *Metrics) streamOpened() {
	if m != nil {
		m.openStreams.Inc()
	}
}

func (m *Metrics) streamClosed() {
	if m != nil {
		m.openStreams.Dec()
	}
}

func (m *Metrics) eventPublished() {
	if m != nil {
		m.published.Inc()
	}
}

func (m *Metrics) eventReceived() {
	if m != nil {
		m.received.Inc()
	}
}

func (m *Metrics) frameDelivered() {
	if m != nil {
		m.delivered.Inc()
	}
}

func (m *Metrics) frameDropped() {
	if m != nil {
		m.dropped.Inc()
	}
}
