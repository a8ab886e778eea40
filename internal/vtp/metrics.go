package vtp

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the instrumentation a Pool/Listener/Conn report through, as
// a set of fields injected at construction rather than package-level
// globals — grounded on client/doublezerod/internal/liveness/manager.go's
// MetricsRegistry field-injection pattern, chosen over the simpler
// package-var style of controlplane/agent/internal/agent/metrics.go so
// that multiple Pool/Listener instances in the same test binary don't
// collide registering the same collector twice.
type Metrics struct {
	framesReceived     prometheus.Counter
	framesSent         prometheus.Counter
	reconnectAttempts  prometheus.Counter
	parseErrors        prometheus.Counter
	voeventsDispatched prometheus.Counter
	backoffSeconds     prometheus.Gauge
}

// NewMetrics builds a Metrics set and registers it against reg. A nil
// registerer is accepted and yields working, unregistered collectors, so
// callers that don't care about metrics never have to branch on a nil
// *Metrics in the hot path.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		framesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vtp",
			Name:      "frames_received_total",
			Help:      "Number of VTP frames received from the wire.",
		}),
		framesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vtp",
			Name:      "frames_sent_total",
			Help:      "Number of VTP frames (ack/iamalive responses) sent.",
		}),
		reconnectAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vtp",
			Name:      "reconnect_attempts_total",
			Help:      "Number of failed connection attempts across all endpoints.",
		}),
		parseErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vtp",
			Name:      "parse_errors_total",
			Help:      "Number of payloads that failed XML parsing.",
		}),
		voeventsDispatched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vtp",
			Name:      "voevents_dispatched_total",
			Help:      "Number of VOEvents acknowledged and handed to the handler.",
		}),
		backoffSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "vtp",
			Name:      "reconnect_backoff_seconds",
			Help:      "Current reconnect backoff duration, in seconds.",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.framesReceived,
			m.framesSent,
			m.reconnectAttempts,
			m.parseErrors,
			m.voeventsDispatched,
			m.backoffSeconds,
		)
	}
	return m
}
