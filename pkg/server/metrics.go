package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/helpdesk/hdtelemetry/pkg/telemetry"
)

// Event results.
const (
	resultForwarded = "forwarded"
	resultDisabled  = "disabled"
	resultRejected  = "rejected"
)

// metrics are registered per server so several relays can share a
// process.
type metrics struct {
	registry *prometheus.Registry
	events   *prometheus.CounterVec
	sessions *prometheus.CounterVec
}

func newMetrics(gate *telemetry.Gate) *metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	m := &metrics{
		registry: reg,
		events: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hdtelemetry_relay_events_total",
				Help: "Events received by the relay",
			},
			[]string{"result"}, // "forwarded", "disabled" or "rejected"
		),
		sessions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hdtelemetry_relay_session_requests_total",
				Help: "Session recording requests received by the relay",
			},
			[]string{"action", "result"},
		),
	}

	factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "hdtelemetry_gate_enabled",
			Help: "1 when the site's settings enable telemetry",
		},
		func() float64 {
			if gate.Snapshot().Enabled {
				return 1
			}
			return 0
		},
	)

	return m
}

func (m *metrics) recordEvent(result string) {
	m.events.WithLabelValues(result).Inc()
}

func (m *metrics) recordSession(action string, enabled bool) {
	result := resultDisabled
	if enabled {
		result = resultForwarded
	}
	m.sessions.WithLabelValues(action, result).Inc()
}

func (m *metrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
