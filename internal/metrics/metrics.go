// Package metrics holds the Prometheus instrumentation shared by the proxy and poller.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the dashboard's own collectors
type Metrics struct {
	ProxyRequests *prometheus.CounterVec
	ProxyDuration *prometheus.HistogramVec
	ActiveWidgets prometheus.Gauge
}

// New creates the collectors and registers them with reg. A nil reg leaves them
// unregistered, which is what most tests want.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ProxyRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fleetwatch",
			Subsystem: "proxy",
			Name:      "requests_total",
			Help:      "Agent metric requests by kind and outcome.",
		}, []string{"kind", "outcome"}),
		ProxyDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "fleetwatch",
			Subsystem: "proxy",
			Name:      "request_duration_seconds",
			Help:      "Latency of agent metric requests.",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"kind"}),
		ActiveWidgets: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "fleetwatch",
			Subsystem: "poller",
			Name:      "active_widgets",
			Help:      "Polling widgets currently running.",
		}),
	}

	if reg != nil {
		reg.MustRegister(m.ProxyRequests, m.ProxyDuration, m.ActiveWidgets)
	}
	return m
}
