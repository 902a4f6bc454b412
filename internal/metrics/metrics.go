// Package metrics exposes Prometheus counters for channel arbitration.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the registry and instruments for the PA server.
type Metrics struct {
	registry *prometheus.Registry

	Acquires         *prometheus.CounterVec
	Rejections       *prometheus.CounterVec
	Preemptions      *prometheus.CounterVec
	Releases         *prometheus.CounterVec
	Reclaimed        prometheus.Counter
	EmergencyToggles *prometheus.CounterVec
	Subscribers      prometheus.Gauge
}

// New builds a Metrics with its own registry, including the standard
// Go and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		Acquires: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pa",
			Name:      "channel_acquires_total",
			Help:      "Channel grants by task kind.",
		}, []string{"kind"}),
		Rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pa",
			Name:      "channel_rejections_total",
			Help:      "Rejected acquire attempts by reason.",
		}, []string{"reason"}),
		Preemptions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pa",
			Name:      "channel_preemptions_total",
			Help:      "Tasks preempted by a higher-priority task, by preempted kind.",
		}, []string{"kind"}),
		Releases: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pa",
			Name:      "channel_releases_total",
			Help:      "Channel releases by finish reason.",
		}, []string{"reason"}),
		Reclaimed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pa",
			Name:      "channel_reclaimed_total",
			Help:      "Stale tasks reclaimed after missed heartbeats.",
		}),
		EmergencyToggles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pa",
			Name:      "emergency_toggles_total",
			Help:      "Emergency mode toggles by action.",
		}, []string{"action"}),
		Subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "pa",
			Name:      "state_subscribers",
			Help:      "Connected state push subscribers.",
		}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.Acquires,
		m.Rejections,
		m.Preemptions,
		m.Releases,
		m.Reclaimed,
		m.EmergencyToggles,
		m.Subscribers,
	)
	return m
}

// Handler returns the HTTP handler serving this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
