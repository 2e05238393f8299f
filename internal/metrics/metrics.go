// Package metrics registers the Prometheus collectors scraped at GET
// /metrics, grounded on adred-codev-ws_poc/ws/metrics.go's package-level
// var block of promauto collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry bundles the process's counters/gauges, updated from cmd/skirmishd.
// EventsDropped, MasterLinkUp and IRCLinkUp are registered and scraped, but
// nothing updates them.
type Registry struct {
	ClientsConnected prometheus.Gauge
	ClientsTotal     prometheus.Counter

	TicksTotal        prometheus.Counter
	WorldstateBuildMs prometheus.Histogram

	EventsDropped     *prometheus.CounterVec
	DamageDealt       prometheus.Counter
	Deaths            prometheus.Counter

	MasterLinkUp prometheus.Gauge
	IRCLinkUp    prometheus.Gauge

	DemoRecordings prometheus.Counter
}

// New registers and returns the metrics registry. Call once per process;
// promauto panics on duplicate registration against the default registerer.
func New() *Registry {
	return &Registry{
		ClientsConnected: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "skirmishd_clients_connected",
			Help: "Number of currently connected game clients.",
		}),
		ClientsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "skirmishd_clients_total",
			Help: "Total number of client connections accepted.",
		}),
		TicksTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "skirmishd_ticks_total",
			Help: "Total number of game loop ticks processed.",
		}),
		WorldstateBuildMs: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "skirmishd_worldstate_build_duration_ms",
			Help:    "Wall time spent building one worldstate batch.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 20, 33},
		}),
		EventsDropped: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "skirmishd_events_dropped_total",
			Help: "Events dropped by an anti-abuse guard, labeled by guard kind.",
		}, []string{"guard"}),
		DamageDealt: promauto.NewCounter(prometheus.CounterOpts{
			Name: "skirmishd_damage_dealt_total",
			Help: "Sum of all damage points applied by the server's own re-derivation.",
		}),
		Deaths: promauto.NewCounter(prometheus.CounterOpts{
			Name: "skirmishd_deaths_total",
			Help: "Total number of deaths arbitrated by the server.",
		}),
		MasterLinkUp: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "skirmishd_master_link_up",
			Help: "1 if the master server registration is currently active, else 0.",
		}),
		IRCLinkUp: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "skirmishd_irc_link_up",
			Help: "1 if the IRC bridge is currently connected, else 0.",
		}),
		DemoRecordings: promauto.NewCounter(prometheus.CounterOpts{
			Name: "skirmishd_demo_recordings_total",
			Help: "Total number of demo files written.",
		}),
	}
}
