package irc

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the server's Prometheus instruments. The event loop is the
// only writer; the metrics endpoint reads them from its own goroutine.
type Metrics struct {
	Sessions prometheus.Gauge
	Channels prometheus.Gauge
	Accepted prometheus.Counter
	Lines    prometheus.Counter
	Commands *prometheus.CounterVec
	Refusals *prometheus.CounterVec
	Removals *prometheus.CounterVec
}

// NewMetrics creates the instruments and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Sessions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "ircserv",
			Name:      "sessions",
			Help:      "Connected client sessions.",
		}),
		Channels: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "ircserv",
			Name:      "channels",
			Help:      "Channels with at least one member.",
		}),
		Accepted: f.NewCounter(prometheus.CounterOpts{
			Namespace: "ircserv",
			Name:      "connections_accepted_total",
			Help:      "Connections accepted on the listener.",
		}),
		Lines: f.NewCounter(prometheus.CounterOpts{
			Namespace: "ircserv",
			Name:      "lines_received_total",
			Help:      "Non-empty protocol lines received from clients.",
		}),
		Commands: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ircserv",
			Name:      "commands_total",
			Help:      "Commands dispatched to a handler, by command.",
		}, []string{"command"}),
		Refusals: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ircserv",
			Name:      "refusals_total",
			Help:      "Error numerics sent to clients, by numeric.",
		}, []string{"numeric"}),
		Removals: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ircserv",
			Name:      "removals_total",
			Help:      "Sessions removed, by cause.",
		}, []string{"cause"}),
	}
}
