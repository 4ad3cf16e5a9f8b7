// Package metrics exposes connection and fan-out counters for the
// metrics collaborator to scrape.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the collectors the realtime core reports into.
type Metrics struct {
	Connections prometheus.Gauge
	Channels    prometheus.Gauge

	Published   prometheus.Counter
	Delivered   prometheus.Counter
	Dropped     prometheus.Counter
	RateLimited prometheus.Counter

	AuthRejected prometheus.Counter
}

// New registers the collectors against reg and returns them.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Connections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "matchwire",
			Name:      "connections",
			Help:      "Live WebSocket connections.",
		}),
		Channels: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "matchwire",
			Name:      "channels",
			Help:      "Channels with at least one member.",
		}),
		Published: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "matchwire",
			Name:      "events_published_total",
			Help:      "Events accepted for fan-out.",
		}),
		Delivered: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "matchwire",
			Name:      "events_delivered_total",
			Help:      "Per-recipient deliveries that reached a transport buffer.",
		}),
		Dropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "matchwire",
			Name:      "events_dropped_total",
			Help:      "Per-recipient deliveries skipped for closed or slow transports.",
		}),
		RateLimited: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "matchwire",
			Name:      "events_rate_limited_total",
			Help:      "Publishes rejected by the rate guard.",
		}),
		AuthRejected: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "matchwire",
			Name:      "auth_rejected_total",
			Help:      "Handshakes rejected before registration.",
		}),
	}
}

// NewNop returns metrics bound to a private registry, for tests and
// callers that do not scrape.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}
