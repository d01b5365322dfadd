package hub

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics collects hub health counters. Pass a dedicated registry in tests
// to avoid duplicate registration.
type Metrics struct {
	Subscribers prometheus.Gauge
	Published   prometheus.Counter
	Delivered   prometheus.Counter
	Evictions   prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "commenthub_subscribers",
			Help: "Currently registered live subscribers.",
		}),
		Published: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "commenthub_events_published_total",
			Help: "Change events handed to the hub.",
		}),
		Delivered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "commenthub_events_delivered_total",
			Help: "Per-subscriber successful enqueues.",
		}),
		Evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "commenthub_subscriber_evictions_total",
			Help: "Subscribers dropped after a delivery queue overflow.",
		}),
	}
	reg.MustRegister(m.Subscribers, m.Published, m.Delivered, m.Evictions)
	return m
}
