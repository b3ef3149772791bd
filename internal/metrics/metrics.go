package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "firext"

// Relay collects signaling relay counters. A nil *Relay is valid and records
// nothing.
type Relay struct {
	registry  *prometheus.Registry
	published *prometheus.CounterVec
	polls     prometheus.Counter
	delivered *prometheus.CounterVec
	rejected  prometheus.Counter
	swept     prometheus.Counter
	rooms     prometheus.Gauge
	collected prometheus.Counter
}

func NewRelay() *Relay {
	reg := prometheus.NewRegistry()
	m := &Relay{
		registry: reg,
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "published_total",
			Help:      "Envelopes accepted by publish, by type.",
		}, []string{"type"}),
		polls: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "polls_total",
			Help:      "Poll requests served.",
		}),
		delivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "delivered_total",
			Help:      "Envelopes handed to polling peers, by type.",
		}, []string{"type"}),
		rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "rejected_total",
			Help:      "Requests rejected as invalid.",
		}),
		swept: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "peers_swept_total",
			Help:      "Peers removed for inactivity.",
		}),
		rooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "rooms",
			Help:      "Rooms currently held in memory.",
		}),
		collected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "rooms_collected_total",
			Help:      "Rooms deleted by the collector.",
		}),
	}

	reg.MustRegister(
		m.published,
		m.polls,
		m.delivered,
		m.rejected,
		m.swept,
		m.rooms,
		m.collected,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

func (m *Relay) Published(kind string) {
	if m == nil {
		return
	}
	m.published.WithLabelValues(kind).Inc()
}

func (m *Relay) Polled() {
	if m == nil {
		return
	}
	m.polls.Inc()
}

func (m *Relay) Delivered(kind string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.delivered.WithLabelValues(kind).Add(float64(n))
}

func (m *Relay) Rejected() {
	if m == nil {
		return
	}
	m.rejected.Inc()
}

func (m *Relay) Swept(n int) {
	if m == nil || n == 0 {
		return
	}
	m.swept.Add(float64(n))
}

func (m *Relay) SetRooms(n int) {
	if m == nil {
		return
	}
	m.rooms.Set(float64(n))
}

func (m *Relay) Collected(n int) {
	if m == nil || n == 0 {
		return
	}
	m.collected.Add(float64(n))
}

func (m *Relay) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the relay registry in the Prometheus exposition format.
func (m *Relay) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
