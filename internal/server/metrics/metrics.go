// Package metrics exposes relay counters in the Prometheus format. A nil
// *Metrics is valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "gophrelay"

type Metrics struct {
	frames        *prometheus.CounterVec
	dropped       *prometheus.CounterVec
	handshakes    *prometheus.CounterVec
	logins        *prometheus.CounterVec
	registrations *prometheus.CounterVec
	relays        *prometheus.CounterVec
	evictions     prometheus.Counter
	online        prometheus.Gauge
	connections   prometheus.Gauge
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		frames: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "frames_total",
				Help:      "Number of client frames received, by kind",
			},
			[]string{"kind"},
		),
		dropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "frames_dropped_total",
				Help:      "Number of client frames dropped, by reason",
			},
			[]string{"reason"},
		),
		handshakes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "handshakes_total",
				Help:      "Number of Diffie-Hellman handshakes, by result",
			},
			[]string{"result"},
		),
		logins: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "logins_total",
				Help:      "Number of login attempts, by result",
			},
			[]string{"result"},
		),
		registrations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "registrations_total",
				Help:      "Number of registration attempts, by result",
			},
			[]string{"result"},
		),
		relays: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "relays_total",
				Help:      "Number of relayed messages and keys, by result",
			},
			[]string{"result"},
		),
		evictions: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stale_evictions_total",
				Help:      "Number of registered connections dropped after a failed send",
			},
		),
		online: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "online_users",
				Help:      "Number of users with a registered connection",
			},
		),
		connections: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "open_connections",
				Help:      "Number of open transport connections",
			},
		),
	}

	for _, c := range []prometheus.Collector{
		m.frames, m.dropped, m.handshakes, m.logins, m.registrations,
		m.relays, m.evictions, m.online, m.connections,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

func result(ok bool) string {
	if ok {
		return "ok"
	}
	return "fail"
}

func (m *Metrics) FrameReceived(kind string) {
	if m != nil {
		m.frames.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) FrameDropped(reason string) {
	if m != nil {
		m.dropped.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) Handshake(ok bool) {
	if m != nil {
		m.handshakes.WithLabelValues(result(ok)).Inc()
	}
}

func (m *Metrics) Login(ok bool) {
	if m != nil {
		m.logins.WithLabelValues(result(ok)).Inc()
	}
}

func (m *Metrics) Registration(ok bool) {
	if m != nil {
		m.registrations.WithLabelValues(result(ok)).Inc()
	}
}

// Relay counts a relayed message or key; delivered is false when the
// receiver was offline.
func (m *Metrics) Relay(delivered bool) {
	if m == nil {
		return
	}
	if delivered {
		m.relays.WithLabelValues("delivered").Inc()
		return
	}
	m.relays.WithLabelValues("dropped").Inc()
}

func (m *Metrics) StaleEvicted() {
	if m != nil {
		m.evictions.Inc()
	}
}

func (m *Metrics) SetOnline(n int) {
	if m != nil {
		m.online.Set(float64(n))
	}
}

func (m *Metrics) ConnOpened() {
	if m != nil {
		m.connections.Inc()
	}
}

func (m *Metrics) ConnClosed() {
	if m != nil {
		m.connections.Dec()
	}
}
