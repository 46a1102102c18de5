package realtime

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the gateway's prometheus collectors.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	connections prometheus.Gauge
	listings    prometheus.Counter
	deliveries  *prometheus.CounterVec
	rejected    *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them on reg when reg is non-nil.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "haven",
			Subsystem: "realtime",
			Name:      "connections",
			Help:      "Open websocket sessions.",
		}),
		listings: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "haven",
			Subsystem: "realtime",
			Name:      "listings_published_total",
			Help:      "Listings announced on live channels.",
		}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "haven",
			Subsystem: "realtime",
			Name:      "deliveries_total",
			Help:      "Per-session listing deliveries, by result.",
		}, []string{"result"}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "haven",
			Subsystem: "realtime",
			Name:      "rejected_total",
			Help:      "Rejected upgrades and closed sessions, by reason.",
		}, []string{"reason"}),
	}
	if reg != nil {
		for _, c := range []prometheus.Collector{m.connections, m.listings, m.deliveries, m.rejected} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

func (m *Metrics) published(delivered, dropped int) {
	if m == nil {
		return
	}
	m.listings.Inc()
	m.deliveries.WithLabelValues("delivered").Add(float64(delivered))
	m.deliveries.WithLabelValues("dropped").Add(float64(dropped))
}

func (m *Metrics) connOpened() {
	if m != nil {
		m.connections.Inc()
	}
}

func (m *Metrics) connClosed() {
	if m != nil {
		m.connections.Dec()
	}
}

func (m *Metrics) reject(reason string) {
	if m != nil {
		m.rejected.WithLabelValues(reason).Inc()
	}
}
