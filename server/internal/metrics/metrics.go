package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
)

const namespace = "shopstream"

// Connection roles and close outcomes used as label values.
const (
	RolePublisher  = "publisher"
	RoleSubscriber = "subscriber"

	OutcomeNormal = "normal"
	OutcomeError  = "error"
)

// Metrics holds the gateway's collectors on a private registry. All methods
// are safe on a nil *Metrics, which records nothing.
type Metrics struct {
	registry *prometheus.Registry

	published   *prometheus.CounterVec
	delivered   *prometheus.CounterVec
	dropped     *prometheus.CounterVec
	subscribers *prometheus.GaugeVec
	connections *prometheus.CounterVec
}

// New creates the collectors and registers them, together with the Go
// runtime collector, on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_published_total",
			Help:      "Messages received on publish endpoints and produced to the broker.",
		}, []string{"topic"}),
		delivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_delivered_total",
			Help:      "Messages queued to subscribe-endpoint clients.",
		}, []string{"topic"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "subscribers_dropped_total",
			Help:      "Subscribe-endpoint clients disconnected for falling behind.",
		}, []string{"topic"}),
		subscribers: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "subscribers",
			Help:      "Currently connected subscribe-endpoint clients.",
		}, []string{"topic"}),
		connections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_closed_total",
			Help:      "Closed WebSocket connections by role and close outcome.",
		}, []string{"role", "outcome"}),
	}
	m.registry.MustRegister(
		m.published, m.delivered, m.dropped, m.subscribers, m.connections,
		collectors.NewGoCollector(),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Published(topic string) {
	if m == nil {
		return
	}
	m.published.WithLabelValues(topic).Inc()
}

func (m *Metrics) Delivered(topic string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.delivered.WithLabelValues(topic).Add(float64(n))
}

func (m *Metrics) Dropped(topic string) {
	if m == nil {
		return
	}
	m.dropped.WithLabelValues(topic).Inc()
}

func (m *Metrics) SubscriberJoined(topic string) {
	if m == nil {
		return
	}
	m.subscribers.WithLabelValues(topic).Inc()
}

func (m *Metrics) SubscriberLeft(topic string) {
	if m == nil {
		return
	}
	m.subscribers.WithLabelValues(topic).Dec()
}

func (m *Metrics) ConnectionClosed(role, outcome string) {
	if m == nil {
		return
	}
	m.connections.WithLabelValues(role, outcome).Inc()
}

// Summary is a point-in-time rollup of the gateway counters across topics.
type Summary struct {
	Published   float64 `json:"published"`
	Delivered   float64 `json:"delivered"`
	Dropped     float64 `json:"dropped"`
	Subscribers float64 `json:"subscribers"`
}

// Summary gathers the registry and sums each family over its labels.
func (m *Metrics) Summary() (Summary, error) {
	if m == nil {
		return Summary{}, nil
	}
	mfs, err := m.registry.Gather()
	if err != nil {
		return Summary{}, fmt.Errorf("metrics: gather: %w", err)
	}
	byName := make(map[string]*dto.MetricFamily, len(mfs))
	for _, mf := range mfs {
		byName[mf.GetName()] = mf
	}
	return Summary{
		Published:   sumFamily(byName[namespace+"_messages_published_total"]),
		Delivered:   sumFamily(byName[namespace+"_messages_delivered_total"]),
		Dropped:     sumFamily(byName[namespace+"_subscribers_dropped_total"]),
		Subscribers: sumFamily(byName[namespace+"_subscribers"]),
	}, nil
}

// sumFamily adds up all counter or gauge values in a MetricFamily.
// Returns 0 if mf is nil (nothing recorded yet).
func sumFamily(mf *dto.MetricFamily) float64 {
	if mf == nil {
		return 0
	}
	var total float64
	for _, m := range mf.GetMetric() {
		switch {
		case m.Counter != nil:
			total += m.Counter.GetValue()
		case m.Gauge != nil:
			total += m.Gauge.GetValue()
		}
	}
	return total
}
