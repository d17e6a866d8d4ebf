package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sensillum/sensillum/server/internal/conntrack"
)

const namespace = "sensillum"

// Session kinds.
const (
	KindWebSocket = "ws"
	KindSSE       = "sse"
)

// Metrics holds the server's collectors.
type Metrics struct {
	registry *prometheus.Registry

	peak       prometheus.Gauge
	requests   *prometheus.CounterVec
	sessions   *prometheus.GaugeVec
	heartbeats *prometheus.CounterVec
	probes     *prometheus.CounterVec
}

// New registers every collector in a fresh registry. The active-connection
// gauge reads tr on each scrape.
func New(tr *conntrack.Tracker) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "connections_active",
		Help:      "Client connections currently open.",
	}, func() float64 { return float64(tr.Active()) })

	return &Metrics{
		registry: reg,
		peak: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections_peak",
			Help:      "Peak concurrent connections during the last reporting interval.",
		}),
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "HTTP requests by matched route and status code.",
		}, []string{"route", "code"}),
		sessions: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Live WebSocket and SSE sessions.",
		}, []string{"kind"}),
		heartbeats: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "heartbeats_total",
			Help:      "Heartbeats delivered to session clients.",
		}, []string{"kind"}),
		probes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "probes_total",
			Help:      "Boundary probe invocations by outcome.",
		}, []string{"probe", "outcome"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ReportPeak matches conntrack.WithSink.
func (m *Metrics) ReportPeak(peak, _ int64) {
	if m == nil {
		return
	}
	m.peak.Set(float64(peak))
}

// ObserveRequest counts one completed request.
func (m *Metrics) ObserveRequest(route string, code int) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(route, strconv.Itoa(code)).Inc()
}

// SessionStarted marks a session of kind as live and returns the func that
// ends it.
func (m *Metrics) SessionStarted(kind string) (ended func()) {
	if m == nil {
		return func() {}
	}
	g := m.sessions.WithLabelValues(kind)
	g.Inc()
	return g.Dec
}

// Heartbeat counts one heartbeat sent on a session of kind.
func (m *Metrics) Heartbeat(kind string) {
	if m == nil {
		return
	}
	m.heartbeats.WithLabelValues(kind).Inc()
}

// Probe counts one probe invocation.
func (m *Metrics) Probe(probe, outcome string) {
	if m == nil {
		return
	}
	m.probes.WithLabelValues(probe, outcome).Inc()
}
