package metrics_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"github.com/sensillum/sensillum/server/internal/conntrack"
	"github.com/sensillum/sensillum/server/internal/metrics"
)

// scrape fetches the exposition from h and parses it the way a Prometheus
// server would.
func scrape(t *testing.T, h http.Handler) map[string]*dto.MetricFamily {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rec.Code)
	}
	var parser expfmt.TextParser
	mfs, err := parser.TextToMetricFamilies(rec.Body)
	if err != nil {
		t.Fatalf("parse exposition: %v", err)
	}
	return mfs
}

// value returns the gauge or counter value of the series in mf whose labels
// include all of want.
func value(t *testing.T, mf *dto.MetricFamily, want map[string]string) float64 {
	t.Helper()
	if mf == nil {
		t.Fatal("metric family missing")
	}
	for _, m := range mf.GetMetric() {
		matched := 0
		for _, lp := range m.GetLabel() {
			if v, ok := want[lp.GetName()]; ok && v == lp.GetValue() {
				matched++
			}
		}
		if matched != len(want) {
			continue
		}
		if g := m.GetGauge(); g != nil {
			return g.GetValue()
		}
		if c := m.GetCounter(); c != nil {
			return c.GetValue()
		}
	}
	t.Fatalf("%s: no series with labels %v", mf.GetName(), want)
	return 0
}

func TestMetrics_ConnectionsActiveReadsTracker(t *testing.T) {
	tr := conntrack.New()
	m := metrics.New(tr)
	release := tr.Acquire()
	defer release()
	tr.Acquire()()

	mfs := scrape(t, m.Handler())
	if got := value(t, mfs["sensillum_connections_active"], nil); got != 1 {
		t.Errorf("connections_active: got %v, want 1", got)
	}
}

func TestMetrics_Recorders(t *testing.T) {
	m := metrics.New(conntrack.New())

	m.ReportPeak(7, 2)
	m.ObserveRequest("/echo", 200)
	m.ObserveRequest("/echo", 200)
	m.ObserveRequest("/hdr", 400)
	end := m.SessionStarted(metrics.KindWebSocket)
	m.SessionStarted(metrics.KindSSE)
	end()
	m.Heartbeat(metrics.KindSSE)
	m.Probe("byte", "rejected")

	mfs := scrape(t, m.Handler())

	if got := value(t, mfs["sensillum_connections_peak"], nil); got != 7 {
		t.Errorf("connections_peak: got %v, want 7", got)
	}
	if got := value(t, mfs["sensillum_requests_total"], map[string]string{"route": "/echo", "code": "200"}); got != 2 {
		t.Errorf("requests_total{/echo,200}: got %v, want 2", got)
	}
	if got := value(t, mfs["sensillum_sessions_active"], map[string]string{"kind": "ws"}); got != 0 {
		t.Errorf("sessions_active{ws}: got %v, want 0", got)
	}
	if got := value(t, mfs["sensillum_sessions_active"], map[string]string{"kind": "sse"}); got != 1 {
		t.Errorf("sessions_active{sse}: got %v, want 1", got)
	}
	if got := value(t, mfs["sensillum_heartbeats_total"], map[string]string{"kind": "sse"}); got != 1 {
		t.Errorf("heartbeats_total{sse}: got %v, want 1", got)
	}
	if got := value(t, mfs["sensillum_probes_total"], map[string]string{"probe": "byte", "outcome": "rejected"}); got != 1 {
		t.Errorf("probes_total: got %v, want 1", got)
	}
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *metrics.Metrics
	m.ReportPeak(1, 1)
	m.ObserveRequest("/", 200)
	m.SessionStarted(metrics.KindSSE)()
	m.Heartbeat(metrics.KindWebSocket)
	m.Probe("size", "ok")
}
