package telemetry

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestInstrumentRecordsStatusClass(t *testing.T) {
	h := Instrument("probe", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))

	before := testutil.ToFloat64(RequestsTotal.WithLabelValues("probe", "4xx"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/x", nil))
	after := testutil.ToFloat64(RequestsTotal.WithLabelValues("probe", "4xx"))

	if after-before != 1 {
		t.Errorf("4xx counter moved by %v, want 1", after-before)
	}
	if v := testutil.ToFloat64(InFlight.WithLabelValues("probe")); v != 0 {
		t.Errorf("in-flight = %v after request, want 0", v)
	}
}

func TestMetricsHandlerExposesRegistry(t *testing.T) {
	Ticks.WithLabelValues("metrics-test").Inc()

	rec := httptest.NewRecorder()
	MetricsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `treemon_ticks_total{node="metrics-test"} 1`) {
		t.Error("ticks counter missing from exposition")
	}
}
