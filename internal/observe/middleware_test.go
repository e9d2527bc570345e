package observe

import (
	"context"
	"maps"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/MrWong99/phoneval/internal/health"
)

func testSetup(t *testing.T) (*Metrics, *sdkmetric.ManualReader, *tracetest.InMemoryExporter) {
	t.Helper()
	m, reader := newTestMetrics(t)

	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	origTP := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(origTP) })

	return m, reader, exp
}

func TestMiddleware_SpanAndTraceHeader(t *testing.T) {
	m, _, exp := testSetup(t)

	var seen string
	handler := Middleware(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = TraceID(r.Context())
		w.WriteHeader(http.StatusNotFound)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/missing", nil))

	if len(seen) != 32 {
		t.Fatalf("handler trace ID = %q, want 32 hex chars", seen)
	}
	if got := rec.Header().Get("X-Trace-ID"); got != seen {
		t.Errorf("X-Trace-ID = %q, want %q", got, seen)
	}

	spans := exp.GetSpans()
	if len(spans) != 1 || spans[0].Name != "GET /missing" {
		t.Fatalf("spans = %v", spans)
	}
	found := false
	for _, a := range spans[0].Attributes {
		if string(a.Key) == "http.response.status_code" && a.Value.AsInt64() == 404 {
			found = true
		}
	}
	if !found {
		t.Error("span missing http.response.status_code=404")
	}
}

func TestMiddleware_ContinuesIncomingTrace(t *testing.T) {
	m, _, _ := testSetup(t)

	var seen string
	handler := Middleware(m)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = TraceID(r.Context())
	}))

	req := httptest.NewRequest("GET", "/metrics", nil)
	req.Header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if seen != "4bf92f3577b34da6a3ce929d0e0e4736" {
		t.Errorf("trace ID = %q, want the incoming one", seen)
	}
}

func TestMiddleware_RecordsDurationByRoute(t *testing.T) {
	m, reader, exp := testSetup(t)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /metrics", func(http.ResponseWriter, *http.Request) {})
	mux.HandleFunc("GET /boom", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	handler := Middleware(m)(mux)
	for _, path := range []string{"/metrics", "/boom", "/nope/1", "/nope/2"} {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", path, nil))
	}

	met := findMetric(collect(t, reader), "phoneval.http.request.duration")
	if met == nil {
		t.Fatal("metric not found")
	}
	counts := map[string]uint64{}
	for _, dp := range met.Data.(metricdata.Histogram[float64]).DataPoints {
		route, _ := dp.Attributes.Value("route")
		status, _ := dp.Attributes.Value("status")
		counts[route.AsString()+" "+status.AsString()] += dp.Count
	}
	want := map[string]uint64{
		"GET /metrics 200": 1,
		"GET /boom 500":    1,
		"unmatched 404":    2,
	}
	if !maps.Equal(counts, want) {
		t.Errorf("samples = %v, want %v", counts, want)
	}

	var names []string
	var failed int
	for _, s := range exp.GetSpans() {
		names = append(names, s.Name)
		if s.Status.Code == codes.Error {
			failed++
		}
	}
	if !slices.Equal(names, []string{"GET /metrics", "GET /boom", "GET /nope/1", "GET /nope/2"}) {
		t.Errorf("span names = %q", names)
	}
	if failed != 1 {
		t.Errorf("spans with error status = %d, want 1", failed)
	}
}

func TestNewMetricsServer(t *testing.T) {
	m, _ := newTestMetrics(t)
	srv := NewMetricsServer(":0", prometheus.DefaultGatherer, m, health.New())

	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /metrics status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "go_goroutines") {
		t.Error("metrics body lacks the default Go collector")
	}

	rec = httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest("GET", "/readyz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("GET /readyz status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest("GET", "/other", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("GET /other status = %d, want 404", rec.Code)
	}
}
