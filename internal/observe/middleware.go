package observe

import (
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.39.0"
	"go.opentelemetry.io/otel/trace"
)

// unmatchedRoute labels requests that no mux pattern served.
const unmatchedRoute = "unmatched"

// scrapeHandler instruments the metrics listener: one server span per request
// (continuing an incoming traceparent), an X-Trace-ID response header and a
// duration sample labelled by the matched [http.ServeMux] pattern.
type scrapeHandler struct {
	next    http.Handler
	metrics *Metrics
	prop    propagation.TextMapPropagator
}

// Middleware returns a wrapper that instruments every request of the metrics
// listener on m.
func Middleware(m *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return &scrapeHandler{next: next, metrics: m, prop: propagation.TraceContext{}}
	}
}

func (h *scrapeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := h.prop.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	ctx, span := StartSpan(ctx, r.Method+" "+r.URL.Path,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			semconv.HTTPRequestMethodKey.String(r.Method),
			semconv.URLPath(r.URL.Path),
		),
	)
	defer span.End()

	if tid := TraceID(ctx); tid != "" {
		w.Header().Set("X-Trace-ID", tid)
	}

	sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
	req := r.WithContext(ctx)
	h.next.ServeHTTP(sw, req)
	elapsed := time.Since(start)

	// ServeMux records the pattern on the request it dispatched.
	route := unmatchedRoute
	if req.Pattern != "" {
		route = req.Pattern
		span.SetName(route)
		span.SetAttributes(semconv.HTTPRoute(route))
	}
	span.SetAttributes(semconv.HTTPResponseStatusCode(sw.status))
	if sw.status >= http.StatusInternalServerError {
		span.SetStatus(codes.Error, http.StatusText(sw.status))
	}

	h.metrics.HTTPRequestDuration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(
		attribute.String("route", route),
		attribute.String("status", strconv.Itoa(sw.status)),
	))

	log := Logger(ctx).With("route", route, "status", sw.status, "elapsed", elapsed)
	if sw.status >= http.StatusInternalServerError {
		log.WarnContext(ctx, "metrics listener request failed", "path", r.URL.Path)
		return
	}
	log.DebugContext(ctx, "metrics listener request")
}

// statusWriter remembers the status code the wrapped handler wrote.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Unwrap exposes the underlying writer to [http.ResponseController].
func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }
