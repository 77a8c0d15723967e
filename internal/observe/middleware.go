package observe

import (
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// Middleware instruments an HTTP handler: it continues the W3C trace context
// from the request headers (or starts a fresh trace), exposes the trace id in
// the X-Trace-ID response header, records the request in
// [Metrics.HTTPRequestDuration], and logs completion with trace correlation.
func Middleware(m *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return &instrumented{next: next, metrics: m}
	}
}

type instrumented struct {
	next    http.Handler
	metrics *Metrics
}

func (h *instrumented) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	prop := propagation.TraceContext{}

	ctx := prop.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	ctx, span := StartSpan(ctx, "HTTP "+r.Method+" "+r.URL.Path,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			semconv.HTTPRequestMethodKey.String(r.Method),
			semconv.URLPath(r.URL.Path),
		),
	)
	defer span.End()

	if id := TraceID(ctx); id != "" {
		w.Header().Set("X-Trace-ID", id)
	}
	prop.Inject(ctx, propagation.HeaderCarrier(w.Header()))

	tap := &responseTap{ResponseWriter: w, status: http.StatusOK}
	h.next.ServeHTTP(tap, r.WithContext(ctx))

	elapsed := time.Since(start)
	span.SetAttributes(semconv.HTTPResponseStatusCode(tap.status))
	h.metrics.HTTPRequestDuration.Record(ctx, elapsed.Seconds(),
		metric.WithAttributes(
			attribute.String("method", r.Method),
			attribute.String("path", r.URL.Path),
			attribute.Int("status", tap.status),
		),
	)

	SpanLogger(ctx, nil).LogAttrs(ctx, slog.LevelInfo, "request completed",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.Int("status", tap.status),
		slog.Duration("duration", elapsed),
	)
}

// responseTap captures the status code written by the wrapped handler.
type responseTap struct {
	http.ResponseWriter
	status int
}

func (t *responseTap) WriteHeader(code int) {
	t.status = code
	t.ResponseWriter.WriteHeader(code)
}
