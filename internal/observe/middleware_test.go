package observe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// serveInstrumented runs one request through the middleware and returns the
// recorder plus the collection hooks.
func serveInstrumented(t *testing.T, target string, inner http.HandlerFunc, mutate func(*http.Request)) (*httptest.ResponseRecorder, *sdkmetric.ManualReader, *tracetest.InMemoryExporter) {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	exp := installTestTracer(t)

	req := httptest.NewRequest("GET", target, nil)
	if mutate != nil {
		mutate(req)
	}
	rec := httptest.NewRecorder()
	Middleware(m)(inner).ServeHTTP(rec, req)
	return rec, reader, exp
}

func TestMiddlewareTraceHeader(t *testing.T) {
	var inCtx string
	rec, _, _ := serveInstrumented(t, "/api/session", func(w http.ResponseWriter, r *http.Request) {
		inCtx = TraceID(r.Context())
		w.WriteHeader(http.StatusOK)
	}, nil)

	if inCtx == "" {
		t.Fatal("handler context carries no trace id")
	}
	if got := rec.Header().Get("X-Trace-ID"); got != inCtx {
		t.Errorf("X-Trace-ID = %q, want %q", got, inCtx)
	}
}

func TestMiddlewareContinuesIncomingTrace(t *testing.T) {
	const parent = "4bf92f3577b34da6a3ce929d0e0e4736"

	var inCtx string
	rec, _, _ := serveInstrumented(t, "/api/session", func(w http.ResponseWriter, r *http.Request) {
		inCtx = TraceID(r.Context())
		w.WriteHeader(http.StatusOK)
	}, func(r *http.Request) {
		r.Header.Set("traceparent", "00-"+parent+"-00f067aa0ba902b7-01")
	})

	if inCtx != parent {
		t.Errorf("trace id = %q, want incoming %q", inCtx, parent)
	}
	if got := rec.Header().Get("X-Trace-ID"); got != parent {
		t.Errorf("X-Trace-ID = %q, want %q", got, parent)
	}
}

func TestMiddlewareSpan(t *testing.T) {
	_, _, exp := serveInstrumented(t, "/api/session/next", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}, nil)

	spans := exp.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("recorded %d spans, want 1", len(spans))
	}
	if spans[0].Name != "HTTP GET /api/session/next" {
		t.Errorf("span name = %q", spans[0].Name)
	}

	var status int64
	for _, a := range spans[0].Attributes {
		if string(a.Key) == "http.response.status_code" {
			status = a.Value.AsInt64()
		}
	}
	if status != http.StatusAccepted {
		t.Errorf("span status attribute = %d, want %d", status, http.StatusAccepted)
	}
}

func TestMiddlewareRecordsDuration(t *testing.T) {
	_, reader, _ := serveInstrumented(t, "/api/session", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}, nil)

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}

	met := findMetric(rm, "intervox.http.request.duration")
	if met == nil {
		t.Fatal("intervox.http.request.duration not recorded")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok || len(hist.DataPoints) == 0 {
		t.Fatalf("unexpected metric shape: %T", met.Data)
	}

	dp := hist.DataPoints[0]
	if dp.Count != 1 {
		t.Errorf("sample count = %d, want 1", dp.Count)
	}
	want := map[string]string{"method": "GET", "path": "/api/session", "status": "404"}
	for _, kv := range dp.Attributes.ToSlice() {
		if expected, ok := want[string(kv.Key)]; ok && kv.Value.Emit() == expected {
			delete(want, string(kv.Key))
		}
	}
	if len(want) != 0 {
		t.Errorf("missing datapoint attributes: %v", want)
	}
}
