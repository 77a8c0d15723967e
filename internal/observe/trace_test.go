package observe

import (
	"context"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// installTestTracer swaps the global tracer provider for one with an
// in-memory exporter and restores it afterwards.
func installTestTracer(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	orig := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(orig) })
	return exp
}

func TestTraceID(t *testing.T) {
	installTestTracer(t)

	t.Run("empty without span", func(t *testing.T) {
		if got := TraceID(context.Background()); got != "" {
			t.Errorf("TraceID(background) = %q, want empty", got)
		}
	})

	t.Run("hex id inside span", func(t *testing.T) {
		ctx, span := StartSpan(context.Background(), "probe")
		defer span.End()

		id := TraceID(ctx)
		if len(id) != 32 {
			t.Fatalf("trace id length = %d, want 32", len(id))
		}
		if strings.Trim(id, "0123456789abcdef") != "" {
			t.Errorf("trace id %q is not lowercase hex", id)
		}
	})

	t.Run("distinct per trace", func(t *testing.T) {
		seen := make(map[string]struct{}, 50)
		for range 50 {
			ctx, span := StartSpan(context.Background(), "probe")
			id := TraceID(ctx)
			span.End()
			if _, dup := seen[id]; dup {
				t.Fatalf("duplicate trace id %s", id)
			}
			seen[id] = struct{}{}
		}
	})
}

func TestStartSpanRecords(t *testing.T) {
	exp := installTestTracer(t)

	_, span := StartSpan(context.Background(), "session.finalize")
	span.End()

	spans := exp.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("recorded %d spans, want 1", len(spans))
	}
	if spans[0].Name != "session.finalize" {
		t.Errorf("span name = %q, want %q", spans[0].Name, "session.finalize")
	}
}

func TestSpanLogger(t *testing.T) {
	installTestTracer(t)

	t.Run("annotates with span", func(t *testing.T) {
		var sb strings.Builder
		base := slog.New(slog.NewTextHandler(&sb, nil))

		ctx, span := StartSpan(context.Background(), "probe")
		defer span.End()

		SpanLogger(ctx, base).Info("hello")
		out := sb.String()
		if !strings.Contains(out, "trace_id=") || !strings.Contains(out, "span_id=") {
			t.Errorf("log line missing trace correlation: %s", out)
		}
	})

	t.Run("passthrough without span", func(t *testing.T) {
		var sb strings.Builder
		base := slog.New(slog.NewTextHandler(&sb, nil))

		SpanLogger(context.Background(), base).Info("hello")
		if strings.Contains(sb.String(), "trace_id") {
			t.Errorf("log line should not carry trace_id: %s", sb.String())
		}
	})
}
