// Package observe provides application-wide observability primitives for
// Intervox: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Intervox metrics.
const meterName = "github.com/intervox/intervox"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// BackendDuration tracks platform REST call latency. Use with attributes:
	//   attribute.String("endpoint", ...), attribute.String("status", ...)
	BackendDuration metric.Float64Histogram

	// NarrationDuration tracks question narration wall time.
	NarrationDuration metric.Float64Histogram

	// AnswerDuration tracks how long candidates spent on each question.
	AnswerDuration metric.Float64Histogram

	// --- Counters ---

	// AnswersSubmitted counts answer records sent to the answer store. Use
	// with attribute.String("status", ...).
	AnswersSubmitted metric.Int64Counter

	// RecognitionRestarts counts speech capture auto-restarts. Use with
	// attribute.String("cause", ...).
	RecognitionRestarts metric.Int64Counter

	// RecognitionFailures counts fatal speech capture failures by error code.
	RecognitionFailures metric.Int64Counter

	// TabSwitches counts qualifying focus-loss events after de-duplication.
	TabSwitches metric.Int64Counter

	// PhotosUploaded counts proctoring photo captures. Use with
	// attribute.String("status", ...).
	PhotosUploaded metric.Int64Counter

	// SessionsCompleted counts sessions that reached the Complete phase.
	SessionsCompleted metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of live interview sessions.
	ActiveSessions metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for
// backend and narration latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// answerBuckets covers the per-question answer duration range in seconds.
// The default question time limit is 120s.
var answerBuckets = []float64{
	5, 15, 30, 45, 60, 90, 120, 180, 300,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.BackendDuration, err = m.Float64Histogram("intervox.backend.duration",
		metric.WithDescription("Latency of platform REST backend calls."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.NarrationDuration, err = m.Float64Histogram("intervox.narration.duration",
		metric.WithDescription("Wall time of question narration."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.AnswerDuration, err = m.Float64Histogram("intervox.answer.duration",
		metric.WithDescription("Time candidates spent per question."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(answerBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.AnswersSubmitted, err = m.Int64Counter("intervox.answers.submitted",
		metric.WithDescription("Answer records sent to the answer store, by status."),
	); err != nil {
		return nil, err
	}
	if met.RecognitionRestarts, err = m.Int64Counter("intervox.recognition.restarts",
		metric.WithDescription("Speech capture auto-restarts by cause."),
	); err != nil {
		return nil, err
	}
	if met.RecognitionFailures, err = m.Int64Counter("intervox.recognition.failures",
		metric.WithDescription("Fatal speech capture failures by error code."),
	); err != nil {
		return nil, err
	}
	if met.TabSwitches, err = m.Int64Counter("intervox.proctor.tab_switches",
		metric.WithDescription("Qualifying focus-loss events after de-duplication."),
	); err != nil {
		return nil, err
	}
	if met.PhotosUploaded, err = m.Int64Counter("intervox.proctor.photos",
		metric.WithDescription("Proctoring photo captures by status."),
	); err != nil {
		return nil, err
	}
	if met.SessionsCompleted, err = m.Int64Counter("intervox.sessions.completed",
		metric.WithDescription("Interview sessions that reached completion."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("intervox.active_sessions",
		metric.WithDescription("Number of live interview sessions."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("intervox.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordBackendCall is a convenience method that records one backend request
// with its endpoint, outcome, and latency in seconds.
func (m *Metrics) RecordBackendCall(ctx context.Context, endpoint, status string, seconds float64) {
	m.BackendDuration.Record(ctx, seconds,
		metric.WithAttributes(
			attribute.String("endpoint", endpoint),
			attribute.String("status", status),
		),
	)
}

// RecordAnswerSubmitted is a convenience method that records an answer
// persistence attempt.
func (m *Metrics) RecordAnswerSubmitted(ctx context.Context, status string) {
	m.AnswersSubmitted.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)),
	)
}

// RecordRecognitionRestart is a convenience method that records a capture
// auto-restart with its cause.
func (m *Metrics) RecordRecognitionRestart(ctx context.Context, cause string) {
	m.RecognitionRestarts.Add(ctx, 1,
		metric.WithAttributes(attribute.String("cause", cause)),
	)
}

// RecordRecognitionFailure is a convenience method that records a fatal
// capture failure with its error code.
func (m *Metrics) RecordRecognitionFailure(ctx context.Context, code string) {
	m.RecognitionFailures.Add(ctx, 1,
		metric.WithAttributes(attribute.String("code", code)),
	)
}

// RecordPhotoUpload is a convenience method that records a proctoring photo
// attempt outcome.
func (m *Metrics) RecordPhotoUpload(ctx context.Context, status string) {
	m.PhotosUploaded.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)),
	)
}
