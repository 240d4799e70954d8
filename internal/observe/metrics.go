// Package observe provides application-wide observability primitives for
// the voice assistant: OpenTelemetry metrics, distributed tracing,
// structured logging, and HTTP middleware that ties them together.
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

// meterName is the instrumentation scope name used for all assistant metrics.
const meterName = "github.com/agalue/jarvis-voice"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// PreprocessDuration tracks audio-preprocessor (gain/NS/VAD) latency per frame.
	PreprocessDuration metric.Float64Histogram

	// WakeDetectDuration tracks wake-recognizer inference latency.
	WakeDetectDuration metric.Float64Histogram

	// SpeechRecognizeDuration tracks free-form speech-recognizer latency.
	SpeechRecognizeDuration metric.Float64Histogram

	// IntentClassifyDuration tracks intent-classification latency (embedding
	// similarity and fuzzy-match fallback combined).
	IntentClassifyDuration metric.Float64Histogram

	// SlotExtractDuration tracks slot-extraction model latency.
	SlotExtractDuration metric.Float64Histogram

	// CommandExecutionDuration tracks action-dispatch latency by action kind.
	CommandExecutionDuration metric.Float64Histogram

	// --- Counters ---

	// FramesProcessed counts audio frames that passed through the preprocessor.
	FramesProcessed metric.Int64Counter

	// WakeDetections counts wake-word detection events by outcome (accepted, rejected).
	WakeDetections metric.Int64Counter

	// CommandDispatches counts command dispatches by command ID and outcome.
	CommandDispatches metric.Int64Counter

	// IntentFallbacks counts how often the fuzzy matcher fired because the
	// embedding classifier's top match fell below its confidence threshold.
	IntentFallbacks metric.Int64Counter

	// ScriptTimeouts counts script-action executions that were interrupted
	// after exceeding their configured timeout.
	ScriptTimeouts metric.Int64Counter

	// --- Error counters ---

	// ProviderErrors counts backend errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("stage", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveIPCClients tracks the number of connected IPC clients.
	ActiveIPCClients metric.Int64UpDownCounter

	// SessionState tracks the controller's current state as a label-carrying
	// gauge; callers set it to 1 for the active state and 0 for the others.
	SessionState metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time (metrics/health
	// endpoints). Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for voice-pipeline latencies, including sub-10ms per-frame processing.
var latencyBuckets = []float64{
	0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.PreprocessDuration, err = m.Float64Histogram("jarvis.preprocess.duration",
		metric.WithDescription("Latency of the audio preprocessor per frame."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.WakeDetectDuration, err = m.Float64Histogram("jarvis.wake.detect.duration",
		metric.WithDescription("Latency of wake-word recognizer inference."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SpeechRecognizeDuration, err = m.Float64Histogram("jarvis.speech.recognize.duration",
		metric.WithDescription("Latency of free-form speech recognition."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.IntentClassifyDuration, err = m.Float64Histogram("jarvis.intent.classify.duration",
		metric.WithDescription("Latency of intent classification, including fuzzy fallback."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SlotExtractDuration, err = m.Float64Histogram("jarvis.slots.extract.duration",
		metric.WithDescription("Latency of slot extraction."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.CommandExecutionDuration, err = m.Float64Histogram("jarvis.command.execution.duration",
		metric.WithDescription("Latency of command action execution by action kind."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.FramesProcessed, err = m.Int64Counter("jarvis.frames.processed",
		metric.WithDescription("Total audio frames processed by the preprocessor."),
	); err != nil {
		return nil, err
	}
	if met.WakeDetections, err = m.Int64Counter("jarvis.wake.detections",
		metric.WithDescription("Total wake-word detection events by outcome."),
	); err != nil {
		return nil, err
	}
	if met.CommandDispatches, err = m.Int64Counter("jarvis.command.dispatches",
		metric.WithDescription("Total command dispatches by command ID and outcome."),
	); err != nil {
		return nil, err
	}
	if met.IntentFallbacks, err = m.Int64Counter("jarvis.intent.fallbacks",
		metric.WithDescription("Total fuzzy-match fallbacks triggered by low embedding confidence."),
	); err != nil {
		return nil, err
	}
	if met.ScriptTimeouts, err = m.Int64Counter("jarvis.script.timeouts",
		metric.WithDescription("Total script actions interrupted after exceeding their timeout."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.ProviderErrors, err = m.Int64Counter("jarvis.provider.errors",
		metric.WithDescription("Total backend errors by provider and pipeline stage."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveIPCClients, err = m.Int64UpDownCounter("jarvis.ipc.active_clients",
		metric.WithDescription("Number of connected IPC clients."),
	); err != nil {
		return nil, err
	}
	if met.SessionState, err = m.Int64UpDownCounter("jarvis.session.state",
		metric.WithDescription("Controller state indicator, one series per state label."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("jarvis.http.request.duration",
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

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordFrameProcessed is a convenience method that increments the
// frames-processed counter.
func (m *Metrics) RecordFrameProcessed(ctx context.Context) {
	m.FramesProcessed.Add(ctx, 1)
}

// RecordWakeDetection is a convenience method that records a wake-detection
// event with its outcome ("accepted" or "rejected").
func (m *Metrics) RecordWakeDetection(ctx context.Context, outcome string) {
	m.WakeDetections.Add(ctx, 1,
		metric.WithAttributes(attribute.String("outcome", outcome)),
	)
}

// RecordCommandDispatch is a convenience method that records a command
// dispatch with the standard attribute set.
func (m *Metrics) RecordCommandDispatch(ctx context.Context, commandID, outcome string) {
	m.CommandDispatches.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("command_id", commandID),
			attribute.String("outcome", outcome),
		),
	)
}

// RecordIntentFallback is a convenience method that increments the
// intent-fallback counter.
func (m *Metrics) RecordIntentFallback(ctx context.Context) {
	m.IntentFallbacks.Add(ctx, 1)
}

// RecordScriptTimeout is a convenience method that records a script timeout
// for the given command ID.
func (m *Metrics) RecordScriptTimeout(ctx context.Context, commandID string) {
	m.ScriptTimeouts.Add(ctx, 1,
		metric.WithAttributes(attribute.String("command_id", commandID)),
	)
}

// RecordProviderError is a convenience method that records a provider error
// counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, stage string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("stage", stage),
		),
	)
}
