// Package observe provides application-wide observability primitives for
// Temple Guardian: OpenTelemetry metrics, distributed tracing, structured
// logging, and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is set up by [InitProvider] so that metrics can be scraped
// via the standard /metrics endpoint. A package-level default [Metrics]
// instance ([DefaultMetrics]) is provided for convenience; tests should use
// [NewMetrics] with a custom [metric.MeterProvider] to avoid cross-test
// pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Temple Guardian metrics.
const meterName = "github.com/MrWong99/templeguardian"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// LLMDuration tracks chat-completion latency.
	LLMDuration metric.Float64Histogram

	// ChantLoadDuration tracks the time from play to audible for a chant,
	// including synthesis or download. Use with attribute:
	//   attribute.String("source", "recipe"|"url")
	ChantLoadDuration metric.Float64Histogram

	// --- Counters ---

	// ProviderRequests counts provider API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// ChatReplies counts assistant replies. Use with attributes:
	//   attribute.String("agent", ...), attribute.String("source", ...)
	ChatReplies metric.Int64Counter

	// PlayerCommands counts transport commands. Use with attribute:
	//   attribute.String("command", ...)
	PlayerCommands metric.Int64Counter

	// --- Error counters ---

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// ChantLoadFailures counts chants that could not be started.
	ChantLoadFailures metric.Int64Counter

	// --- Gauges ---

	// ActivePlayers tracks the number of open chant players.
	ActivePlayers metric.Int64UpDownCounter

	// AudioListeners tracks connected audio stream listeners across players.
	AudioListeners metric.Int64UpDownCounter

	// EventSubscribers tracks connected websocket state listeners.
	EventSubscribers metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("route", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) spanning
// in-process synthesis up to slow remote completions.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.LLMDuration, err = m.Float64Histogram("templeguardian.llm.duration",
		metric.WithDescription("Latency of chat-completion requests."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ChantLoadDuration, err = m.Float64Histogram("templeguardian.chant.load.duration",
		metric.WithDescription("Time to start a chant, including synthesis or download."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.ProviderRequests, err = m.Int64Counter("templeguardian.provider.requests",
		metric.WithDescription("Total provider API requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.ChatReplies, err = m.Int64Counter("templeguardian.chat.replies",
		metric.WithDescription("Total assistant replies by agent and source."),
	); err != nil {
		return nil, err
	}
	if met.PlayerCommands, err = m.Int64Counter("templeguardian.player.commands",
		metric.WithDescription("Total chant player commands by command."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.ProviderErrors, err = m.Int64Counter("templeguardian.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}
	if met.ChantLoadFailures, err = m.Int64Counter("templeguardian.chant.load.failures",
		metric.WithDescription("Total chants that failed to start."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActivePlayers, err = m.Int64UpDownCounter("templeguardian.active_players",
		metric.WithDescription("Number of open chant players."),
	); err != nil {
		return nil, err
	}
	if met.AudioListeners, err = m.Int64UpDownCounter("templeguardian.audio_listeners",
		metric.WithDescription("Number of connected audio stream listeners."),
	); err != nil {
		return nil, err
	}
	if met.EventSubscribers, err = m.Int64UpDownCounter("templeguardian.event_subscribers",
		metric.WithDescription("Number of connected player event websockets."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("templeguardian.http.request.duration",
		metric.WithDescription("HTTP request latency by method and route."),
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

// RecordProviderRequest records a provider request counter increment with
// the standard attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError records a provider error counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordChatReply records one assistant reply.
func (m *Metrics) RecordChatReply(ctx context.Context, agent, source string) {
	m.ChatReplies.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("agent", agent),
			attribute.String("source", source),
		),
	)
}

// RecordPlayerCommand records one transport command.
func (m *Metrics) RecordPlayerCommand(ctx context.Context, command string) {
	m.PlayerCommands.Add(ctx, 1, metric.WithAttributes(attribute.String("command", command)))
}

// RecordChantLoad records the outcome of starting a chant.
func (m *Metrics) RecordChantLoad(ctx context.Context, source string, seconds float64, failed bool) {
	if failed {
		m.ChantLoadFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("source", source)))
		return
	}
	m.ChantLoadDuration.Record(ctx, seconds, metric.WithAttributes(attribute.String("source", source)))
}
