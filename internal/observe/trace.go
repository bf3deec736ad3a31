package observe

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// tracerName is the instrumentation scope of every Temple Guardian span.
const tracerName = "github.com/MrWong99/templeguardian"

// Span names.
const (
	// SpanChantLoad covers one voice construction: synthesis or download,
	// decode, and graph start.
	SpanChantLoad = "chant.load"

	// SpanChatReply covers one assistant reply, including any model call.
	SpanChatReply = "chat.reply"
)

// Span attribute keys.
const (
	KeyPlayerID    = attribute.Key("player.id")
	KeyTrack       = attribute.Key("chant.track")
	KeyTrackSource = attribute.Key("chant.source") // "recipe" or "url"
	KeyOffset      = attribute.Key("chant.offset_s")
	KeyAgent       = attribute.Key("chat.agent")
	KeyReplySource = attribute.Key("chat.source") // keyword, llm, apology, ...
)

// Tracer returns the Temple Guardian tracer from the global provider. It is
// looked up on every call so that a provider installed later takes effect.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSpan starts a span named name. The caller must end it.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}

// Fail records err on span and marks it failed with msg. A nil err leaves
// the span untouched.
func Fail(span trace.Span, err error, msg string) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, msg)
}

// CorrelationID returns the trace ID of the span in ctx, or "".
func CorrelationID(ctx context.Context) string {
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// Logger returns the default logger with trace_id and span_id of the span in
// ctx, plus args. Without a span only args are added.
func Logger(ctx context.Context, args ...any) *slog.Logger {
	l := slog.Default()
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		l = l.With(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	if len(args) > 0 {
		l = l.With(args...)
	}
	return l
}
