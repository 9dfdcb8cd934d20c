package observe

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/MrWong99/voicenotes"

// Span and log attribute keys for the work a request or job belongs to.
const (
	NoteKey = "note.id"
	ChatKey = "chat.id"
)

type scopeKey struct{}

// scope is the note and chat a context works on.
type scope struct {
	note string
	chat string
}

func scopeFrom(ctx context.Context) scope {
	s, _ := ctx.Value(scopeKey{}).(scope)
	return s
}

// WithNote tags ctx with the note it processes. Spans started from ctx and
// loggers from [Logger] carry the id.
func WithNote(ctx context.Context, noteID string) context.Context {
	s := scopeFrom(ctx)
	s.note = noteID
	return context.WithValue(ctx, scopeKey{}, s)
}

// WithChat tags ctx with the chat session it serves.
func WithChat(ctx context.Context, chatID string) context.Context {
	s := scopeFrom(ctx)
	s.chat = chatID
	return context.WithValue(ctx, scopeKey{}, s)
}

// NoteID returns the note ctx was tagged with by [WithNote], or "".
func NoteID(ctx context.Context) string { return scopeFrom(ctx).note }

// Tracer returns the package-level [trace.Tracer] from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSpan starts a new span carrying the note and chat ids of ctx. The
// caller must call span.End().
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	if attrs := scopeAttrs(scopeFrom(ctx)); len(attrs) > 0 {
		opts = append(opts, trace.WithAttributes(attrs...))
	}
	return Tracer().Start(ctx, name, opts...)
}

func scopeAttrs(s scope) []attribute.KeyValue {
	var attrs []attribute.KeyValue
	if s.note != "" {
		attrs = append(attrs, attribute.String(NoteKey, s.note))
	}
	if s.chat != "" {
		attrs = append(attrs, attribute.String(ChatKey, s.chat))
	}
	return attrs
}

// CorrelationID returns the trace ID of the active span in ctx, or "".
func CorrelationID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// Logger returns the default [slog.Logger] with the note and chat ids of ctx
// and, under an active span, its trace_id and span_id.
func Logger(ctx context.Context) *slog.Logger {
	l := slog.Default()
	s := scopeFrom(ctx)
	if s.note != "" {
		l = l.With(slog.String("note", s.note))
	}
	if s.chat != "" {
		l = l.With(slog.String("chat", s.chat))
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		l = l.With(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	return l
}
