package observe

import (
	"bufio"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// CorrelationHeader carries the trace ID of every response.
const CorrelationHeader = "X-Correlation-ID"

// unmatchedRoute labels requests no route claimed, keeping the path label
// bounded.
const unmatchedRoute = "unmatched"

// responseRecorder captures the status written downstream. Hijack and Flush
// pass through so the event socket and streamed chat answers keep working.
type responseRecorder struct {
	http.ResponseWriter
	status int
	wrote  bool
}

func (r *responseRecorder) WriteHeader(code int) {
	if !r.wrote {
		r.status, r.wrote = code, true
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	r.wrote = true
	return r.ResponseWriter.Write(b)
}

func (r *responseRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("observe: %T cannot be hijacked", r.ResponseWriter)
	}
	r.status, r.wrote = http.StatusSwitchingProtocols, true
	return hj.Hijack()
}

func (r *responseRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		r.wrote = true
		f.Flush()
	}
}

func (r *responseRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

// quietRoutes log at debug level.
var quietRoutes = map[string]bool{
	"GET /healthz":   true,
	"GET /readyz":    true,
	"GET /metrics":   true,
	"GET /api/state": true,
}

// Middleware wraps a [http.ServeMux] (or a handler in front of one) with
// tracing, metrics and request logging. Spans and the duration histogram are
// labelled with the matched route pattern, so /api/notes/{id} is one series
// however many notes exist. A panicking handler answers 500 and is logged
// with its stack.
func Middleware(m *Metrics) func(http.Handler) http.Handler {
	prop := propagation.TraceContext{}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ctx := prop.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
			ctx, span := StartSpan(ctx, "HTTP "+r.Method,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					semconv.HTTPRequestMethodKey.String(r.Method),
					semconv.URLPath(r.URL.Path),
				),
			)
			defer span.End()

			cid := CorrelationID(ctx)
			if cid != "" {
				w.Header().Set(CorrelationHeader, cid)
			}
			prop.Inject(ctx, propagation.HeaderCarrier(w.Header()))

			// The mux records the matched pattern on this request value.
			r = r.WithContext(ctx)
			rec := &responseRecorder{ResponseWriter: w, status: http.StatusOK}

			defer func() {
				if p := recover(); p != nil {
					if p == http.ErrAbortHandler {
						panic(p)
					}
					span.SetStatus(codes.Error, fmt.Sprint(p))
					Logger(ctx).Error("http: handler panic", "path", r.URL.Path, "panic", p, "stack", string(debug.Stack()))
					if !rec.wrote {
						http.Error(rec, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
					} else {
						rec.status = http.StatusInternalServerError
					}
				}

				route := r.Pattern
				if route == "" {
					route = unmatchedRoute
				}
				elapsed := time.Since(start)

				span.SetName("HTTP " + route)
				span.SetAttributes(
					semconv.HTTPRoute(route),
					semconv.HTTPResponseStatusCode(rec.status),
				)
				if rec.status >= http.StatusInternalServerError {
					span.SetStatus(codes.Error, http.StatusText(rec.status))
				}

				m.HTTPRequestDuration.Record(ctx, elapsed.Seconds(),
					metric.WithAttributes(
						attribute.String("method", r.Method),
						attribute.String("path", route),
						attribute.Int("status", rec.status),
					),
				)

				level := slog.LevelInfo
				switch {
				case rec.status >= http.StatusInternalServerError:
					level = slog.LevelError
				case quietRoutes[route]:
					level = slog.LevelDebug
				}
				Logger(ctx).LogAttrs(ctx, level, "http: request",
					slog.String("route", route),
					slog.String("path", r.URL.Path),
					slog.Int("status", rec.status),
					slog.Duration("duration", elapsed),
				)
			}()

			next.ServeHTTP(rec, r)
		})
	}
}
