package server

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/teemow/inboxindex/internal/instrumentation"
	"github.com/teemow/inboxindex/internal/logging"
)

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Flush keeps streamed MCP responses flowing through the recorder.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// instrument logs and records every request. The route pattern, not the
// raw path, is used as the metric label to keep cardinality bounded.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx, span := instrumentation.StartSpan(r.Context(), "http.request",
			attribute.String("http.method", r.Method))
		r = r.WithContext(ctx)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		duration := time.Since(start)

		// The mux sets Pattern on the request it was handed.
		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		span.SetName(route)
		span.SetAttributes(attribute.Int("http.status_code", rec.status))
		span.End()

		s.metrics.RecordHTTPRequest(ctx, r.Method, route, rec.status, duration)
		s.logger.DebugContext(ctx, "request served",
			slog.String("method", r.Method),
			slog.String("route", route),
			slog.Int("http_status", rec.status),
			slog.String("trace_id", instrumentation.TraceID(ctx)),
			slog.Duration(logging.KeyDuration, duration))
	})
}

// requireToken rejects requests that do not carry the configured control
// token as "Authorization: Bearer <token>".
func (s *Server) requireToken(next http.HandlerFunc) http.Handler {
	want := []byte(s.cfg.ControlToken)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(want) == 0 {
			s.logger.WarnContext(r.Context(), "refusing protected route without a control token", slog.String("path", r.URL.Path))
			writeJSON(w, http.StatusUnauthorized, errorResponse{
				Error: "control token not configured",
				Hint:  "set CONTROL_TOKEN to enable this route",
			})
			return
		}
		scheme, got, ok := strings.Cut(r.Header.Get("Authorization"), " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") ||
			subtle.ConstantTimeCompare([]byte(strings.TrimSpace(got)), want) != 1 {
			w.Header().Set("WWW-Authenticate", `Bearer realm="inboxindex"`)
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "missing or invalid bearer token"})
			return
		}
		next(w, r)
	})
}
