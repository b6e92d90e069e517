package logging

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// TraceIDHeader carries the trace identifier on HTTP requests and responses.
const TraceIDHeader = "X-Trace-ID"

// TraceIDField is the log field holding the trace identifier.
const TraceIDField = "trace_id"

// maxTraceIDLength caps client supplied identifiers before they reach the logs.
const maxTraceIDLength = 128

type contextKey int

const (
	loggerKey contextKey = iota
	traceKey
)

// ContextWithLogger stores logger in ctx.
func ContextWithLogger(ctx context.Context, logger *Logger) context.Context {
	if logger == nil {
		return ctx
	}
	return context.WithValue(ctx, loggerKey, logger)
}

// LoggerFromContext returns the request logger or the global logger.
func LoggerFromContext(ctx context.Context) *Logger {
	if ctx != nil {
		if logger, ok := ctx.Value(loggerKey).(*Logger); ok && logger != nil {
			return logger
		}
	}
	return L()
}

// TraceIDFromContext returns the trace identifier stored by WithTrace.
func TraceIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	traceID, _ := ctx.Value(traceKey).(string)
	return traceID
}

// NewTraceID returns a fresh random identifier.
func NewTraceID() string {
	return uuid.NewString()
}

// WithTrace binds traceID, or a fresh one when it is blank or oversized, to
// both the context and a derived logger.
func WithTrace(ctx context.Context, base *Logger, traceID string) (context.Context, *Logger, string) {
	tid := strings.TrimSpace(traceID)
	if tid == "" || len(tid) > maxTraceIDLength {
		tid = NewTraceID()
	}
	if base == nil {
		base = L()
	}
	derived := base.With(String(TraceIDField, tid))
	ctx = context.WithValue(ctx, traceKey, tid)
	return ContextWithLogger(ctx, derived), derived, tid
}

// HTTPTraceMiddleware tags each request with a trace identifier, echoes it in
// the response header and exposes a request scoped logger.
func HTTPTraceMiddleware(base *Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, logger, traceID := WithTrace(r.Context(), base, r.Header.Get(TraceIDHeader))
			w.Header().Set(TraceIDHeader, traceID)
			if logger.Enabled(DebugLevel) {
				logger.Debug("request received", String("method", r.Method), String("path", r.URL.Path))
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
