package logging

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestHTTPTraceMiddlewarePropagatesHeader(t *testing.T) {
	logger, buf := newBufferLogger(DebugLevel)
	var seen string
	handler := HTTPTraceMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = TraceIDFromContext(r.Context())
		LoggerFromContext(r.Context()).Info("handled")
	}))
	req := httptest.NewRequest(http.MethodGet, "/viewpoint", nil)
	req.Header.Set(TraceIDHeader, "abc123")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if seen != "abc123" || rec.Header().Get(TraceIDHeader) != "abc123" {
		t.Fatalf("trace id not propagated: ctx=%q header=%q", seen, rec.Header().Get(TraceIDHeader))
	}
	if strings.Count(buf.String(), `"trace_id":"abc123"`) != 2 {
		t.Fatalf("expected both lines to carry the trace id, got %s", buf.String())
	}
}

func TestWithTraceGeneratesIdentifiers(t *testing.T) {
	_, _, blank := WithTrace(context.Background(), NewTestLogger(), "  ")
	if _, err := uuid.Parse(blank); err != nil {
		t.Fatalf("expected a uuid for a blank trace id, got %q", blank)
	}
	_, _, oversized := WithTrace(context.Background(), NewTestLogger(), strings.Repeat("x", maxTraceIDLength+1))
	if len(oversized) > maxTraceIDLength {
		t.Fatalf("expected an oversized trace id to be replaced, got %d bytes", len(oversized))
	}
}

func TestLoggerFromContextFallsBackToGlobal(t *testing.T) {
	if LoggerFromContext(context.Background()) != L() {
		t.Fatal("expected the global logger without a request logger")
	}
	if TraceIDFromContext(context.Background()) != "" {
		t.Fatal("expected no trace id on a bare context")
	}
}
