package trace

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNewContext(t *testing.T) {
	tc := New()
	if len(tc.TraceID) != 32 {
		t.Errorf("trace ID should be 32 chars, got %d", len(tc.TraceID))
	}
	if len(tc.SpanID) != 16 {
		t.Errorf("span ID should be 16 chars, got %d", len(tc.SpanID))
	}
	if tc.ParentSpanID != "" {
		t.Error("new context should not have parent span ID")
	}
}

func TestContinue(t *testing.T) {
	tc := Continue("abc", "def")
	if tc.TraceID != "abc" || tc.ParentSpanID != "def" {
		t.Errorf("Continue = %+v", tc)
	}
	if len(tc.SpanID) != 16 {
		t.Error("should generate new span ID")
	}

	if fresh := Continue("", "def"); len(fresh.TraceID) != 32 || fresh.ParentSpanID != "" {
		t.Errorf("Continue without trace ID = %+v, want a new root", fresh)
	}
}

func TestEnsureContext(t *testing.T) {
	ctx, tc := EnsureContext(context.Background())
	if len(tc.TraceID) != 32 {
		t.Error("should create trace ID")
	}

	_, again := EnsureContext(ctx)
	if again.TraceID != tc.TraceID {
		t.Error("should return existing trace")
	}
}

func TestSpanNested(t *testing.T) {
	ctx, run := StartSpan(context.Background(), "macro.run")
	_, step := StartSpan(ctx, "macro.step")

	if step.Ctx.TraceID != run.Ctx.TraceID {
		t.Error("step should inherit the run's trace ID")
	}
	if step.Ctx.ParentSpanID != run.Ctx.SpanID {
		t.Error("step's parent should be the run span")
	}

	step.SetAttr("index", 2)
	step.Fail(errors.New("template not found"))
	step.End()
	run.End()

	if step.EndTime.IsZero() || step.Err == nil {
		t.Errorf("step not closed correctly: %+v", step)
	}
}

func TestMiddlewareContinuesTrace(t *testing.T) {
	var seen Context
	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = FromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	req.Header.Set(TraceIDKey, "0123456789abcdef0123456789abcdef")
	req.Header.Set(SpanIDKey, "caller01caller01")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if seen.TraceID != "0123456789abcdef0123456789abcdef" || seen.ParentSpanID != "caller01caller01" {
		t.Errorf("handler saw %+v", seen)
	}
	if rec.Header().Get(TraceIDKey) != seen.TraceID {
		t.Error("response should echo the trace ID")
	}
}

func TestFromMessage(t *testing.T) {
	tc, ok := FromMessage([]byte(`{"type":"run","id":"daily","trace_id":"feed"}`))
	if !ok || tc.TraceID != "feed" {
		t.Errorf("FromMessage = %+v, %v", tc, ok)
	}
	if _, ok := FromMessage([]byte(`{"type":"stop"}`)); ok {
		t.Error("message without trace_id should report false")
	}
}

func TestLogger(t *testing.T) {
	ctx := WithContext(context.Background(), New())
	Logger(ctx).Info("test message")
}
