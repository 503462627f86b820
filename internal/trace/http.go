package trace

import (
	"net/http"

	"github.com/tidwall/gjson"
)

// Middleware continues the caller's trace from request headers, or starts a
// new one, and echoes the trace ID back in the response.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tc := Continue(r.Header.Get(TraceIDKey), r.Header.Get(SpanIDKey))
		w.Header().Set(TraceIDKey, tc.TraceID)
		next.ServeHTTP(w, r.WithContext(WithContext(r.Context(), tc)))
	})
}

// FromMessage reads an optional "trace_id" field from a WebSocket message.
func FromMessage(data []byte) (Context, bool) {
	id := gjson.GetBytes(data, "trace_id").String()
	if id == "" {
		return New(), false
	}
	return Continue(id, ""), true
}
