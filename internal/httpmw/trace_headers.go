package httpmw

import (
	"net/http"

	"go.opentelemetry.io/otel/trace"
)

// TraceResponseHeaders exposes the request's trace id so a visitor report
// can be matched to a trace. The span id is only sent for sampled traces;
// unsampled spans are never exported and cannot be looked up.
func TraceResponseHeaders(traceHeader, spanHeader string) func(http.Handler) http.Handler {
	if traceHeader == "" {
		traceHeader = "X-Trace-Id"
	}
	if spanHeader == "" {
		spanHeader = "X-Span-Id"
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if sc := trace.SpanContextFromContext(r.Context()); sc.IsValid() {
				w.Header().Set(traceHeader, sc.TraceID().String())
				if sc.IsSampled() {
					w.Header().Set(spanHeader, sc.SpanID().String())
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
