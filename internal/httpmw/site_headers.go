package httpmw

import (
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// SiteInfo describes the site snapshot currently being served.
type SiteInfo interface {
	SiteVersion() string
	SiteHash() string
}

// SiteHeaders adds X-Site-Version and a 12 char X-Site-Hash when a snapshot
// is loaded, and tags the active span with them.
func SiteHeaders(info SiteInfo) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if info == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			v, h := info.SiteVersion(), info.SiteHash()
			if v != "" {
				w.Header().Set("X-Site-Version", v)
			}
			if h != "" {
				short := h
				if len(short) > 12 {
					short = short[:12]
				}
				w.Header().Set("X-Site-Hash", short)
			}
			if span := trace.SpanFromContext(r.Context()); span.IsRecording() {
				if v != "" {
					span.SetAttributes(attribute.String("site.version", v))
				}
				if h != "" {
					span.SetAttributes(attribute.String("site.hash", h))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
