package httpmw

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// newRecordingSpan starts a real span on a private provider.
func newRecordingSpan(t *testing.T, name string) (context.Context, func(), *tracetest.SpanRecorder) {
	t.Helper()
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	ctx, span := tp.Tracer("test").Start(context.Background(), name)
	return ctx, func() { span.End() }, sr
}

func routeAttr(s sdktrace.ReadOnlySpan) string {
	for _, kv := range s.Attributes() {
		if kv.Key == attribute.Key("http.route") {
			return kv.Value.AsString()
		}
	}
	return ""
}

func TestAnnotateHTTPRoute(t *testing.T) {
	tests := []struct {
		name      string
		method    string
		path      string
		wantRoute string
	}{
		{"matched route", http.MethodPost, "/api/contact", "/api/contact"},
		{"sitemap", http.MethodGet, "/sitemap.xml", "/sitemap.xml"},
		{"site fallback", http.MethodGet, "/servicios/cloud/", SiteRoute},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := chi.NewRouter()
			r.Use(AnnotateHTTPRoute)
			noop := func(http.ResponseWriter, *http.Request) {}
			r.Post("/api/contact", noop)
			r.Get("/sitemap.xml", noop)
			r.NotFound(noop)

			ctx, end, sr := newRecordingSpan(t, "http.server")
			r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(tt.method, tt.path, nil).WithContext(ctx))
			end()

			spans := sr.Ended()
			if len(spans) != 1 {
				t.Fatalf("spans = %d", len(spans))
			}
			if got := routeAttr(spans[0]); got != tt.wantRoute {
				t.Errorf("http.route = %q, want %q", got, tt.wantRoute)
			}
			if want := tt.method + " " + tt.wantRoute; spans[0].Name() != want {
				t.Errorf("span name = %q, want %q", spans[0].Name(), want)
			}
		})
	}
}

func TestAnnotateHTTPRoute_NoSpan(t *testing.T) {
	called := false
	h := AnnotateHTTPRoute(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusNoContent)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if !called || rec.Code != http.StatusNoContent {
		t.Fatalf("called = %v, status = %d", called, rec.Code)
	}
}
