package edge

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/devint-cl/devint-web/internal/httpmw"
	"github.com/devint-cl/devint-web/internal/ratelimit"
)

var mandatoryHeaders = []string{
	"Content-Security-Policy",
	"X-Frame-Options",
	"X-Content-Type-Options",
	"X-XSS-Protection",
	"Referrer-Policy",
	"Permissions-Policy",
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func okHandler(calls *int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*calls++
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("<h1>hola</h1>"))
	})
}

func request(ip string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	if ip != "" {
		r.Header.Set("X-Forwarded-For", ip)
	}
	return r
}

func serve(h http.Handler, r *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	return rec
}

func TestMiddleware_NonProductionPassesThrough(t *testing.T) {
	calls := 0
	l := ratelimit.New(ratelimit.WithLimit(1))
	h := New(Options{Production: false, Limiter: l}).Middleware(okHandler(&calls))

	for i := 0; i < 500; i++ {
		rec := serve(h, request("1.2.3.4"))
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: status %d", i+1, rec.Code)
		}
		if i == 0 {
			for _, name := range mandatoryHeaders {
				if rec.Header().Get(name) != "" {
					t.Fatalf("%s set outside production", name)
				}
			}
		}
	}
	if calls != 500 || l.Len() != 0 {
		t.Fatalf("calls=%d tracked=%d, want 500 and 0", calls, l.Len())
	}
}

func TestMiddleware_ProductionAddsHeaders(t *testing.T) {
	calls := 0
	h := New(Options{Production: true, Limiter: ratelimit.New()}).Middleware(okHandler(&calls))

	rec := serve(h, request("1.2.3.4"))
	if rec.Code != http.StatusOK || rec.Body.String() != "<h1>hola</h1>" {
		t.Fatalf("response altered: %d %q", rec.Code, rec.Body.String())
	}
	for _, name := range mandatoryHeaders {
		if rec.Header().Get(name) == "" {
			t.Errorf("missing %s", name)
		}
	}
	if rec.Header().Get("Strict-Transport-Security") != "" {
		t.Error("HSTS over http")
	}
	if rec.Header().Get("Content-Type") != "text/html; charset=utf-8" {
		t.Error("downstream headers must be kept")
	}

	r := request("1.2.3.4")
	r.Header.Set("X-Forwarded-Proto", "https")
	rec = serve(h, r)
	if rec.Header().Get("Strict-Transport-Security") != httpmw.HSTS {
		t.Errorf("HSTS = %q over https", rec.Header().Get("Strict-Transport-Security"))
	}
}

func TestMiddleware_HeadersOverrideDownstream(t *testing.T) {
	h := New(Options{Production: true}).Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Frame-Options", "SAMEORIGIN")
		w.Header().Set("Content-Security-Policy", "default-src *")
		w.Write([]byte("ok"))
	}))

	rec := serve(h, request(""))
	if got := rec.Header().Values("X-Frame-Options"); len(got) != 1 || got[0] != "DENY" {
		t.Fatalf("X-Frame-Options = %v", got)
	}
	if rec.Header().Get("Content-Security-Policy") != httpmw.ContentSecurityPolicy {
		t.Fatal("CSP not overridden")
	}
}

func TestMiddleware_HeadersOnImplicitResponse(t *testing.T) {
	h := New(Options{Production: true}).Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	rec := serve(h, request(""))
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatal("headers missing when the handler writes nothing")
	}
}

func TestMiddleware_HeadersOnErrorResponses(t *testing.T) {
	h := New(Options{Production: true}).Middleware(http.NotFoundHandler())
	rec := serve(h, request(""))
	if rec.Code != http.StatusNotFound || rec.Header().Get("X-Frame-Options") != "DENY" {
		t.Fatalf("status=%d xfo=%q", rec.Code, rec.Header().Get("X-Frame-Options"))
	}
}

func TestMiddleware_Scenario(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c := &clock{now: t0}
	l := ratelimit.New(ratelimit.WithClock(c.Now))
	calls := 0
	h := New(Options{Production: true, Limiter: l}).Middleware(okHandler(&calls))

	for i := 0; i < 100; i++ {
		if rec := serve(h, request("1.2.3.4")); rec.Code != http.StatusOK {
			t.Fatalf("request %d: %d", i+1, rec.Code)
		}
	}

	c.Set(t0.Add(time.Second))
	rec := serve(h, request("1.2.3.4"))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("#101 status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") != "60" {
		t.Errorf("Retry-After = %q", rec.Header().Get("Retry-After"))
	}
	if rec.Body.String() != "Too Many Requests" {
		t.Errorf("body = %q", rec.Body.String())
	}
	for _, name := range mandatoryHeaders {
		if rec.Header().Get(name) == "" {
			t.Errorf("429 missing %s", name)
		}
	}
	if calls != 100 {
		t.Fatalf("downstream calls = %d, want 100", calls)
	}

	// another client is unaffected
	if rec := serve(h, request("5.6.7.8")); rec.Code != http.StatusOK {
		t.Fatalf("other client: %d", rec.Code)
	}

	c.Set(t0.Add(15*time.Minute + time.Second))
	if rec := serve(h, request("1.2.3.4")); rec.Code != http.StatusOK {
		t.Fatalf("#102 status = %d, want 200", rec.Code)
	}
}

func TestMiddleware_UsesContextClientID(t *testing.T) {
	l := ratelimit.New(ratelimit.WithLimit(1))
	calls := 0
	h := New(Options{Production: true, Limiter: l}).Middleware(okHandler(&calls))

	r := request("1.2.3.4")
	r = r.WithContext(httpmw.WithClientID(r.Context(), "resolved"))
	serve(h, r)
	if l.CheckAndRecord("resolved", time.Now()) != ratelimit.Throttled {
		t.Fatal("limiter should key on the context client id")
	}
}

func TestMiddleware_PanicPropagatesWithoutHeaders(t *testing.T) {
	l := ratelimit.New()
	h := New(Options{Production: true, Limiter: l}).Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("downstream failed")
	}))

	rec := httptest.NewRecorder()
	func() {
		defer func() {
			if recover() == nil {
				t.Fatal("panic was swallowed")
			}
		}()
		h.ServeHTTP(rec, request("1.2.3.4"))
	}()

	if rec.Header().Get("Content-Security-Policy") != "" {
		t.Fatal("headers applied to a response that was never produced")
	}
	if l.Len() != 1 {
		t.Fatal("the failed request should still be counted")
	}
}

func TestMiddleware_NilLimiter(t *testing.T) {
	calls := 0
	h := New(Options{Production: true}).Middleware(okHandler(&calls))
	for i := 0; i < 200; i++ {
		serve(h, request("1.2.3.4"))
	}
	if calls != 200 {
		t.Fatalf("calls = %d", calls)
	}
}

func TestMiddleware_SpanAttribute(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	defer tp.Shutdown(context.Background())

	l := ratelimit.New(ratelimit.WithLimit(1))
	calls := 0
	h := New(Options{Production: true, Limiter: l}).Middleware(okHandler(&calls))

	for i := 0; i < 2; i++ {
		ctx, span := tp.Tracer("test").Start(context.Background(), "req")
		serve(h, request("1.2.3.4").WithContext(ctx))
		span.End()
	}

	spans := sr.Ended()
	if len(spans) != 2 {
		t.Fatalf("spans = %d", len(spans))
	}
	want := []bool{false, true}
	for i, s := range spans {
		var got attribute.Value
		for _, kv := range s.Attributes() {
			if kv.Key == "ratelimit.throttled" {
				got = kv.Value
			}
		}
		if got.Type() != attribute.BOOL || got.AsBool() != want[i] {
			t.Errorf("span %d ratelimit.throttled = %v, want %v", i, got.Emit(), want[i])
		}
	}
}

func TestHeaderWriter_Flush(t *testing.T) {
	rec := httptest.NewRecorder()
	hw := &headerWriter{ResponseWriter: rec, headers: httpmw.HeadersFor(request(""), true)}
	hw.Flush()
	if !rec.Flushed || rec.Header().Get("X-Frame-Options") != "DENY" {
		t.Fatal("Flush should apply headers and forward")
	}
}
