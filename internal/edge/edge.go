// Package edge is the per-request pipeline in front of every public route:
// a rate limit check, then the downstream handler, then the security
// headers on whatever response it produced.
//
//	Start -> RateLimitCheck -> Throttled: 429
//	                        -> Allowed:   downstream -> headers -> respond
//
// Outside production both steps are skipped and requests pass untouched.
package edge

import (
	"bufio"
	"context"
	"net"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/devint-cl/devint-web/internal/httpmw"
	"github.com/devint-cl/devint-web/internal/ratelimit"
	"github.com/devint-cl/devint-web/internal/xerrors"
)

const (
	// RetryAfterSeconds is sent on every throttled response regardless of
	// how much of the client's window is left
	RetryAfterSeconds = "60"
	throttledBody     = "Too Many Requests"
)

// Checker records a request and decides whether it may proceed.
// *ratelimit.Limiter implements it.
type Checker interface {
	Check(ctx context.Context, clientID string) ratelimit.Decision
}

type Options struct {
	// Production enables rate limiting and security headers
	Production bool

	// Limiter may be nil, in which case nothing is throttled
	Limiter Checker
}

type Pipeline struct {
	production bool
	limiter    Checker
}

func New(opts Options) *Pipeline {
	return &Pipeline{production: opts.Production, limiter: opts.Limiter}
}

// Middleware wraps next in the pipeline.
func (p *Pipeline) Middleware(next http.Handler) http.Handler {
	if !p.production {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers := httpmw.HeadersFor(r, true)

		if p.limiter != nil {
			clientID := httpmw.ClientIDOf(r)
			decision := p.limiter.Check(r.Context(), clientID)

			if span := trace.SpanFromContext(r.Context()); span.IsRecording() {
				span.SetAttributes(attribute.Bool("ratelimit.throttled", decision == ratelimit.Throttled))
			}
			if decision == ratelimit.Throttled {
				writeThrottled(w, headers)
				return
			}
		}

		hw := &headerWriter{ResponseWriter: w, headers: headers}
		next.ServeHTTP(hw, r)
		// a handler that returns without writing still produces an
		// implicit 200, which needs the headers too
		hw.apply()
	})
}

func writeThrottled(w http.ResponseWriter, headers httpmw.HeaderSet) {
	h := w.Header()
	headers.Apply(h)
	h.Set("Retry-After", RetryAfterSeconds)
	h.Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusTooManyRequests)
	_, _ = w.Write([]byte(throttledBody))
}

// headerWriter sets the security headers just before the status line goes
// out, so they override anything the handler set under the same name. If
// the handler panics before writing, nothing is applied.
type headerWriter struct {
	http.ResponseWriter
	headers httpmw.HeaderSet
	applied bool
}

func (hw *headerWriter) apply() {
	if hw.applied {
		return
	}
	hw.applied = true
	hw.headers.Apply(hw.ResponseWriter.Header())
}

func (hw *headerWriter) WriteHeader(code int) {
	hw.apply()
	hw.ResponseWriter.WriteHeader(code)
}

func (hw *headerWriter) Write(b []byte) (int, error) {
	hw.apply()
	return hw.ResponseWriter.Write(b)
}

func (hw *headerWriter) Flush() {
	hw.apply()
	if f, ok := hw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (hw *headerWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := hw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, xerrors.New("underlying ResponseWriter does not implement http.Hijacker")
	}
	return h.Hijack()
}

func (hw *headerWriter) Unwrap() http.ResponseWriter { return hw.ResponseWriter }
