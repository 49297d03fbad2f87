// Package httpserver assembles the public listener: chi routes wrapped in
// the request middleware stack.
package httpserver

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/devint-cl/devint-web/internal/health"
	"github.com/devint-cl/devint-web/internal/httpmw"
	"github.com/devint-cl/devint-web/internal/log"
	"github.com/devint-cl/devint-web/internal/xerrors"
)

// DefaultMaxBodyBytes leaves room for the contact form, which applies its
// own tighter limit.
const DefaultMaxBodyBytes = 64 << 10

// NewHandler builds the public handler. Middleware, outermost first:
//
//	recover, request id, client id, otelhttp, edge (rate limit + security
//	headers), trace headers, site headers, metrics, request logger,
//	then inside the router: compression, route annotation, access log,
//	body limit.
//
// main owns the *http.Server so it can shut down gracefully.
func NewHandler(opts *Options) http.Handler {
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	maxBody := opts.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = DefaultMaxBodyBytes
	}

	r := chi.NewRouter()

	r.Use(middleware.Compress(5,
		"text/html",
		"text/css",
		"text/plain",
		"application/javascript",
		"text/javascript",
		"application/json",
		"application/xml",
		"image/svg+xml",
		"image/x-icon",
	))
	r.Use(httpmw.AnnotateHTTPRoute)
	r.Use(httpmw.AccessLog())
	r.Use(httpmw.MaxBody(maxBody))

	r.Get("/-/healthy", health.HealthzHandler(opts.Health))
	r.Get("/-/ready", health.ReadyzHandler(opts.Readiness))

	for _, rr := range opts.Routes {
		if rr != nil {
			rr.RegisterRoutes(r)
		}
	}

	var recoverMW func(http.Handler) http.Handler
	if opts.UseRecoverMW {
		recoverMW = httpmw.Recover(opts.Logger, opts.OnPanic)
	}
	tracing := func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, "http.server",
			otelhttp.WithFilter(func(r *http.Request) bool { return shouldTrace(r.URL.Path) }),
			// AnnotateHTTPRoute renames the span to the route pattern later
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return r.Method + " " + r.URL.Path
			}),
			otelhttp.WithPublicEndpointFn(func(*http.Request) bool { return true }),
		)
	}

	// nil entries are skipped. Edge sits inside otelhttp so throttling is
	// recorded on the request span.
	return httpmw.Chain(r,
		recoverMW,
		httpmw.RequestID("X-Request-Id"),
		httpmw.ClientIDMiddleware,
		tracing,
		opts.Edge,
		httpmw.TraceResponseHeaders("X-Trace-Id", "X-Span-Id"),
		httpmw.SiteHeaders(opts.SiteInfo),
		opts.MetricsMW,
		httpmw.RequestLogger(opts.Logger),
	)
}

// shouldTrace skips health checks, favicons and static assets.
func shouldTrace(p string) bool {
	switch p {
	case "/favicon.ico", "/favicon.svg", "/robots.txt", "/-/healthy", "/-/ready":
		return false
	}
	switch strings.ToLower(path.Ext(p)) {
	case ".css", ".js", ".mjs", ".png", ".jpg", ".jpeg", ".webp", ".avif", ".svg", ".ico", ".woff", ".woff2", ".map":
		return false
	}
	return true
}

// Server timeout defaults, shared with opshttp.
const (
	DefaultReadHeaderTimeout = 5 * time.Second
	DefaultReadTimeout       = 10 * time.Second
	DefaultWriteTimeout      = 10 * time.Second
	DefaultIdleTimeout       = 60 * time.Second
	DefaultMaxHeaderBytes    = 1 << 20
)

func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: DefaultReadHeaderTimeout,
		ReadTimeout:       DefaultReadTimeout,
		WriteTimeout:      DefaultWriteTimeout,
		IdleTimeout:       DefaultIdleTimeout,
		MaxHeaderBytes:    DefaultMaxHeaderBytes,
	}
}

// Start serves the public handler on opts.Port (default 8080) and returns
// stop(ctx) for graceful shutdown.
func Start(ctx context.Context, opts *Options) (func(context.Context) error, error) {
	port := opts.Port
	if port == 0 {
		port = 8080
	}
	addr := fmt.Sprintf(":%d", port)

	srv := NewServer(addr, NewHandler(opts))

	ln, err := (&net.ListenConfig{}).Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, xerrors.Wrapf(err, "listen on %s", addr)
	}

	go func() {
		opts.Logger.Info(ctx, "http server listening", "addr", addr)
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			opts.Logger.Error(ctx, err, "http server error")
		}
	}()

	var once sync.Once
	stop := func(sctx context.Context) (retErr error) {
		once.Do(func() {
			opts.Logger.Info(sctx, "http server shutting down")
			c, cancel := context.WithTimeout(sctx, 5*time.Second)
			defer cancel()
			retErr = srv.Shutdown(c)
		})
		return retErr
	}
	return stop, nil
}
