package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/devint-cl/devint-web/internal/health"
	"github.com/devint-cl/devint-web/internal/httpmw"
	"github.com/devint-cl/devint-web/internal/log"
)

// RouteRegistrar mounts routes on the public router.
type RouteRegistrar interface {
	RegisterRoutes(r chi.Router)
}

type Options struct {
	Logger       log.Logger
	Port         int
	UseRecoverMW bool
	OnPanic      func()

	// MetricsMW records HTTP metrics, usually metrics.ServerMetrics.Middleware
	MetricsMW func(http.Handler) http.Handler

	// Edge is the rate limit and security header pipeline
	Edge func(http.Handler) http.Handler

	Health    health.Probe
	Readiness health.Probe

	// SiteInfo adds X-Site-Version and X-Site-Hash when set
	SiteInfo httpmw.SiteInfo

	// Routes are registered in order after the health routes
	Routes []RouteRegistrar

	// MaxBodyBytes caps request bodies, default DefaultMaxBodyBytes
	MaxBodyBytes int64
}
