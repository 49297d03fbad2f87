// Package metrics owns the prometheus registry served on the admin port.
// Labels are limited to method, route pattern and status so request paths
// never turn into series.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/devint-cl/devint-web/internal/version"
)

type ServerMetrics struct {
	reg     *prometheus.Registry
	handler http.Handler

	inflight       prometheus.Gauge
	reqTotal       *prometheus.CounterVec
	reqDur         *prometheus.HistogramVec
	respBytes      *prometheus.HistogramVec
	errorsTotal    *prometheus.CounterVec
	httpPanicTotal prometheus.Counter

	buildInfo       *prometheus.GaugeVec
	profilingActive prometheus.Gauge

	// rate limiter
	rlDeniedTotal      prometheus.Counter
	rlFirstDeniedTotal prometheus.Counter
	rlCapacityTotal    prometheus.Counter
	rlSweepEvictions   prometheus.Counter
	rlClientsTracked   prometheus.Gauge
	rlStoreErrorsTotal prometheus.Counter

	// contact form
	contactTotal        *prometheus.CounterVec
	contactSinkDuration *prometheus.HistogramVec
	contactBreakerState prometheus.Gauge

	// site snapshot
	siteSource          *prometheus.GaugeVec
	siteLoadedTimestamp prometheus.Gauge
	siteInfo            *prometheus.GaugeVec
	siteSwapsTotal      prometheus.Counter
	siteWatchErrors     *prometheus.CounterVec
}

// New returns a fresh registry with the go/process collectors and every
// application metric registered.
func New() *ServerMetrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &ServerMetrics{
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_inflight_requests",
			Help: "Current number of in-flight HTTP requests",
		}),
		reqTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests by method, route, and status",
		}, []string{"method", "route", "status"}),
		reqDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Request latency by method and route",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"method", "route"}),
		respBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_response_size_bytes",
			Help:    "Response size by method and route",
			Buckets: prometheus.ExponentialBuckets(256, 4, 9),
		}, []string{"method", "route"}),
		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_errors_total",
			Help: "Total 5xx responses by method and route",
		}, []string{"method", "route"}),
		httpPanicTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "http_panic_total",
			Help: "Total number of recovered handler panics",
		}),
		buildInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "build_info",
			Help: "Build metadata (value is always 1)",
		}, []string{"app", "component", "version", "commit", "commit_date", "build_id", "build_date", "vcs_dirty", "go_version"}),
		profilingActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "profiling_active",
			Help: "Whether continuous profiling is active (1) or disabled/failed (0)",
		}),
		rlDeniedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ratelimit_denied_total",
			Help: "Total requests answered with 429 by the site-wide limiter",
		}),
		rlFirstDeniedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ratelimit_first_denied_total",
			Help: "Client windows that hit the limit at least once",
		}),
		rlCapacityTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ratelimit_capacity_reached_total",
			Help: "Times the client table was full when a new client arrived",
		}),
		rlSweepEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ratelimit_sweep_evictions_total",
			Help: "Expired client records removed by the periodic sweep",
		}),
		rlClientsTracked: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ratelimit_clients_tracked",
			Help: "Client records held after the last sweep",
		}),
		rlStoreErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ratelimit_store_errors_total",
			Help: "Shared store failures; the request was allowed",
		}),
		contactTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "contact_submissions_total",
			Help: "Contact form submissions by outcome",
		}, []string{"outcome"}),
		contactSinkDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "contact_sink_duration_seconds",
			Help:    "Time to deliver a submission by sink",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"sink"}),
		contactBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "contact_sink_breaker_state",
			Help: "Contact sink circuit breaker state (0 closed, 1 half-open, 2 open)",
		}),
		siteSource: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "site_source_info",
			Help: "Where the served site came from (label carries value, gauge is always 1)",
		}, []string{"source"}),
		siteLoadedTimestamp: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "site_loaded_timestamp_seconds",
			Help: "Unix timestamp of when the current site snapshot was loaded",
		}),
		siteInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "site_snapshot_info",
			Help: "Active site snapshot (labels carry identity, value is always 1)",
		}, []string{"version", "hash"}),
		siteSwapsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "site_swaps_total",
			Help: "Site directory reloads swapped into service",
		}),
		siteWatchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "site_watch_errors_total",
			Help: "Site directory watcher failures by stage (stat, load, validation)",
		}, []string{"stage"}),
	}
	reg.MustRegister(
		m.inflight,
		m.reqTotal,
		m.reqDur,
		m.respBytes,
		m.errorsTotal,
		m.httpPanicTotal,
		m.buildInfo,
		m.profilingActive,
		m.rlDeniedTotal,
		m.rlFirstDeniedTotal,
		m.rlCapacityTotal,
		m.rlSweepEvictions,
		m.rlClientsTracked,
		m.rlStoreErrorsTotal,
		m.contactTotal,
		m.contactSinkDuration,
		m.contactBreakerState,
		m.siteSource,
		m.siteLoadedTimestamp,
		m.siteInfo,
		m.siteSwapsTotal,
		m.siteWatchErrors,
	)

	m.handler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
	m.reg = reg
	return m
}

func (m *ServerMetrics) Handler() http.Handler { return m.handler }

// Registry is exposed for tests and extra collectors.
func (m *ServerMetrics) Registry() *prometheus.Registry { return m.reg }

func (m *ServerMetrics) IncHttpPanic() { m.httpPanicTotal.Inc() }

// SetBuildInfoFromVersion is called once at startup.
func (m *ServerMetrics) SetBuildInfoFromVersion(app, component string, vi *version.Info) {
	dirty := "unknown"
	if vi.VCSDirty != nil {
		dirty = strconv.FormatBool(*vi.VCSDirty)
	}
	m.buildInfo.With(prometheus.Labels{
		"app":         app,
		"component":   component,
		"version":     vi.Version,
		"commit":      vi.Commit,
		"commit_date": vi.CommitDate,
		"build_id":    vi.BuildID,
		"build_date":  vi.BuildDate,
		"go_version":  vi.GoVersion,
		"vcs_dirty":   dirty,
	}).Set(1)
}

func (m *ServerMetrics) SetProfilingActive(active bool) { m.profilingActive.Set(boolGauge(active)) }

func (m *ServerMetrics) IncRateLimitDenied()      { m.rlDeniedTotal.Inc() }
func (m *ServerMetrics) IncRateLimitFirstDenied() { m.rlFirstDeniedTotal.Inc() }
func (m *ServerMetrics) IncRateLimitCapacity()    { m.rlCapacityTotal.Inc() }
func (m *ServerMetrics) IncRateLimitStoreError()  { m.rlStoreErrorsTotal.Inc() }

// ObserveSweep records one sweep's evictions and the table size after it.
func (m *ServerMetrics) ObserveSweep(removed, remaining int) {
	m.rlSweepEvictions.Add(float64(removed))
	m.rlClientsTracked.Set(float64(remaining))
}

// IncContact counts a submission outcome such as accepted or sink_error.
func (m *ServerMetrics) IncContact(outcome string) {
	m.contactTotal.WithLabelValues(outcome).Inc()
}

func (m *ServerMetrics) ObserveContactSink(sink string, d time.Duration) {
	m.contactSinkDuration.WithLabelValues(sink).Observe(d.Seconds())
}

func (m *ServerMetrics) SetContactBreakerState(state int) {
	m.contactBreakerState.Set(float64(state))
}

func (m *ServerMetrics) SetSiteSource(source string) {
	m.siteSource.Reset()
	m.siteSource.WithLabelValues(source).Set(1)
}

func (m *ServerMetrics) SetSiteSnapshot(version, hash string, loadedAt time.Time) {
	m.siteInfo.Reset()
	m.siteInfo.WithLabelValues(version, hash).Set(1)
	m.siteLoadedTimestamp.Set(float64(loadedAt.Unix()))
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func (m *ServerMetrics) IncWatcherSwaps() { m.siteSwapsTotal.Inc() }

func (m *ServerMetrics) IncWatcherError(stage string) {
	m.siteWatchErrors.WithLabelValues(stage).Inc()
}
