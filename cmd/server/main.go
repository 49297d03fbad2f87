package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/go-redis/redis/v8"

	"github.com/devint-cl/devint-web/internal/cfg"
	"github.com/devint-cl/devint-web/internal/contact"
	"github.com/devint-cl/devint-web/internal/content"
	"github.com/devint-cl/devint-web/internal/edge"
	"github.com/devint-cl/devint-web/internal/health"
	"github.com/devint-cl/devint-web/internal/httpserver"
	"github.com/devint-cl/devint-web/internal/log"
	"github.com/devint-cl/devint-web/internal/metrics"
	"github.com/devint-cl/devint-web/internal/opshttp"
	"github.com/devint-cl/devint-web/internal/otelx"
	"github.com/devint-cl/devint-web/internal/prof"
	"github.com/devint-cl/devint-web/internal/ratelimit"
	"github.com/devint-cl/devint-web/internal/sitehandler"
	"github.com/devint-cl/devint-web/internal/sitehttp"
	"github.com/devint-cl/devint-web/internal/sitemap"
	"github.com/devint-cl/devint-web/internal/siteurl"
	v "github.com/devint-cl/devint-web/internal/version"
	"github.com/devint-cl/devint-web/internal/webassets"
)

const appName = "devint-web"

// contact form throttle: a burst of 5, refilling one per minute per client
const (
	contactEvery = time.Minute
	contactBurst = 5
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	vi := v.Get()

	var conf cfg.App
	var showVersion bool

	cfg.Register(flag.CommandLine, &conf)
	flag.BoolVar(&showVersion, "V", false, "Print version+build information and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf("%s %s (commit_date=%s, build_id=%s, build_date=%s, go=%s)\n",
			appName, vi.Short(), vi.CommitDate, vi.BuildID, vi.BuildDate, vi.GoVersion)
		os.Exit(0)
	}

	cfg.FillFromEnv(flag.CommandLine, "DEVINT_", func(format string, args ...any) {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	})

	if err := cfg.Validate(conf); err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}

	lvl, _ := log.ParseLevel(conf.LogLevel)
	stackLvl := slog.LevelError
	if conf.StacktraceLevel != "" {
		stackLvl, _ = log.ParseLevel(conf.StacktraceLevel)
	}
	lg, err := log.New(log.Options{
		App:               appName,
		Version:           vi.Version,
		Environment:       conf.Env,
		Level:             lvl,
		StacktraceLevel:   stackLvl,
		JSONFormat:        conf.LogJSON,
		MaxErrorLinks:     conf.MaxErrorLinks,
		IncludeErrorLinks: conf.IncludeErrorLinks,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger init error:", err)
		os.Exit(1)
	}
	defer lg.Sync()
	L := lg.With("component", "server")
	ctx = log.WithContext(ctx, L)

	L.Info(ctx, "initializing application",
		"version", vi.Version,
		"commit", vi.Commit,
		"build_id", vi.BuildID,
		"go_version", vi.GoVersion,
		"env", conf.Env,
		"http_port", conf.HTTPPort,
		"admin_port", conf.AdminPort,
		"site_dir", conf.SiteDir,
		"enable_pprof", conf.EnablePprof,
		"enable_pyroscope", conf.EnablePyroscope,
		"enable_tracing", conf.EnableTracing,
		"ratelimit_window", conf.RateLimitWindow,
		"ratelimit_max", conf.RateLimitMax,
		"ratelimit_redis", conf.RateLimitRedisAddr != "",
		"contact_s3_bucket", conf.ContactS3Bucket,
	)

	m := metrics.New()
	m.SetBuildInfoFromVersion(appName, "server", &vi)

	stopProf, err := prof.Start(ctx, prof.Options{
		Enabled:           conf.EnablePyroscope,
		AppName:           appName,
		ServerAddress:     conf.PyroServer,
		TenantID:          conf.PyroTenantID,
		BasicAuthUser:     conf.PyroUser,
		BasicAuthPassword: conf.PyroPassword,
		Environment:       conf.Env,
		Version:           vi.Version,
		Tags:              map[string]string{"component": "server", "commit": vi.Commit},
	})
	if err != nil {
		L.Error(ctx, err, "pyroscope start failed", "pyro_server", conf.PyroServer)
	}
	m.SetProfilingActive(conf.EnablePyroscope && err == nil)
	defer stopProf()

	// insecure: the collector runs on localhost
	shutdownOTEL, err := otelx.Init(ctx, otelx.Options{
		Enabled:     conf.EnableTracing,
		Endpoint:    conf.OTLPEndpoint,
		Insecure:    true,
		Sample:      conf.TraceSample,
		Service:     appName,
		Component:   "server",
		Version:     vi.Version,
		Environment: conf.Env,
	})
	if err != nil {
		L.Error(ctx, err, "otel init failed, tracing disabled")
		shutdownOTEL, _ = otelx.Init(ctx, otelx.Options{})
	}
	defer func() { _ = shutdownOTEL(context.Background()) }()

	// aws is only needed for the contact bucket and the site url parameter
	var awsCfg *aws.Config
	if conf.ContactS3Bucket != "" || (conf.Production() && conf.SiteURLSSMParam != "") {
		c, err := config.LoadDefaultConfig(ctx)
		if err != nil {
			L.Error(ctx, err, "failed to load AWS config")
			os.Exit(1)
		}
		awsCfg = &c
	}

	// site content
	contentMgr := content.NewManager()
	if err := loadSite(ctx, L, conf, contentMgr); err != nil {
		L.Error(ctx, err, "failed to load site content")
		os.Exit(1)
	}
	m.SetSiteSource(string(contentMgr.Source()))
	m.SetSiteSnapshot(contentMgr.SiteVersion(), contentMgr.SiteHash(), contentMgr.LoadedAt())

	if conf.SiteDir != "" {
		watcher := content.NewWatcher(&content.WatcherOptions{
			Logger:       L,
			Source:       content.DirSource{Dir: conf.SiteDir},
			Manager:      contentMgr,
			PollInterval: conf.SitePoll,
			Metrics:      m,
			OnSwap: func(hash, version string) {
				m.SetSiteSnapshot(version, hash, contentMgr.LoadedAt())
			},
		})
		if err := watcher.Prime(ctx); err != nil {
			L.Warn(ctx, "site watcher prime failed, first poll will reload", "err", err)
		}
		go func() { _ = watcher.Run(ctx) }()
	}

	siteHandler, err := sitehandler.New(sitehandler.Options{
		Logger:     L,
		Content:    contentMgr,
		FallbackFS: webassets.FallbackFS(),
	})
	if err != nil {
		L.Error(ctx, err, "failed to create site handler")
		os.Exit(1)
	}

	// public origin for the sitemap
	var ssmClient siteurl.ParameterGetter
	if awsCfg != nil && conf.SiteURLSSMParam != "" {
		ssmClient = ssm.NewFromConfig(*awsCfg)
	}
	origin, err := siteurl.Resolve(ctx, siteurl.Options{
		Logger:     L,
		Production: conf.Production(),
		Override:   conf.SiteURL,
		SSMParam:   conf.SiteURLSSMParam,
		SSM:        ssmClient,
		Port:       conf.HTTPPort,
	})
	if err != nil {
		L.Error(ctx, err, "failed to resolve site url")
		os.Exit(1)
	}
	L.Info(ctx, "site url resolved", "url", origin.URL, "source", string(origin.Source))

	// rate limiter, swept every RateLimitSweep
	limiter := newLimiter(ctx, L, conf, m)
	go limiter.Run(ctx)

	contactThrottle := ratelimit.NewBuckets(contactEvery, contactBurst)
	go contactThrottle.Run(ctx)

	contactHandler := contact.NewHandler(contact.Options{
		Sink:     newContactSink(L, conf, awsCfg, m),
		Throttle: contactThrottle,
		Metrics:  m,
	})

	var gate health.ShutdownGate
	readiness := health.Timeout(2*time.Second, health.All(
		health.Named("shutdown", gate.Probe()),
		health.Named("content", health.CheckFunc(func(context.Context) error { return contentMgr.ReadyErr() })),
	))

	siteHTTPStop, err := httpserver.Start(ctx, &httpserver.Options{
		Logger:       L,
		Port:         conf.HTTPPort,
		UseRecoverMW: true,
		OnPanic:      m.IncHttpPanic,
		MetricsMW:    m.Middleware,
		Edge:         edge.New(edge.Options{Production: conf.Production(), Limiter: limiter}).Middleware,
		Health:       health.Fixed(true, ""),
		Readiness:    readiness,
		SiteInfo:     contentMgr,
		Routes: []httpserver.RouteRegistrar{&sitehttp.Routes{
			Site:    siteHandler,
			Contact: contactHandler,
			Sitemap: sitemap.NewHandler(sitemap.Options{BaseURL: origin.URL, Content: contentMgr}),
		}},
	})
	if err != nil {
		L.Error(ctx, err, "failed to start site http listener")
		os.Exit(1)
	}
	defer func() { _ = siteHTTPStop(context.Background()) }()

	// the admin port is also restricted to private peers in middleware;
	// TrustedNets was checked by cfg.Validate
	trustedNets, _ := conf.TrustedNets()
	opsHTTPStop, err := opshttp.Start(ctx, L, &opshttp.Options{
		Port:         conf.AdminPort,
		Metrics:      m.Handler(),
		EnablePprof:  conf.EnablePprof,
		Health:       health.Fixed(true, ""),
		Readiness:    readiness,
		TrustedNets:  trustedNets,
		UseRecoverMW: true,
		OnPanic:      m.IncHttpPanic,
	})
	if err != nil {
		L.Error(ctx, err, "failed to start ops http listener")
		os.Exit(1)
	}
	defer func() { _ = opsHTTPStop(context.Background()) }()

	if err := notifySystemd(); err != nil {
		L.Warn(ctx, "failed to notify systemd of readiness", "err", err)
	}

	<-ctx.Done()
	stop()

	bg := context.Background()
	L.Info(bg, "shutdown signal received")

	// fail readiness so the load balancer stops routing before listeners close
	gate.Set("draining")
	if conf.Drain > 0 {
		L.Info(bg, "draining", "period", conf.Drain)
		forceCh := make(chan os.Signal, 1)
		signal.Notify(forceCh, os.Interrupt, syscall.SIGTERM)
		select {
		case <-time.After(conf.Drain):
			L.Info(bg, "drain period complete")
		case <-forceCh:
			L.Warn(bg, "second signal received, skipping drain")
		}
		signal.Stop(forceCh)
	}

	shutdownCtx, cancel := context.WithTimeout(bg, 10*time.Second)
	defer cancel()

	if err := siteHTTPStop(shutdownCtx); err != nil {
		L.Error(bg, err, "site http server shutdown")
	}
	if err := opsHTTPStop(shutdownCtx); err != nil {
		L.Error(bg, err, "ops http server shutdown")
	}
	if err := shutdownOTEL(shutdownCtx); err != nil {
		L.Error(bg, err, "otel shutdown")
	}
	stopProf()

	L.Info(bg, "shutdown complete")
}

// loadSite installs the initial snapshot: site-dir when configured,
// otherwise the seed build embedded in the binary.
func loadSite(ctx context.Context, L log.Logger, conf cfg.App, mgr *content.Manager) error {
	var (
		snap *content.Snapshot
		err  error
	)
	if conf.SiteDir != "" {
		snap, err = content.LoadDir(conf.SiteDir)
	} else {
		seed, ok := webassets.SeedSiteFS()
		if !ok {
			L.Warn(ctx, "no embedded site, serving maintenance page until a build is loaded")
			return nil
		}
		snap, err = content.FromFS(seed, content.SourceEmbedded)
	}
	if err != nil {
		return err
	}
	if err := content.ValidateSnapshot(snap, content.DefaultValidationOptions()); err != nil {
		return err
	}
	mgr.Set(*snap)
	L.Info(ctx, "site content loaded",
		"source", string(snap.Meta.Source),
		"version", snap.Meta.Version,
		"files", snap.Meta.Files,
		"hash", snap.Meta.SHA256,
	)
	return nil
}

func newLimiter(ctx context.Context, L log.Logger, conf cfg.App, m *metrics.ServerMetrics) *ratelimit.Limiter {
	opts := []ratelimit.Option{
		ratelimit.WithWindow(conf.RateLimitWindow),
		ratelimit.WithLimit(conf.RateLimitMax),
		ratelimit.WithSweepInterval(conf.RateLimitSweep),
		ratelimit.WithOnDenied(func(string) { m.IncRateLimitDenied() }),
		// once per client per window
		ratelimit.WithOnFirstDenied(func(clientID string) {
			m.IncRateLimitFirstDenied()
			L.Warn(ctx, "rate limit triggered", "client", clientID)
		}),
		ratelimit.WithOnCapacity(func() {
			m.IncRateLimitCapacity()
			L.Warn(ctx, "rate limit table reached its size bound, swept early")
		}),
		ratelimit.WithOnSweep(func(removed, remaining int) {
			m.ObserveSweep(removed, remaining)
			if removed > 0 {
				L.Debug(ctx, "rate limit sweep", "removed", removed, "remaining", remaining)
			}
		}),
	}

	if conf.RateLimitRedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr: conf.RateLimitRedisAddr,
			DB:   conf.RateLimitRedisDB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			// the limiter fails open per request, so a cold redis is not fatal
			L.Warn(ctx, "redis ping failed, rate limit checks will fail open until it recovers",
				"addr", conf.RateLimitRedisAddr, "err", err)
		}
		cancel()
		opts = append(opts,
			ratelimit.WithStore(ratelimit.NewRedisStore(rdb, "")),
			ratelimit.WithOnStoreError(func(clientID string, err error) {
				m.IncRateLimitStoreError()
				L.Warn(ctx, "rate limit store error, allowing request", "client", clientID, "err", err)
			}),
		)
	}
	return ratelimit.New(opts...)
}

func newContactSink(L log.Logger, conf cfg.App, awsCfg *aws.Config, m *metrics.ServerMetrics) contact.Sink {
	if conf.ContactS3Bucket == "" || awsCfg == nil {
		return contact.LogSink{Logger: L}
	}
	s3Sink := contact.NewS3Sink(s3.NewFromConfig(*awsCfg), conf.ContactS3Bucket, conf.ContactS3Prefix, conf.ContactKMSKeyID)
	return contact.NewBreakerSink(s3Sink, contact.BreakerOptions{
		OnStateChange: func(state int) {
			m.SetContactBreakerState(state)
			L.Warn(context.Background(), "contact sink breaker state changed", "state", state)
		},
	})
}

// notifySystemd sends READY=1 when started under systemd with Type=notify.
func notifySystemd() error {
	addr := os.Getenv("NOTIFY_SOCKET")
	if addr == "" {
		return nil
	}
	conn, err := net.Dial("unixgram", addr)
	if err != nil {
		return fmt.Errorf("systemd notify: dial: %w", err)
	}
	defer conn.Close()
	if _, err := conn.Write([]byte("READY=1")); err != nil {
		return fmt.Errorf("systemd notify: write: %w", err)
	}
	return nil
}
