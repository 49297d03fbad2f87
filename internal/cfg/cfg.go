// Package cfg holds the server configuration. Every field is a flag with an
// inline default and can also be set from PREFIX_FLAG_NAME in the
// environment.
package cfg

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"net/netip"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/devint-cl/devint-web/internal/log"
)

const (
	EnvProduction  = "production"
	EnvDevelopment = "development"
)

type App struct {
	LogJSON           bool
	LogLevel          string
	StacktraceLevel   string
	IncludeErrorLinks bool
	MaxErrorLinks     int

	HTTPPort         int
	AdminPort        int
	AdminTrustedNets string
	Env              string
	Drain            time.Duration

	SiteURL         string
	SiteURLSSMParam string
	SiteDir         string
	SitePoll        time.Duration

	EnablePprof     bool
	EnablePyroscope bool
	EnableTracing   bool
	PyroServer      string
	PyroTenantID    string
	PyroUser        string
	PyroPassword    string
	OTLPEndpoint    string
	TraceSample     float64

	RateLimitWindow    time.Duration
	RateLimitMax       int
	RateLimitSweep     time.Duration
	RateLimitRedisAddr string
	RateLimitRedisDB   int

	ContactS3Bucket string
	ContactS3Prefix string
	ContactKMSKeyID string
}

// Production reports whether the pipeline should rate limit and send
// security headers.
func (c App) Production() bool { return c.Env == EnvProduction }

// TrustedNets parses AdminTrustedNets.
func (c App) TrustedNets() ([]netip.Prefix, error) {
	var out []netip.Prefix
	for _, s := range strings.Split(c.AdminTrustedNets, ",") {
		if s = strings.TrimSpace(s); s == "" {
			continue
		}
		p, err := netip.ParsePrefix(s)
		if err != nil {
			return nil, err
		}
		out = append(out, p.Masked())
	}
	return out, nil
}

// Register binds all config fields to the given FlagSet with defaults inline
func Register(fs *flag.FlagSet, c *App) {
	fs.BoolVar(&c.LogJSON, "log-json", true, "JSON logs (true) or logfmt (false)")
	fs.StringVar(&c.LogLevel, "log-level", "info", "debug|info|warn|error")
	fs.StringVar(&c.StacktraceLevel, "stacktrace-level", "error", "debug|info|warn|error")
	fs.BoolVar(&c.IncludeErrorLinks, "include-error-links", true, "Include error links in log messages")
	fs.IntVar(&c.MaxErrorLinks, "max-error-links", 5, "max error chain depth (1..64)")

	fs.IntVar(&c.HTTPPort, "http-port", 8080, "listen TCP port (1..65535)")
	fs.IntVar(&c.AdminPort, "admin-port", 9000, "admin listen TCP port (1..65535)")
	fs.StringVar(&c.AdminTrustedNets, "admin-trusted-nets", "", "comma separated CIDRs allowed on the admin port besides private ranges")
	fs.DurationVar(&c.Drain, "drain", 60*time.Second, "how long readiness fails before listeners close on shutdown")
	fs.StringVar(&c.Env, "env", EnvDevelopment, "production|development; production enables rate limiting and security headers")

	fs.StringVar(&c.SiteURL, "site-url", "", "public site URL override (default https://devint.cl in production)")
	fs.StringVar(&c.SiteURLSSMParam, "site-url-ssm-param", "", "ssm parameter holding the public site URL")
	fs.StringVar(&c.SiteDir, "site-dir", "", "serve the built site from this directory instead of the embedded copy")

	fs.DurationVar(&c.SitePoll, "site-poll", 10*time.Second, "how often site-dir is checked for a new build")
	fs.BoolVar(&c.EnablePprof, "enable-pprof", true, "Enable pprof profiling (on admin port only)")
	fs.BoolVar(&c.EnableTracing, "enable-tracing", false, "Enable OTLP tracing and push to otlp-endpoint")
	fs.BoolVar(&c.EnablePyroscope, "enable-pyroscope", false, "Enable pushing Pyroscope data to server set in -pyro-server")
	fs.StringVar(&c.PyroServer, "pyro-server", "", "pyroscope server url to push to")
	fs.StringVar(&c.PyroTenantID, "pyro-tenant", "", "tenant (x-scope-orgid) to use for pyro-server")
	fs.StringVar(&c.PyroUser, "pyro-user", "", "basic auth user for pyro-server")
	fs.StringVar(&c.PyroPassword, "pyro-password", "", "basic auth password for pyro-server")
	fs.StringVar(&c.OTLPEndpoint, "otlp-endpoint", "", "OTLP endpoint to push to (gRPC) (host:port)")
	fs.Float64Var(&c.TraceSample, "trace-sample", 0.0, "trace sampling ratio (0..1)")

	fs.DurationVar(&c.RateLimitWindow, "ratelimit-window", 15*time.Minute, "fixed rate limit window per client")
	fs.IntVar(&c.RateLimitMax, "ratelimit-max", 100, "requests allowed per client per window")
	fs.DurationVar(&c.RateLimitSweep, "ratelimit-sweep", 5*time.Minute, "how often expired rate limit records are removed")
	fs.StringVar(&c.RateLimitRedisAddr, "ratelimit-redis-addr", "", "redis host:port to share rate limit windows between instances (empty = in memory)")
	fs.IntVar(&c.RateLimitRedisDB, "ratelimit-redis-db", 0, "redis database number")

	fs.StringVar(&c.ContactS3Bucket, "contact-s3-bucket", "", "s3 bucket for contact form submissions (empty = log only)")
	fs.StringVar(&c.ContactS3Prefix, "contact-s3-prefix", "contact/submissions", "s3 key prefix for contact form submissions")
	fs.StringVar(&c.ContactKMSKeyID, "contact-kms-key-id", "", "KMS key id for SSE-KMS on stored submissions (empty = bucket default)")
}

// FillFromEnv sets any flag not explicitly passed on the CLI from
// environment variables. Flag "foo-bar" maps to PREFIX_FOO_BAR.
// Precedence: cli flag > env var > default.
func FillFromEnv(fs *flag.FlagSet, prefix string, logf func(string, ...any)) {
	explicit := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

	fs.VisitAll(func(f *flag.Flag) {
		key := prefix + strings.ReplaceAll(strings.ToUpper(f.Name), "-", "_")
		envVal, envSet := os.LookupEnv(key)
		if !envSet {
			return
		}
		if explicit[f.Name] {
			if logf != nil {
				logf("flag -%s: cli value %q overrides env %s=%q", f.Name, f.Value.String(), key, envVal)
			}
			return
		}
		prev := f.Value.String()
		if err := fs.Set(f.Name, envVal); err != nil {
			_ = fs.Set(f.Name, prev)
			if logf != nil {
				logf("flag -%s: ignoring invalid env %s=%q: %v", f.Name, key, envVal, err)
			}
		}
	})
}

// Validate checks every field and returns all problems joined, or nil.
func Validate(c App) error {
	var errs []error

	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.HTTPPort))
	}
	if c.AdminPort < 1 || c.AdminPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid ADMIN_PORT %d (must be 1..65535)", c.AdminPort))
	}
	if c.AdminPort == c.HTTPPort {
		errs = append(errs, fmt.Errorf("ADMIN_PORT and HTTP_PORT must differ (both %d)", c.HTTPPort))
	}

	if _, err := c.TrustedNets(); err != nil {
		errs = append(errs, fmt.Errorf("invalid ADMIN_TRUSTED_NETS: %w", err))
	}

	if c.Drain < 0 {
		errs = append(errs, fmt.Errorf("DRAIN must not be negative (got %s)", c.Drain))
	}
	switch c.Env {
	case EnvProduction, EnvDevelopment:
	default:
		errs = append(errs, fmt.Errorf("invalid ENV %q (must be production|development)", c.Env))
	}

	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("invalid LOG_LEVEL %q: %w", c.LogLevel, err))
	}
	if c.StacktraceLevel != "" {
		if _, err := log.ParseLevel(c.StacktraceLevel); err != nil {
			errs = append(errs, fmt.Errorf("invalid STACKTRACE_LEVEL %q: %w", c.StacktraceLevel, err))
		}
	}
	if c.IncludeErrorLinks && (c.MaxErrorLinks < 1 || c.MaxErrorLinks > 64) {
		errs = append(errs, fmt.Errorf("MAX_ERROR_LINKS must be 1..64 (got %d)", c.MaxErrorLinks))
	}

	if c.SiteURL != "" {
		if u, err := url.Parse(c.SiteURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Errorf("SITE_URL must be an absolute http(s) URL (got %q)", c.SiteURL))
		}
	}
	if c.SiteDir != "" {
		if fi, err := os.Stat(c.SiteDir); err != nil || !fi.IsDir() {
			errs = append(errs, fmt.Errorf("SITE_DIR %q is not a readable directory", c.SiteDir))
		}
	}

	if c.SiteDir != "" && c.SitePoll < time.Second {
		errs = append(errs, fmt.Errorf("SITE_POLL must be at least 1s (got %s)", c.SitePoll))
	}
	if c.TraceSample < 0 || c.TraceSample > 1 {
		errs = append(errs, fmt.Errorf("invalid TRACE_SAMPLE %.3f (must be 0..1)", c.TraceSample))
	}
	if c.EnablePyroscope {
		if c.PyroServer == "" {
			errs = append(errs, errors.New("PYRO_SERVER required when ENABLE_PYROSCOPE=true"))
		} else if u, err := url.Parse(c.PyroServer); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("PYRO_SERVER must be a URL (got %q)", c.PyroServer))
		}
		if c.PyroTenantID == "" {
			errs = append(errs, errors.New("PYRO_TENANT required when ENABLE_PYROSCOPE=true"))
		}
	}
	// grpc exporter wants host:port, no scheme
	if c.EnableTracing {
		if c.OTLPEndpoint == "" {
			errs = append(errs, errors.New("OTLP_ENDPOINT required when ENABLE_TRACING=true"))
		} else if _, _, err := net.SplitHostPort(c.OTLPEndpoint); err != nil {
			errs = append(errs, fmt.Errorf("OTLP_ENDPOINT must be host:port (got %q): %v", c.OTLPEndpoint, err))
		}
	}

	if c.RateLimitWindow <= 0 {
		errs = append(errs, fmt.Errorf("RATELIMIT_WINDOW must be positive (got %s)", c.RateLimitWindow))
	}
	if c.RateLimitMax < 1 {
		errs = append(errs, fmt.Errorf("RATELIMIT_MAX must be at least 1 (got %d)", c.RateLimitMax))
	}
	if c.RateLimitSweep <= 0 {
		errs = append(errs, fmt.Errorf("RATELIMIT_SWEEP must be positive (got %s)", c.RateLimitSweep))
	}
	if c.RateLimitRedisAddr != "" {
		if _, _, err := net.SplitHostPort(c.RateLimitRedisAddr); err != nil {
			errs = append(errs, fmt.Errorf("RATELIMIT_REDIS_ADDR must be host:port (got %q): %v", c.RateLimitRedisAddr, err))
		}
	}
	if c.RateLimitRedisDB < 0 {
		errs = append(errs, fmt.Errorf("RATELIMIT_REDIS_DB must be >= 0 (got %d)", c.RateLimitRedisDB))
	}

	if c.ContactS3Bucket != "" && strings.Trim(c.ContactS3Prefix, "/") == "" {
		errs = append(errs, errors.New("CONTACT_S3_PREFIX is required when CONTACT_S3_BUCKET is set"))
	}
	if c.ContactKMSKeyID != "" && c.ContactS3Bucket == "" {
		errs = append(errs, errors.New("CONTACT_KMS_KEY_ID set without CONTACT_S3_BUCKET"))
	}

	return errors.Join(errs...)
}
