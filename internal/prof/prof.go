// Package prof runs the continuous pyroscope profiler.
package prof

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/grafana/pyroscope-go"

	"github.com/devint-cl/devint-web/internal/log"
	"github.com/devint-cl/devint-web/internal/xerrors"
)

type Options struct {
	Enabled       bool
	AppName       string
	ServerAddress string

	// BasicAuthUser and BasicAuthPassword authenticate against Grafana Cloud
	BasicAuthUser     string
	BasicAuthPassword string
	TenantID          string

	// Tags are attached to every profile, on top of environment and version
	Tags        map[string]string
	Environment string
	Version     string

	UploadRate           time.Duration
	ProfileMutexFraction int
	BlockProfileRate     int
}

func (o *Options) tags() map[string]string {
	out := make(map[string]string, len(o.Tags)+2)
	if o.Environment != "" {
		out["env"] = o.Environment
	}
	if o.Version != "" {
		out["version"] = o.Version
	}
	for k, v := range o.Tags {
		out[k] = v
	}
	return out
}

// Start returns a stop func that is always non-nil and safe to call more
// than once, even when err != nil.
func Start(ctx context.Context, opts Options) (func(), error) {
	L := log.FromContext(ctx)

	if !opts.Enabled {
		L.Info(ctx, "pyroscope disabled")
		return func() {}, nil
	}

	if opts.ServerAddress == "" {
		err := xerrors.Newf("invalid server address (%q)", opts.ServerAddress)
		L.Error(ctx, err, "pyroscope options")
		return func() {}, err
	}
	if opts.AppName == "" {
		opts.AppName = "devint-web"
	}

	if opts.ProfileMutexFraction > 0 {
		runtime.SetMutexProfileFraction(opts.ProfileMutexFraction)
	}
	if opts.BlockProfileRate > 0 {
		runtime.SetBlockProfileRate(opts.BlockProfileRate)
	}

	cfg := pyroscope.Config{
		ApplicationName:   opts.AppName,
		ServerAddress:     opts.ServerAddress,
		BasicAuthUser:     opts.BasicAuthUser,
		BasicAuthPassword: opts.BasicAuthPassword,
		TenantID:          opts.TenantID,
		Tags:              opts.tags(),
		UploadRate:        opts.UploadRate,
		Logger:            pyroLogger{ctx: ctx, L: L},
		ProfileTypes: []pyroscope.ProfileType{
			pyroscope.ProfileCPU,
			pyroscope.ProfileAllocObjects,
			pyroscope.ProfileAllocSpace,
			pyroscope.ProfileInuseObjects,
			pyroscope.ProfileInuseSpace,
			pyroscope.ProfileGoroutines,
			pyroscope.ProfileMutexCount,
			pyroscope.ProfileMutexDuration,
			pyroscope.ProfileBlockCount,
			pyroscope.ProfileBlockDuration,
		},
	}

	profiler, err := pyroscope.Start(cfg)
	if err != nil {
		L.Error(ctx, err, "pyroscope start failed",
			"server_address", opts.ServerAddress,
			"app_name", opts.AppName,
		)
		return func() {}, xerrors.Wrap(err, "start pyroscope")
	}

	L.Info(ctx, "pyroscope started",
		"server_address", opts.ServerAddress,
		"app_name", opts.AppName,
	)

	var once sync.Once
	return func() {
		once.Do(func() {
			_ = profiler.Stop()
			L.Info(context.Background(), "pyroscope stopped", "app_name", opts.AppName)
		})
	}, nil
}

// pyroLogger routes the profiler's own logging through ours. Upload
// chatter stays at debug.
type pyroLogger struct {
	ctx context.Context
	L   log.Logger
}

func (p pyroLogger) Infof(format string, args ...any) {
	p.L.Debug(p.ctx, "pyroscope: "+fmt.Sprintf(format, args...))
}

func (p pyroLogger) Debugf(format string, args ...any) {
	p.L.Debug(p.ctx, "pyroscope: "+fmt.Sprintf(format, args...))
}

func (p pyroLogger) Errorf(format string, args ...any) {
	p.L.Warn(p.ctx, "pyroscope: "+fmt.Sprintf(format, args...))
}
