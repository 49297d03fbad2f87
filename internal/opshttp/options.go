package opshttp

import (
	"net/http"
	"net/netip"
	"time"

	"github.com/devint-cl/devint-web/internal/health"
)

// Options configures the admin listener.
type Options struct {
	Port int // default 9000

	// Metrics serves /metrics; nil leaves the route unregistered.
	Metrics     http.Handler
	EnablePprof bool

	Health    health.Probe
	Readiness health.Probe

	// TrustedNets are peer ranges allowed in addition to loopback, private
	// and link-local addresses, e.g. a VPN's CGNAT range.
	TrustedNets []netip.Prefix

	UseRecoverMW bool
	OnPanic      func()

	ShutdownTimeout time.Duration // default 5s
}

func (o *Options) setDefaults() {
	if o.Port == 0 {
		o.Port = 9000
	}
	if o.ShutdownTimeout <= 0 {
		o.ShutdownTimeout = 5 * time.Second
	}
}

func (o *Options) trusted(ip netip.Addr) bool {
	if ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() {
		return true
	}
	for _, p := range o.TrustedNets {
		if p.Contains(ip) {
			return true
		}
	}
	return false
}
