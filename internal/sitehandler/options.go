package sitehandler

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/devint-cl/devint-web/internal/content"
	"github.com/devint-cl/devint-web/internal/log"
)

var ErrInvalidOptions = errors.New("sitehandler: invalid options")

type SnapshotProvider interface {
	Get() (*content.Snapshot, bool)
}

type Options struct {
	Logger log.Logger

	// Content supplies the active site build
	Content SnapshotProvider

	// FallbackFS holds the maintenance page and a plain 404
	FallbackFS fs.FS

	// MaintenanceFile and Fallback404File are read from FallbackFS,
	// Site404File from the active snapshot.
	MaintenanceFile string // default: "maintenance.html"
	Fallback404File string // default: "404.html"
	Site404File     string // default: "404.html"

	// Cache-Control by file class. AssetCacheControl applies to
	// fingerprinted static files, StaticCacheControl to the rest.
	HTMLCacheControl   string // default: "no-cache"
	AssetCacheControl  string // default: "public, max-age=31536000, immutable"
	StaticCacheControl string // default: "public, max-age=86400"
	OtherCacheControl  string // default: "public, max-age=3600"
}

func (o *Options) setDefaults() {
	if o.Logger == nil {
		o.Logger = log.Nop()
	}
	if o.MaintenanceFile == "" {
		o.MaintenanceFile = "maintenance.html"
	}
	if o.Fallback404File == "" {
		o.Fallback404File = "404.html"
	}
	if o.Site404File == "" {
		o.Site404File = "404.html"
	}
	if o.HTMLCacheControl == "" {
		o.HTMLCacheControl = "no-cache"
	}
	if o.AssetCacheControl == "" {
		o.AssetCacheControl = "public, max-age=31536000, immutable"
	}
	if o.StaticCacheControl == "" {
		o.StaticCacheControl = "public, max-age=86400"
	}
	if o.OtherCacheControl == "" {
		o.OtherCacheControl = "public, max-age=3600"
	}
}

func (o *Options) validate() error {
	if o.Content == nil {
		return fmt.Errorf("%w: Content is nil", ErrInvalidOptions)
	}
	if o.FallbackFS == nil {
		return fmt.Errorf("%w: FallbackFS is nil", ErrInvalidOptions)
	}
	// fail at boot if the binary was packaged without the maintenance page
	if _, err := fs.Stat(o.FallbackFS, o.MaintenanceFile); err != nil {
		return fmt.Errorf("%w: missing %q in fallback FS: %v", ErrInvalidOptions, o.MaintenanceFile, err)
	}
	return nil
}
