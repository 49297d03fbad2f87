// Package webassets embeds the seed build of the Devint site and the
// fallback pages served when no site snapshot is loaded.
package webassets

import (
	"embed"
	"fmt"
	"io/fs"
)

//go:embed fallback seed
var embedded embed.FS

const (
	MaintenancePage = "maintenance.html"
	NotFoundPage    = "404.html"
)

// FallbackFS holds maintenance.html and a minimal 404.html.
func FallbackFS() fs.FS {
	return mustSub("fallback")
}

// SeedSiteFS returns the embedded site build and whether it has an index.html.
func SeedSiteFS() (fs.FS, bool) {
	sub := mustSub("seed")
	if _, err := fs.Stat(sub, "index.html"); err != nil {
		return nil, false
	}
	return sub, true
}

func mustSub(dir string) fs.FS {
	sub, err := fs.Sub(embedded, dir)
	if err != nil {
		panic(fmt.Errorf("webassets: %s subfs: %w", dir, err))
	}
	return sub
}
