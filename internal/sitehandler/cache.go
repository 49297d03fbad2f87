package sitehandler

import (
	"path"
	"strings"
)

type fileClass int

const (
	classOther fileClass = iota
	classPage
	classStatic
)

func classify(name string) fileClass {
	switch strings.ToLower(path.Ext(name)) {
	case "", ".html":
		return classPage
	case ".css", ".js", ".mjs", ".map",
		".png", ".jpg", ".jpeg", ".webp", ".avif", ".gif", ".svg", ".ico",
		".woff", ".woff2", ".ttf", ".eot":
		return classStatic
	default:
		return classOther
	}
}

// cacheControlForFile picks the Cache-Control value for a snapshot file.
// Static files are only cached as immutable when their name carries a
// content hash; anything else may change between builds under the same URL.
func cacheControlForFile(name string, o *Options) string {
	switch classify(name) {
	case classPage:
		return o.HTMLCacheControl
	case classStatic:
		if fingerprinted(name) {
			return o.AssetCacheControl
		}
		return o.StaticCacheControl
	default:
		return o.OtherCacheControl
	}
}

// fingerprinted reports whether name sits under a build output directory or
// has a hash segment in its base name, e.g. "index.B4x9kQ2a.css" or
// "app-3f2a9c1d.js".
func fingerprinted(name string) bool {
	if strings.HasPrefix(name, "_astro/") || strings.Contains(name, "/_astro/") {
		return true
	}
	base := strings.TrimSuffix(path.Base(name), path.Ext(name))
	for _, seg := range strings.FieldsFunc(base, func(r rune) bool { return r == '.' || r == '-' }) {
		if isHashSegment(seg) {
			return true
		}
	}
	return false
}

func isHashSegment(s string) bool {
	if len(s) < 8 || len(s) > 64 {
		return false
	}
	digits := 0
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_':
		default:
			return false
		}
	}
	// plain words such as "bienvenida" are not hashes
	return digits > 0
}
