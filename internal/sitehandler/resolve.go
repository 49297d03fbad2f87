package sitehandler

import (
	"io/fs"
	"path"
	"strings"
)

// resolvePath maps a URL path to a file in fsys.
//
// Returns the file (relative, no leading slash), or a canonical path the
// caller should redirect to, and whether the mapping was found.
func resolvePath(urlPath string, fsys fs.FS) (file string, redirectTo string, ok bool) {
	p := urlPath
	if p == "" {
		p = "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}

	if strings.Contains(p, "\x00") || strings.Contains(p, "\\") || strings.Contains(p, "..") {
		return "", "", false
	}
	if hasDotSegments(p) {
		return "", "", false
	}

	trailingSlash := strings.HasSuffix(p, "/")
	clean := path.Clean(p)
	if trailingSlash && clean != "/" {
		clean += "/"
	}

	// /index.html and /dir/index.html are served at / and /dir/
	if path.Base(clean) == "index.html" {
		dir := strings.TrimSuffix(clean, "index.html")
		if existsFile(fsys, strings.TrimPrefix(clean, "/")) {
			return "", dir, true
		}
		return "", "", false
	}

	if clean == "/" {
		if existsFile(fsys, "index.html") {
			return "index.html", "", true
		}
		return "", "", false
	}

	if strings.HasSuffix(clean, "/") {
		name := strings.TrimPrefix(clean, "/") + "index.html"
		if existsFile(fsys, name) {
			return name, "", true
		}
		return "", "", false
	}

	if path.Ext(clean) != "" {
		name := strings.TrimPrefix(clean, "/")
		if existsFile(fsys, name) {
			return name, "", true
		}
		return "", "", false
	}

	// pretty URL: /servicios -> /servicios/ when servicios/index.html exists
	dirIndex := strings.TrimPrefix(clean, "/") + "/index.html"
	if existsFile(fsys, dirIndex) {
		return "", clean + "/", true
	}
	return "", "", false
}

// hasDotSegments reports whether any path segment is "." or "..".
func hasDotSegments(p string) bool {
	for _, seg := range strings.Split(p, "/") {
		if seg == "." || seg == ".." {
			return true
		}
	}
	return false
}

func existsFile(fsys fs.FS, name string) bool {
	if name == "" || !fs.ValidPath(name) {
		return false
	}
	info, err := fs.Stat(fsys, name)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
