// Package sitehandler serves the active static site build.
package sitehandler

import (
	"bytes"
	"io"
	"io/fs"
	"net/http"
)

type Handler struct {
	opts Options
}

func New(opts Options) (*Handler, error) {
	opts.setDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}
	return &Handler{opts: opts}, nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	snap, ok := h.opts.Content.Get()
	if !ok {
		h.serveMaintenance(w, r)
		return
	}

	file, redirectTo, found := resolvePath(r.URL.Path, snap.FS)
	if redirectTo != "" {
		if q := r.URL.RawQuery; q != "" {
			redirectTo += "?" + q
		}
		http.Redirect(w, r, redirectTo, http.StatusPermanentRedirect)
		return
	}
	if !found {
		h.serveNotFound(w, r, snap.FS)
		return
	}

	if cc := cacheControlForFile(file, &h.opts); cc != "" {
		w.Header().Set("Cache-Control", cc)
	}
	serveFile(w, r, snap.FS, file)
}

func (h *Handler) serveMaintenance(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Retry-After", "60")
	serveFileWithStatus(w, r, http.StatusServiceUnavailable, h.opts.FallbackFS, h.opts.MaintenanceFile)
}

func (h *Handler) serveNotFound(w http.ResponseWriter, r *http.Request, siteFS fs.FS) {
	w.Header().Set("Cache-Control", "no-store")

	if existsFile(siteFS, h.opts.Site404File) {
		serveFileWithStatus(w, r, http.StatusNotFound, siteFS, h.opts.Site404File)
		return
	}
	if existsFile(h.opts.FallbackFS, h.opts.Fallback404File) {
		serveFileWithStatus(w, r, http.StatusNotFound, h.opts.FallbackFS, h.opts.Fallback404File)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusNotFound)
	_, _ = w.Write([]byte("404 page not found"))
}

// serveFile writes name with http.ServeContent. http.ServeFileFS is not
// used because it redirects any path ending in /index.html, which would
// loop with the canonical redirects in resolvePath.
func serveFile(w http.ResponseWriter, r *http.Request, fsys fs.FS, name string) {
	f, err := fsys.Open(name)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		return
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	// embed.FS and os.DirFS files both implement io.ReadSeeker
	rs, ok := f.(io.ReadSeeker)
	if !ok {
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
		rs = bytes.NewReader(data)
	}
	http.ServeContent(w, r, name, fi.ModTime(), rs)
}

// statusOverrideWriter forces the status of the first WriteHeader so
// ServeContent can be reused for 404 and 503 pages.
type statusOverrideWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusOverrideWriter) WriteHeader(code int) {
	if w.wroteHeader {
		w.ResponseWriter.WriteHeader(code)
		return
	}
	w.wroteHeader = true
	w.ResponseWriter.WriteHeader(w.status)
}

func (w *statusOverrideWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(w.status)
	}
	return w.ResponseWriter.Write(b)
}

func serveFileWithStatus(w http.ResponseWriter, r *http.Request, status int, fsys fs.FS, name string) {
	// conditional headers would turn a 404 into a 304
	r2 := r.Clone(r.Context())
	r2.Header.Del("If-Modified-Since")
	r2.Header.Del("If-None-Match")
	r2.Header.Del("Range")
	serveFile(&statusOverrideWriter{ResponseWriter: w, status: status}, r2, fsys, name)
}
