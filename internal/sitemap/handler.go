package sitemap

import (
	"io/fs"
	"net/http"
	"time"

	"github.com/devint-cl/devint-web/internal/content"
	"github.com/devint-cl/devint-web/internal/log"
)

type SnapshotProvider interface {
	Get() (*content.Snapshot, bool)
}

type Options struct {
	BaseURL string

	// Content supplies the optional sitemap.yaml manifest
	Content SnapshotProvider

	// Now defaults to time.Now
	Now func() time.Time
}

type Handler struct {
	opts Options
}

func NewHandler(opts Options) *Handler {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Handler{opts: opts}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	L := log.FromContext(ctx)

	body, err := Marshal(Build(h.opts.BaseURL, h.manifest(r), h.opts.Now()))
	if err != nil {
		L.Error(ctx, err, "sitemap render failed")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/xml")
	w.Header().Set("Cache-Control", "max-age=3600")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// manifest returns nil when there is no snapshot or no manifest. A broken
// manifest is logged and ignored so the static pages are still listed.
func (h *Handler) manifest(r *http.Request) *Manifest {
	if h.opts.Content == nil {
		return nil
	}
	snap, ok := h.opts.Content.Get()
	if !ok {
		return nil
	}
	b, err := fs.ReadFile(snap.FS, ManifestFile)
	if err != nil {
		return nil
	}
	m, err := ParseManifest(b)
	if err != nil {
		log.FromContext(r.Context()).Warn(r.Context(), "ignoring invalid sitemap manifest",
			"err", err,
			"site_hash", snap.Meta.SHA256,
		)
		return nil
	}
	return m
}
