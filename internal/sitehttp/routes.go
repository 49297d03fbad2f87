// Package sitehttp registers the public site routes on a chi router.
package sitehttp

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/devint-cl/devint-web/internal/httpmw"
)

const (
	ContactPath = "/api/contact"
	SitemapPath = "/sitemap.xml"
)

type Routes struct {
	Site    http.Handler
	Contact http.Handler
	Sitemap http.Handler
}

// RegisterRoutes mounts the API and sitemap routes and makes Site the
// fallback for everything else, including unmatched methods.
func (rt *Routes) RegisterRoutes(r chi.Router) {
	if rt.Contact != nil {
		r.With(httpmw.Scope("contact")).Method(http.MethodPost, ContactPath, rt.Contact)
	}
	if rt.Sitemap != nil {
		sm := r.With(httpmw.Scope("sitemap"))
		sm.Method(http.MethodGet, SitemapPath, rt.Sitemap)
		sm.Method(http.MethodHead, SitemapPath, rt.Sitemap)
	}
	if rt.Site != nil {
		site := httpmw.Scope("site")(rt.Site)
		r.NotFound(site.ServeHTTP)
		r.MethodNotAllowed(site.ServeHTTP)
	}
}
