package httpmw

import "net/http"

// ContentSecurityPolicy is sent on every production response. Analytics,
// Google Fonts and YouTube/Google embeds are the only third parties.
const ContentSecurityPolicy = "default-src 'self'; " +
	"script-src 'self' 'unsafe-inline' 'unsafe-eval' https://www.google-analytics.com https://www.googletagmanager.com; " +
	"style-src 'self' 'unsafe-inline' https://fonts.googleapis.com; " +
	"font-src 'self' https://fonts.gstatic.com; " +
	"img-src 'self' data: https: blob:; " +
	"media-src 'self' https:; " +
	"object-src 'none'; " +
	"frame-src 'self' https://www.youtube.com https://www.google.com; " +
	"connect-src 'self' https://www.google-analytics.com; " +
	"worker-src 'self' blob:; " +
	"frame-ancestors 'none'; " +
	"base-uri 'self'; " +
	"form-action 'self'; " +
	"upgrade-insecure-requests;"

const HSTS = "max-age=31536000; includeSubDomains; preload"

// Header is one response header.
type Header struct {
	Name  string
	Value string
}

// HeaderSet is an ordered list of response headers.
type HeaderSet []Header

// productionHeaders are the fixed headers, HSTS is added per request
var productionHeaders = HeaderSet{
	{"Content-Security-Policy", ContentSecurityPolicy},
	{"X-Frame-Options", "DENY"},
	{"X-Content-Type-Options", "nosniff"},
	{"X-XSS-Protection", "1; mode=block"},
	{"Referrer-Policy", "strict-origin-when-cross-origin"},
	{"Permissions-Policy", "camera=(), microphone=(), geolocation=(), payment=()"},
}

// HeadersFor returns the security headers for r. Outside production the set
// is empty. HSTS is only sent when the request arrived over https.
func HeadersFor(r *http.Request, production bool) HeaderSet {
	if !production {
		return nil
	}
	hs := make(HeaderSet, len(productionHeaders), len(productionHeaders)+1)
	copy(hs, productionHeaders)
	if SchemeFromRequest(r) == "https" {
		hs = append(hs, Header{"Strict-Transport-Security", HSTS})
	}
	return hs
}

// Apply sets every header on h, replacing existing values of the same name.
func (hs HeaderSet) Apply(h http.Header) {
	for _, kv := range hs {
		h.Set(kv.Name, kv.Value)
	}
}

// Get returns the value for name, or "".
func (hs HeaderSet) Get(name string) string {
	for _, kv := range hs {
		if http.CanonicalHeaderKey(kv.Name) == http.CanonicalHeaderKey(name) {
			return kv.Value
		}
	}
	return ""
}
