package httpmw

import (
	"context"
	"net/http"
	"strings"
)

// UnknownClient is the identifier for requests that carry none of the
// client headers. They all share one rate limit record.
const UnknownClient = "unknown"

// clientHeaders are consulted in order after X-Forwarded-For.
var clientHeaders = []string{"X-Real-IP", "CF-Connecting-IP", "X-Client-IP"}

type clientIDKey struct{}

// ClientID derives the rate limit identity of a request from proxy headers:
// the trimmed first entry of a non-empty X-Forwarded-For, even when that
// entry is blank, else X-Real-IP, CF-Connecting-IP, X-Client-IP, else
// UnknownClient. Values are not validated as addresses; the site runs
// behind a CDN that sets these headers.
func ClientID(r *http.Request) string {
	if xf := r.Header.Get("X-Forwarded-For"); xf != "" {
		first, _, _ := strings.Cut(xf, ",")
		return strings.TrimSpace(first)
	}
	for _, h := range clientHeaders {
		if v := strings.TrimSpace(r.Header.Get(h)); v != "" {
			return v
		}
	}
	return UnknownClient
}

// ClientIDMiddleware resolves ClientID once and stores it in the context.
func ClientIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := WithClientID(r.Context(), ClientID(r))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ClientIDFromContext returns the stored identifier, or "" if the middleware did not run.
func ClientIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(clientIDKey{}).(string)
	return id
}

// ClientIDOf prefers the identifier stored by ClientIDMiddleware and
// falls back to resolving it from r.
func ClientIDOf(r *http.Request) string {
	if id := ClientIDFromContext(r.Context()); id != "" {
		return id
	}
	return ClientID(r)
}

func WithClientID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, clientIDKey{}, id)
}
