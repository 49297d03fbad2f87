// Package ratelimit throttles clients of the public site.
//
// Limiter is a fixed-window counter keyed by client identifier: each client
// gets limit requests per window, counted from its first request, and the
// count starts over on the first request after the window ends. Records are
// replaced on expiry and removed in bulk by a periodic sweep (Run). Because
// windows are not sliding, a client can land up to twice the limit across a
// window boundary.
//
// The table lives in process memory by default. With WithStore the counting
// moves to a shared Store (RedisStore) so every instance sees the same
// windows; expiry is then handled by key TTL and the sweep has nothing to do.
//
// Buckets is a separate per-key token bucket used for low-volume endpoints
// such as the contact form, where a steady refill fits better than a window.
//
// None of this stops distributed floods or bandwidth attacks; it is basic
// per-client abuse control behind whatever the CDN does upstream.
package ratelimit
