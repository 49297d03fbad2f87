// Package httpmw provides HTTP middleware for the public-facing server.
//
// httpserver.NewHandler composes it outermost first: panic recovery,
// request ID, client ID, OTEL tracing, the edge pipeline (rate limiting and
// security headers, see package edge), trace response headers, metrics,
// structured logging, compression, access logging and the body limit.
//
// Each middleware is an independent function that can be tested, reordered,
// or removed individually. Query strings and user agents are kept out of
// log fields.
package httpmw
