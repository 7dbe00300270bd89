// Package transport provides the HTTP middleware chain and error
// serialization shared by the trygate endpoints.
//
// The transport layer sits between net/http and the authentication
// gateway. It assigns request IDs (X-Request-ID), recovers panics into
// JSON error responses, and emits one structured log line per request
// via log/slog. The JSON error envelope is defined in pkg/api; this
// package maps error categories to HTTP status codes and writes them.
//
// Middleware composes with Chain: Chain(a, b, c) produces a(b(c(handler))),
// so the first middleware is the outermost wrapper.
package transport
