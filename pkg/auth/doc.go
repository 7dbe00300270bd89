// Package auth decides, for every inbound HTTP request, which identity
// governs it before any handler runs.
//
// The gateway runs a fixed decision procedure per request: validate the
// encrypted session cookie, then bearer authentication for API callers,
// then provider login callbacks, then the provider login flow for routes
// that require authentication, and finally a transparent anonymous
// identity for browser traffic. Each step either installs an identity in
// the request context or falls through to a lower trust level; nothing on
// this path may panic or surface an error to the caller.
//
// External identity providers (AAD, Facebook, Twitter, Google) plug in
// behind the Provider interface and are looked up through a Registry that
// is built once at startup and read-only afterwards.
package auth
