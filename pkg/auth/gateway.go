package auth

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/trygate-dev/trygate/pkg/debug"
	"github.com/trygate-dev/trygate/pkg/observability"
)

// Outcome labels reported to the auth metrics.
const (
	outcomeSession   = "session"
	outcomeBearer    = "bearer"
	outcomeCallback  = "provider_callback"
	outcomeLogin     = "provider_login"
	outcomeAnonymous = "anonymous"
	outcomeNone      = "unauthenticated"
	outcomeLocal     = "local"
)

// Gateway is the per-request authentication orchestrator. It is built
// once at startup from read-only collaborators and shared by all
// request-handling goroutines; every per-request value lives in the
// request context.
type Gateway struct {
	// Enabled toggles authentication. When false every request is
	// granted LocalIdentity and all other logic is bypassed.
	Enabled bool

	// LocalIdentity is installed on every request when Enabled is false.
	LocalIdentity Identity

	Registry  *Registry
	Sessions  SessionAuthenticator
	Anonymous AnonymousTracker
	Routes    RouteResolver
	Classify  Classifier

	// Limiter, when non-nil, gates bearer-authenticated callers.
	Limiter RateLimiter
}

// Middleware wraps next with the per-request authentication pass.
// Exactly one of the terminal steps runs for each request; no error and
// no panic escapes this boundary.
func (g *Gateway) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				slog.Error("panic during authentication", "path", r.URL.Path, "panic", rec)
				http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
			}
		}()

		if !g.Enabled {
			id := g.LocalIdentity
			g.serve(next, w, r, &id, outcomeLocal)
			return
		}

		// The same logical request can be re-authenticated by the
		// pipeline; the memo keeps the anonymous pass idempotent.
		r = r.WithContext(WithAnonymousMemo(r.Context()))

		// Step 1: self-issued session cookie.
		if id, err := g.Sessions.Authenticate(r); err == nil {
			g.serve(next, w, r, id, outcomeSession)
			return
		} else if !isCookieAbsence(err) {
			slog.Warn("session cookie rejected", "path", r.URL.Path, "error", err)
		}

		provider := g.Registry.ResolveRequest(r)
		debug.Log("auth", "provider resolved", "provider", provider.Name(), "path", r.URL.Path)

		// Step 2: bearer credentials from the non-browser API surface.
		if g.Classify.IsFunctionsPortalRequest(r) {
			id, terminal := g.tryBearer(provider, w, r)
			if terminal {
				return
			}
			if id != nil {
				g.serve(next, w, r, id, outcomeBearer)
				return
			}
		}

		// Step 3: incoming login callback. Delegate and return; the
		// provider issues the session cookie and redirects.
		if provider.HasToken(r) {
			debug.Log("auth", "login callback", "provider", provider.Name())
			if err := provider.AuthenticateRequest(w, r); err != nil {
				slog.Warn("provider callback failed",
					"provider", provider.Name(), "error", err)
			}
			observability.AuthOutcomes.WithLabelValues(outcomeCallback, provider.Name()).Inc()
			return
		}

		// Step 4: does the route require authentication? Unmatched
		// routes are static assets and never do.
		meta, matched := g.Routes.Resolve(r)
		requiresAuth := matched && meta.Authenticated

		if requiresAuth {
			// Step 5: full login flow, typically an external redirect.
			if err := provider.AuthenticateRequest(w, r); err != nil {
				slog.Warn("provider login failed",
					"provider", provider.Name(), "error", err)
			}
			observability.AuthOutcomes.WithLabelValues(outcomeLogin, provider.Name()).Inc()
			return
		}

		// Step 6: transparent anonymous identity for browsers.
		if g.Classify.IsBrowserRequest(r) {
			if id, _ := g.Anonymous.Ensure(w, r); id != nil {
				g.serve(next, w, r, id, outcomeAnonymous)
				return
			}
		}

		// Step 7: leave unauthenticated.
		g.serve(next, w, r, nil, outcomeNone)
	})
}

// tryBearer validates a bearer credential, applying the rate limiter on
// success. Provider failures degrade to unauthenticated; an exceeded
// rate limit is terminal (the 429 has been written).
func (g *Gateway) tryBearer(provider Provider, w http.ResponseWriter, r *http.Request) (*Identity, bool) {
	id, err := provider.TryAuthenticateBearer(r.Context(), r)
	if err != nil {
		slog.Warn("bearer authentication failed",
			"provider", provider.Name(), "error", err)
		return nil, false
	}
	if id == nil {
		return nil, false
	}

	if g.Limiter != nil {
		if err := g.Limiter.Allow(r.Context(), id); err != nil {
			slog.Warn("bearer caller rate limited", "subject", id.Name())
			http.Error(w, `{"error":"rate limit exceeded"}`, http.StatusTooManyRequests)
			return nil, true
		}
	}

	return id, false
}

// serve installs the identity (when present) and hands off to next.
func (g *Gateway) serve(next http.Handler, w http.ResponseWriter, r *http.Request, id *Identity, outcome string) {
	issuer := "none"
	if id != nil {
		issuer = id.Issuer
		r = r.WithContext(SetIdentity(r.Context(), id))
	}
	observability.AuthOutcomes.WithLabelValues(outcome, issuer).Inc()
	next.ServeHTTP(w, r)
}

// isCookieAbsence reports whether the session error just means "no
// cookie", which is the normal unauthenticated case and not worth a log
// line on every request.
func isCookieAbsence(err error) bool {
	return errors.Is(err, http.ErrNoCookie)
}
