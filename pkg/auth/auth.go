package auth

import (
	"context"
	"errors"
	"net/http"
)

// Issuer values for identities not backed by a named provider.
const (
	// IssuerAnonymous marks an identity assigned by the anonymous tracker.
	IssuerAnonymous = "Anonymous"

	// IssuerLocal marks the fixed development identity used when
	// authentication is disabled.
	IssuerLocal = "Local"

	// IssuerLegacy marks identities parsed from the 2-field session
	// cookie schema, which predates per-provider issuers.
	IssuerLegacy = "Old"
)

// Identity is the subject attributed to a request. It is immutable once
// constructed and lives for exactly one request.
type Identity struct {
	// Email is the display name of the subject. For anonymous identities
	// it holds the opaque per-browser identifier.
	Email string

	// ProviderUserID is the provider-assigned user id. Empty for
	// anonymous, local, and legacy identities.
	ProviderUserID string

	// Issuer is the origin of the assertion: a provider name,
	// "Anonymous", "Local", or "Old".
	Issuer string
}

// Name returns the identifier used for admin checks and analytics.
func (id *Identity) Name() string {
	if id == nil {
		return ""
	}
	return id.Email
}

// Anonymous reports whether the identity was assigned without any login.
func (id *Identity) Anonymous() bool {
	return id != nil && id.Issuer == IssuerAnonymous
}

// Provider is the contract each external identity provider exposes to the
// gateway. Implementations live in pkg/provider; the gateway depends only
// on this interface.
type Provider interface {
	// Name returns the canonical (lower-case) provider name.
	Name() string

	// AuthenticateRequest performs the full login flow: it may set the
	// session cookie, emit redirect headers, or send the caller to an
	// external login URL. Errors are degradations, never fatal.
	AuthenticateRequest(w http.ResponseWriter, r *http.Request) error

	// HasToken reports whether the request carries this provider's login
	// token or authorization code (an incoming login callback).
	HasToken(r *http.Request) bool

	// TryAuthenticateBearer validates an Authorization: Bearer credential
	// and returns the identity on success. A nil identity with nil error
	// means the request carries no bearer credential for this provider.
	TryAuthenticateBearer(ctx context.Context, r *http.Request) (*Identity, error)
}

// RouteMeta carries the authentication flags attached to a route.
type RouteMeta struct {
	// Authenticated marks routes that require a provider-backed login.
	Authenticated bool

	// AdminOnly marks routes restricted to the configured admin user.
	AdminOnly bool
}

// RouteResolver maps a request to its route metadata. The second return
// value is false for unmatched routes (static assets), which never
// require authentication.
type RouteResolver interface {
	Resolve(r *http.Request) (RouteMeta, bool)
}

// SessionAuthenticator validates the session cookie. Implemented by
// session.Codec.
type SessionAuthenticator interface {
	Authenticate(r *http.Request) (*Identity, error)
}

// AnonymousTracker assigns and persists per-browser anonymous identities.
// Implemented by anonymous.Tracker.
type AnonymousTracker interface {
	Ensure(w http.ResponseWriter, r *http.Request) (*Identity, bool)
}

// Sentinel errors. Request-path code recovers from all of them by
// degrading to a lower trust level; none may escape the gateway.
var (
	// ErrMalformedToken is returned for session payloads with a wrong
	// field count or an unparsable timestamp.
	ErrMalformedToken = errors.New("malformed session token")

	// ErrExpiredToken is returned for session tokens past their TTL.
	ErrExpiredToken = errors.New("session token expired")

	// ErrProvider is returned when talking to an external identity
	// provider fails (network or protocol).
	ErrProvider = errors.New("identity provider error")

	// ErrForbidden is the terminal denial returned by the admin gate.
	ErrForbidden = errors.New("access denied")

	// ErrTooManyRequests is returned when a bearer caller exceeds its
	// rate limit.
	ErrTooManyRequests = errors.New("rate limit exceeded")
)
