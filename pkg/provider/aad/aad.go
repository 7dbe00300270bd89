// Package aad provides the Azure Active Directory identity provider.
// Browser logins go through the shared OIDC code flow; non-browser API
// callers are validated from Authorization: Bearer JWTs against the
// tenant's JWKS endpoint.
package aad

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"github.com/trygate-dev/trygate/pkg/analytics"
	"github.com/trygate-dev/trygate/pkg/auth"
	"github.com/trygate-dev/trygate/pkg/auth/session"
	"github.com/trygate-dev/trygate/pkg/provider/openid"
)

// Name is the canonical provider name.
const Name = "aad"

// Config holds AAD-specific settings.
type Config struct {
	// TenantID is the directory tenant, or "common" for multi-tenant.
	TenantID string

	// ClientID and ClientSecret are the registered application
	// credentials.
	ClientID     string
	ClientSecret string

	// RedirectURL is the registered login callback URL.
	RedirectURL string

	// Audience is the expected aud claim on bearer tokens. Defaults to
	// ClientID.
	Audience string

	// JWKSURL overrides the tenant's key set URL. For testing.
	JWKSURL string

	// CacheTTL controls how long JWKS keys are cached. Default: 1 hour.
	CacheTTL time.Duration

	// HTTPClient allows injecting a custom HTTP client. If nil,
	// http.DefaultClient is used.
	HTTPClient *http.Client
}

// Provider implements auth.Provider for AAD.
type Provider struct {
	*openid.Provider
	audience string
	jwks     *jwksCache
}

// Ensure Provider implements auth.Provider at compile time.
var _ auth.Provider = (*Provider)(nil)

// New creates the AAD provider.
func New(cfg Config, sessions *session.Codec, events analytics.Store) (*Provider, error) {
	if cfg.TenantID == "" {
		cfg.TenantID = "common"
	}
	if cfg.Audience == "" {
		cfg.Audience = cfg.ClientID
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = 1 * time.Hour
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	if cfg.JWKSURL == "" {
		cfg.JWKSURL = fmt.Sprintf(
			"https://login.microsoftonline.com/%s/discovery/v2.0/keys", cfg.TenantID)
	}

	base, err := openid.New(openid.Config{
		Name:         Name,
		IssuerURL:    fmt.Sprintf("https://login.microsoftonline.com/%s/v2.0", cfg.TenantID),
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		HTTPClient:   cfg.HTTPClient,
	}, sessions, events)
	if err != nil {
		return nil, fmt.Errorf("aad: %w", err)
	}

	return &Provider{
		Provider: base,
		audience: cfg.Audience,
		jwks:     newJWKSCache(cfg.JWKSURL, cfg.CacheTTL, cfg.HTTPClient),
	}, nil
}

// TryAuthenticateBearer validates an Authorization: Bearer JWT. A nil
// identity with nil error means the request carries no bearer
// credential; validation failures return auth.ErrProvider-wrapped
// errors and the gateway degrades to unauthenticated.
func (p *Provider) TryAuthenticateBearer(ctx context.Context, r *http.Request) (*auth.Identity, error) {
	header := r.Header.Get("Authorization")
	if header == "" || !strings.HasPrefix(header, "Bearer ") {
		return nil, nil
	}

	tokenStr := strings.TrimPrefix(header, "Bearer ")
	if tokenStr == "" {
		return nil, fmt.Errorf("%w: empty bearer token", auth.ErrProvider)
	}

	token, err := jwtlib.Parse(tokenStr, func(token *jwtlib.Token) (interface{}, error) {
		// Ensure the signing method is RSA.
		if _, ok := token.Method.(*jwtlib.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}

		kid, ok := token.Header["kid"].(string)
		if !ok || kid == "" {
			return nil, fmt.Errorf("token missing kid header")
		}

		key, fetchErr := p.jwks.getKey(ctx, kid)
		if fetchErr != nil {
			return nil, fmt.Errorf("fetching JWKS key for kid %q: %w", kid, fetchErr)
		}

		return key, nil
	},
		jwtlib.WithValidMethods([]string{"RS256", "RS384", "RS512"}),
		jwtlib.WithAudience(p.audience),
	)
	if err != nil {
		slog.Debug("bearer JWT rejected", "error", err)
		return nil, fmt.Errorf("%w: invalid bearer token: %w", auth.ErrProvider, err)
	}

	claims, ok := token.Claims.(jwtlib.MapClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("%w: invalid bearer claims", auth.ErrProvider)
	}

	subject := claimString(claims, "oid")
	if subject == "" {
		subject = claimString(claims, "sub")
	}
	if subject == "" {
		return nil, fmt.Errorf("%w: bearer token missing subject", auth.ErrProvider)
	}

	email := claimString(claims, "preferred_username")
	if email == "" {
		email = claimString(claims, "email")
	}
	if email == "" {
		email = subject
	}

	return &auth.Identity{
		Email:          email,
		ProviderUserID: subject,
		Issuer:         Name,
	}, nil
}

// claimString extracts a string value from JWT claims.
// Returns empty string if the claim is missing or not a string.
func claimString(claims jwtlib.MapClaims, key string) string {
	val, ok := claims[key]
	if !ok {
		return ""
	}
	s, ok := val.(string)
	if !ok {
		return ""
	}
	return s
}
