// Package openid provides a shared OIDC authorization-code login
// provider. Concrete providers (aad, google) wrap it with their issuer
// endpoints and, where applicable, bearer validation.
package openid

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/trygate-dev/trygate/pkg/analytics"
	"github.com/trygate-dev/trygate/pkg/auth"
	"github.com/trygate-dev/trygate/pkg/auth/session"
	"github.com/trygate-dev/trygate/pkg/observability"
)

// Config holds the settings shared by OIDC login providers.
type Config struct {
	// Name is the canonical (lower-case) provider name.
	Name string

	// IssuerURL is the OIDC issuer used for discovery.
	IssuerURL string

	// ClientID and ClientSecret are the registered application
	// credentials.
	ClientID     string
	ClientSecret string

	// RedirectURL is the registered login callback URL.
	RedirectURL string

	// Scopes requested during login. openid is always included.
	Scopes []string

	// HTTPClient allows injecting a custom HTTP client (useful for
	// testing). If nil, http.DefaultClient is used.
	HTTPClient *http.Client
}

// applyDefaults fills in zero-value fields.
func (c *Config) applyDefaults() {
	if c.HTTPClient == nil {
		c.HTTPClient = http.DefaultClient
	}
	for _, s := range c.Scopes {
		if s == oidc.ScopeOpenID {
			return
		}
	}
	c.Scopes = append([]string{oidc.ScopeOpenID, "profile", "email"}, c.Scopes...)
}

// Provider implements the OIDC authorization-code flow against a single
// issuer. Discovery happens lazily on first use so a slow issuer cannot
// block startup.
type Provider struct {
	cfg      Config
	sessions *session.Codec
	events   analytics.Store

	mu       sync.Mutex
	oauthCfg *oauth2.Config
	verifier *oidc.IDTokenVerifier
}

// Ensure Provider implements auth.Provider at compile time.
var _ auth.Provider = (*Provider)(nil)

// New creates an OIDC login provider. sessions is required; events may
// be nil.
func New(cfg Config, sessions *session.Codec, events analytics.Store) (*Provider, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("openid: Name is required")
	}
	if cfg.IssuerURL == "" {
		return nil, fmt.Errorf("openid: IssuerURL is required")
	}
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("openid: ClientID is required")
	}
	if sessions == nil {
		return nil, fmt.Errorf("openid: session codec is required")
	}

	cfg.applyDefaults()
	cfg.Name = strings.ToLower(cfg.Name)

	return &Provider{cfg: cfg, sessions: sessions, events: events}, nil
}

// Name returns the canonical provider name.
func (p *Provider) Name() string {
	return p.cfg.Name
}

// HasToken reports whether the request is an incoming login callback:
// it carries an authorization code (or an implicit-flow id_token).
func (p *Provider) HasToken(r *http.Request) bool {
	q := r.URL.Query()
	return q.Get("code") != "" || q.Get("id_token") != ""
}

// AuthenticateRequest completes a login callback when the request
// carries one, and otherwise starts the login flow. Errors degrade; the
// response the provider writes (redirect or 403) stands either way.
func (p *Provider) AuthenticateRequest(w http.ResponseWriter, r *http.Request) error {
	if p.HasToken(r) {
		return p.completeLogin(w, r)
	}
	return p.beginLogin(w, r)
}

// TryAuthenticateBearer abstains; the base OIDC provider validates only
// browser logins. AAD layers JWKS bearer validation on top.
func (p *Provider) TryAuthenticateBearer(context.Context, *http.Request) (*auth.Identity, error) {
	return nil, nil
}

// LoginURL returns the external authorization URL for this request.
// The state round-trips the provider selection and the original path.
func (p *Provider) LoginURL(ctx context.Context, r *http.Request) (string, error) {
	oauthCfg, _, err := p.discover(ctx)
	if err != nil {
		return "", err
	}

	state := "provider=" + p.cfg.Name + "&redir=" + url.QueryEscape(r.URL.Path)
	return oauthCfg.AuthCodeURL(state), nil
}

// beginLogin sends the caller to the external login page. Browser
// callers get a 302; API callers get 403 with a LoginUrl header and a
// cleared session cookie, so clients can surface the login link.
func (p *Provider) beginLogin(w http.ResponseWriter, r *http.Request) error {
	loginURL, err := p.LoginURL(r.Context(), r)
	if err != nil {
		http.Error(w, `{"error":"login unavailable"}`, http.StatusServiceUnavailable)
		return err
	}

	if auth.DefaultClassifier.IsBrowserRequest(r) {
		http.Redirect(w, r, loginURL, http.StatusFound)
		return nil
	}

	session.ClearCookie(w)
	w.Header().Set("LoginUrl", loginURL)
	w.WriteHeader(http.StatusForbidden)
	return nil
}

// completeLogin exchanges the authorization code, verifies the ID token,
// issues the session cookie, and redirects back into the application.
func (p *Provider) completeLogin(w http.ResponseWriter, r *http.Request) error {
	ctx := oidc.ClientContext(r.Context(), p.cfg.HTTPClient)

	oauthCfg, verifier, err := p.discover(ctx)
	if err != nil {
		http.Error(w, `{"error":"login unavailable"}`, http.StatusServiceUnavailable)
		return err
	}

	code := r.URL.Query().Get("code")
	token, err := oauthCfg.Exchange(ctx, code)
	if err != nil {
		http.Redirect(w, r, "/", http.StatusFound)
		return fmt.Errorf("%w: exchanging code: %w", auth.ErrProvider, err)
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok {
		http.Redirect(w, r, "/", http.StatusFound)
		return fmt.Errorf("%w: token response missing id_token", auth.ErrProvider)
	}

	idToken, err := verifier.Verify(ctx, rawIDToken)
	if err != nil {
		http.Redirect(w, r, "/", http.StatusFound)
		return fmt.Errorf("%w: verifying id_token: %w", auth.ErrProvider, err)
	}

	var claims struct {
		Email             string `json:"email"`
		PreferredUsername string `json:"preferred_username"`
	}
	if err := idToken.Claims(&claims); err != nil {
		http.Redirect(w, r, "/", http.StatusFound)
		return fmt.Errorf("%w: decoding claims: %w", auth.ErrProvider, err)
	}

	email := claims.Email
	if email == "" {
		email = claims.PreferredUsername
	}
	if email == "" {
		email = idToken.Subject
	}

	identity := &auth.Identity{
		Email:          email,
		ProviderUserID: idToken.Subject,
		Issuer:         p.cfg.Name,
	}

	p.InstallSession(w, r, identity)
	http.Redirect(w, r, redirTarget(r), http.StatusFound)
	return nil
}

// InstallSession issues the session cookie for a freshly authenticated
// identity and records the login event.
func (p *Provider) InstallSession(w http.ResponseWriter, r *http.Request, id *auth.Identity) {
	if err := p.sessions.IssueCookie(w, id); err != nil {
		slog.Warn("issuing session cookie failed", "provider", p.cfg.Name, "error", err)
		return
	}

	observability.SessionsIssued.WithLabelValues(p.cfg.Name).Inc()

	if p.events != nil {
		ev := analytics.NewEvent(analytics.EventUserLoggedIn, id.Name(), id.Issuer, r)
		if err := p.events.RecordEvent(r.Context(), ev); err != nil {
			slog.Warn("recording login event failed", "error", err)
		}
	}
}

// discover resolves the issuer's endpoints once and caches the result.
func (p *Provider) discover(ctx context.Context) (*oauth2.Config, *oidc.IDTokenVerifier, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.oauthCfg != nil {
		return p.oauthCfg, p.verifier, nil
	}

	ctx = oidc.ClientContext(ctx, p.cfg.HTTPClient)
	issuer, err := oidc.NewProvider(ctx, p.cfg.IssuerURL)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: discovering %s: %w", auth.ErrProvider, p.cfg.IssuerURL, err)
	}

	p.oauthCfg = &oauth2.Config{
		ClientID:     p.cfg.ClientID,
		ClientSecret: p.cfg.ClientSecret,
		RedirectURL:  p.cfg.RedirectURL,
		Endpoint:     issuer.Endpoint(),
		Scopes:       p.cfg.Scopes,
	}
	p.verifier = issuer.Verifier(&oidc.Config{ClientID: p.cfg.ClientID})

	return p.oauthCfg, p.verifier, nil
}

// redirTarget extracts the post-login destination from the state
// parameter, defaulting to the site root.
func redirTarget(r *http.Request) string {
	state := r.URL.Query().Get("state")
	if decoded, err := url.QueryUnescape(state); err == nil {
		state = decoded
	}
	for _, part := range strings.Split(state, "&") {
		if target, ok := strings.CutPrefix(part, "redir="); ok {
			if unescaped, err := url.QueryUnescape(target); err == nil {
				target = unescaped
			}
			if strings.HasPrefix(target, "/") {
				return target
			}
		}
	}
	return "/"
}
