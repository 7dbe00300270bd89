// Package oauthsite provides a shared plain-OAuth2 login provider for
// social sites without OIDC discovery (facebook, twitter). After the
// code exchange the user profile is fetched from a configured userinfo
// endpoint.
package oauthsite

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/oauth2"

	"github.com/trygate-dev/trygate/pkg/analytics"
	"github.com/trygate-dev/trygate/pkg/auth"
	"github.com/trygate-dev/trygate/pkg/auth/session"
	"github.com/trygate-dev/trygate/pkg/debug"
	"github.com/trygate-dev/trygate/pkg/observability"
)

// Config holds the settings for a plain-OAuth2 site provider.
type Config struct {
	// Name is the canonical (lower-case) provider name.
	Name string

	// Endpoint holds the site's authorize and token URLs.
	Endpoint oauth2.Endpoint

	// ClientID and ClientSecret are the registered application
	// credentials.
	ClientID     string
	ClientSecret string

	// RedirectURL is the registered login callback URL.
	RedirectURL string

	// Scopes requested during login.
	Scopes []string

	// UserInfoURL returns the caller's profile as JSON when requested
	// with the access token.
	UserInfoURL string

	// EmailField and IDField name the profile JSON fields holding the
	// display identifier and the provider user id. Defaults: "email",
	// "id".
	EmailField string
	IDField    string

	// HTTPClient allows injecting a custom HTTP client. If nil,
	// http.DefaultClient is used.
	HTTPClient *http.Client
}

// applyDefaults fills in zero-value fields.
func (c *Config) applyDefaults() {
	if c.EmailField == "" {
		c.EmailField = "email"
	}
	if c.IDField == "" {
		c.IDField = "id"
	}
	if c.HTTPClient == nil {
		c.HTTPClient = http.DefaultClient
	}
}

// Provider implements auth.Provider for a plain-OAuth2 site.
type Provider struct {
	cfg      Config
	oauthCfg *oauth2.Config
	sessions *session.Codec
	events   analytics.Store
}

// Ensure Provider implements auth.Provider at compile time.
var _ auth.Provider = (*Provider)(nil)

// New creates a site provider.
func New(cfg Config, sessions *session.Codec, events analytics.Store) (*Provider, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("oauthsite: Name is required")
	}
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("oauthsite: ClientID is required")
	}
	if cfg.UserInfoURL == "" {
		return nil, fmt.Errorf("oauthsite: UserInfoURL is required")
	}
	if sessions == nil {
		return nil, fmt.Errorf("oauthsite: session codec is required")
	}

	cfg.applyDefaults()
	cfg.Name = strings.ToLower(cfg.Name)

	return &Provider{
		cfg: cfg,
		oauthCfg: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     cfg.Endpoint,
			Scopes:       cfg.Scopes,
		},
		sessions: sessions,
		events:   events,
	}, nil
}

// Name returns the canonical provider name.
func (p *Provider) Name() string {
	return p.cfg.Name
}

// HasToken reports whether the request carries this site's
// authorization code.
func (p *Provider) HasToken(r *http.Request) bool {
	return r.URL.Query().Get("code") != ""
}

// TryAuthenticateBearer abstains; site providers have no bearer surface.
func (p *Provider) TryAuthenticateBearer(context.Context, *http.Request) (*auth.Identity, error) {
	return nil, nil
}

// AuthenticateRequest completes a login callback when the request
// carries one, and otherwise starts the login flow.
func (p *Provider) AuthenticateRequest(w http.ResponseWriter, r *http.Request) error {
	if p.HasToken(r) {
		return p.completeLogin(w, r)
	}

	state := "provider=" + p.cfg.Name
	loginURL := p.oauthCfg.AuthCodeURL(state)
	debug.Log("providers", "starting login flow", "provider", p.cfg.Name)
	debug.Raw("providers", loginURL)

	if auth.DefaultClassifier.IsBrowserRequest(r) {
		http.Redirect(w, r, loginURL, http.StatusFound)
		return nil
	}

	session.ClearCookie(w)
	w.Header().Set("LoginUrl", loginURL)
	w.WriteHeader(http.StatusForbidden)
	return nil
}

// completeLogin exchanges the code, fetches the profile, issues the
// session cookie, and redirects to the site root.
func (p *Provider) completeLogin(w http.ResponseWriter, r *http.Request) error {
	ctx := context.WithValue(r.Context(), oauth2.HTTPClient, p.cfg.HTTPClient)

	token, err := p.oauthCfg.Exchange(ctx, r.URL.Query().Get("code"))
	if err != nil {
		http.Redirect(w, r, "/", http.StatusFound)
		return fmt.Errorf("%w: exchanging code: %w", auth.ErrProvider, err)
	}

	email, userID, err := p.fetchProfile(ctx, token)
	if err != nil {
		http.Redirect(w, r, "/", http.StatusFound)
		return err
	}

	identity := &auth.Identity{
		Email:          email,
		ProviderUserID: userID,
		Issuer:         p.cfg.Name,
	}

	if err := p.sessions.IssueCookie(w, identity); err != nil {
		slog.Warn("issuing session cookie failed", "provider", p.cfg.Name, "error", err)
	} else {
		observability.SessionsIssued.WithLabelValues(p.cfg.Name).Inc()
		if p.events != nil {
			ev := analytics.NewEvent(analytics.EventUserLoggedIn, identity.Name(), identity.Issuer, r)
			if err := p.events.RecordEvent(r.Context(), ev); err != nil {
				slog.Warn("recording login event failed", "error", err)
			}
		}
	}

	http.Redirect(w, r, "/", http.StatusFound)
	return nil
}

// fetchProfile loads the user profile from the userinfo endpoint. Some
// sites nest the profile under a "data" envelope; both shapes are
// accepted.
func (p *Provider) fetchProfile(ctx context.Context, token *oauth2.Token) (email, id string, err error) {
	client := p.oauthCfg.Client(ctx, token)

	resp, err := client.Get(p.cfg.UserInfoURL)
	if err != nil {
		return "", "", fmt.Errorf("%w: fetching profile: %w", auth.ErrProvider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("%w: profile endpoint returned status %d", auth.ErrProvider, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", "", fmt.Errorf("%w: reading profile: %w", auth.ErrProvider, err)
	}

	var profile map[string]any
	if err := json.Unmarshal(body, &profile); err != nil {
		return "", "", fmt.Errorf("%w: parsing profile: %w", auth.ErrProvider, err)
	}
	if data, ok := profile["data"].(map[string]any); ok {
		profile = data
	}

	id = fieldString(profile, p.cfg.IDField)
	if id == "" {
		return "", "", fmt.Errorf("%w: profile missing %q field", auth.ErrProvider, p.cfg.IDField)
	}

	email = fieldString(profile, p.cfg.EmailField)
	if email == "" {
		// Sites may withhold email; fall back to a stable name.
		email = p.cfg.Name + ":" + id
	}

	return email, id, nil
}

// fieldString extracts a string field from a decoded JSON object.
func fieldString(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}
