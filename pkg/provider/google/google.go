// Package google provides the Google identity provider. It delegates
// the whole login flow to the shared OIDC implementation with Google's
// issuer.
package google

import (
	"fmt"
	"net/http"

	"github.com/trygate-dev/trygate/pkg/analytics"
	"github.com/trygate-dev/trygate/pkg/auth"
	"github.com/trygate-dev/trygate/pkg/auth/session"
	"github.com/trygate-dev/trygate/pkg/provider/openid"
)

// Name is the canonical provider name.
const Name = "google"

// IssuerURL is Google's fixed OIDC issuer.
const IssuerURL = "https://accounts.google.com"

// Config holds Google-specific settings.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	// HTTPClient allows injecting a custom HTTP client. For testing.
	HTTPClient *http.Client
}

// Provider implements auth.Provider for Google.
type Provider struct {
	*openid.Provider
}

// Ensure Provider implements auth.Provider at compile time.
var _ auth.Provider = (*Provider)(nil)

// New creates the Google provider.
func New(cfg Config, sessions *session.Codec, events analytics.Store) (*Provider, error) {
	base, err := openid.New(openid.Config{
		Name:         Name,
		IssuerURL:    IssuerURL,
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		HTTPClient:   cfg.HTTPClient,
	}, sessions, events)
	if err != nil {
		return nil, fmt.Errorf("google: %w", err)
	}

	return &Provider{Provider: base}, nil
}
