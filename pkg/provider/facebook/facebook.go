// Package facebook provides the Facebook identity provider on top of
// the shared plain-OAuth2 site implementation.
package facebook

import (
	"fmt"
	"net/http"

	"golang.org/x/oauth2"

	"github.com/trygate-dev/trygate/pkg/analytics"
	"github.com/trygate-dev/trygate/pkg/auth"
	"github.com/trygate-dev/trygate/pkg/auth/session"
	"github.com/trygate-dev/trygate/pkg/provider/oauthsite"
)

// Name is the canonical provider name.
const Name = "facebook"

// Config holds Facebook-specific settings.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	// HTTPClient allows injecting a custom HTTP client. For testing.
	HTTPClient *http.Client
}

// Provider implements auth.Provider for Facebook.
type Provider struct {
	*oauthsite.Provider
}

// Ensure Provider implements auth.Provider at compile time.
var _ auth.Provider = (*Provider)(nil)

// New creates the Facebook provider.
func New(cfg Config, sessions *session.Codec, events analytics.Store) (*Provider, error) {
	base, err := oauthsite.New(oauthsite.Config{
		Name: Name,
		Endpoint: oauth2.Endpoint{
			AuthURL:  "https://www.facebook.com/v19.0/dialog/oauth",
			TokenURL: "https://graph.facebook.com/v19.0/oauth/access_token",
		},
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Scopes:       []string{"email"},
		UserInfoURL:  "https://graph.facebook.com/v19.0/me?fields=id,email",
		HTTPClient:   cfg.HTTPClient,
	}, sessions, events)
	if err != nil {
		return nil, fmt.Errorf("facebook: %w", err)
	}

	return &Provider{Provider: base}, nil
}
