// Package twitter provides the Twitter identity provider on top of the
// shared plain-OAuth2 site implementation.
package twitter

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
const Name = "twitter"

// Config holds Twitter-specific settings.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	// HTTPClient allows injecting a custom HTTP client. For testing.
	HTTPClient *http.Client
}

// Provider implements auth.Provider for Twitter.
type Provider struct {
	*oauthsite.Provider
}

// Ensure Provider implements auth.Provider at compile time.
var _ auth.Provider = (*Provider)(nil)

// New creates the Twitter provider. Twitter withholds email addresses
// from the v2 users endpoint, so identities fall back to the stable
// "twitter:<id>" name.
func New(cfg Config, sessions *session.Codec, events analytics.Store) (*Provider, error) {
	base, err := oauthsite.New(oauthsite.Config{
		Name: Name,
		Endpoint: oauth2.Endpoint{
			AuthURL:  "https://twitter.com/i/oauth2/authorize",
			TokenURL: "https://api.twitter.com/2/oauth2/token",
		},
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Scopes:       []string{"users.read", "tweet.read"},
		UserInfoURL:  "https://api.twitter.com/2/users/me",
		EmailField:   "username",
		HTTPClient:   cfg.HTTPClient,
	}, sessions, events)
	if err != nil {
		return nil, fmt.Errorf("twitter: %w", err)
	}

	return &Provider{Provider: base}, nil
}
