// Package local provides a development identity provider that signs
// every login in as a fixed local user. Used when no external provider
// is configured.
package local

import (
	"context"
	"net/http"

	"github.com/trygate-dev/trygate/pkg/auth"
	"github.com/trygate-dev/trygate/pkg/auth/session"
)

// Name is the canonical provider name.
const Name = "local"

// DefaultIdentity is the identity granted by the provider when none is
// configured explicitly.
var DefaultIdentity = auth.Identity{
	Email:  "local-user",
	Issuer: auth.IssuerLocal,
}

// Provider implements auth.Provider with a fixed identity.
type Provider struct {
	sessions *session.Codec
	identity auth.Identity
}

// Ensure Provider implements auth.Provider at compile time.
var _ auth.Provider = (*Provider)(nil)

// New creates the local provider. A zero identity falls back to
// DefaultIdentity.
func New(sessions *session.Codec, identity auth.Identity) *Provider {
	if identity == (auth.Identity{}) {
		identity = DefaultIdentity
	}
	return &Provider{sessions: sessions, identity: identity}
}

// Name returns the canonical provider name.
func (p *Provider) Name() string {
	return Name
}

// HasToken always reports false; there is no external login callback.
func (p *Provider) HasToken(*http.Request) bool {
	return false
}

// AuthenticateRequest issues a session for the fixed identity and sends
// the caller back to the site root.
func (p *Provider) AuthenticateRequest(w http.ResponseWriter, r *http.Request) error {
	id := p.identity
	if err := p.sessions.IssueCookie(w, &id); err != nil {
		return err
	}
	http.Redirect(w, r, "/", http.StatusFound)
	return nil
}

// TryAuthenticateBearer abstains; the local provider has no bearer
// surface.
func (p *Provider) TryAuthenticateBearer(context.Context, *http.Request) (*auth.Identity, error) {
	return nil, nil
}
