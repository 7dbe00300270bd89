package auth

import (
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
)

// stateProviderRe extracts a provider= token from an OAuth state value.
var stateProviderRe = regexp.MustCompile(`(?i)provider=([^&]+)`)

// Registry is the name-to-provider lookup table. It is populated once at
// startup and read-only afterwards, so concurrent reads need no locking.
type Registry struct {
	providers   map[string]Provider
	defaultName string
}

// NewRegistry creates a registry with the given default provider name.
// The default must be registered before the registry is used; Validate
// enforces this at startup.
func NewRegistry(defaultName string) *Registry {
	return &Registry{
		providers:   make(map[string]Provider),
		defaultName: strings.ToLower(defaultName),
	}
}

// Register adds a provider under its canonical name. Duplicate names are
// a configuration error, reported at startup and never at request time.
func (reg *Registry) Register(name string, p Provider) error {
	key := strings.ToLower(name)
	if _, exists := reg.providers[key]; exists {
		return fmt.Errorf("provider %q registered twice", key)
	}
	reg.providers[key] = p
	return nil
}

// Validate checks that the configured default provider is registered.
func (reg *Registry) Validate() error {
	if _, ok := reg.providers[reg.defaultName]; !ok {
		return fmt.Errorf("default provider %q is not registered", reg.defaultName)
	}
	return nil
}

// DefaultName returns the configured default provider name.
func (reg *Registry) DefaultName() string {
	return reg.defaultName
}

// Resolve returns the provider for the requested name. Lookup is
// case-insensitive; unknown or empty names resolve to the default.
// Resolve never fails once Validate has passed.
func (reg *Registry) Resolve(name string) Provider {
	if p, ok := reg.providers[strings.ToLower(name)]; ok {
		return p
	}
	return reg.providers[reg.defaultName]
}

// ResolveRequest resolves the provider selected by the request.
func (reg *Registry) ResolveRequest(r *http.Request) Provider {
	return reg.Resolve(reg.SelectProviderName(r))
}

// SelectProviderName determines which provider a request addresses:
// an explicit provider query parameter wins, else a provider= token
// inside the URL-decoded state parameter (OAuth callbacks round-trip the
// selection through state), else the default. The result is lower-cased
// and the absence of any signal deterministically yields the default.
func (reg *Registry) SelectProviderName(r *http.Request) string {
	q := r.URL.Query()

	if name := q.Get("provider"); name != "" {
		return strings.ToLower(name)
	}

	state := q.Get("state")
	if state == "" {
		return reg.defaultName
	}

	if decoded, err := url.QueryUnescape(state); err == nil {
		state = decoded
	}
	if m := stateProviderRe.FindStringSubmatch(state); m != nil {
		return strings.ToLower(m[1])
	}

	return reg.defaultName
}
