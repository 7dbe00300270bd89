package auth

import (
	"net/http"
	"strings"
)

// Classifier sorts requests into browser traffic and recognized API
// surfaces. Both predicates are pure functions over headers and never
// have side effects.
type Classifier struct {
	// PortalPathPrefix is the path prefix of the non-browser API surface
	// that authenticates with bearer credentials.
	PortalPathPrefix string
}

// DefaultClassifier matches the functions portal surface under /api/.
var DefaultClassifier = Classifier{PortalPathPrefix: "/api/"}

// IsBrowserRequest reports whether the request comes from an interactive
// browser: it either negotiates HTML or carries a Mozilla-family
// user-agent.
func (c Classifier) IsBrowserRequest(r *http.Request) bool {
	if strings.Contains(r.Header.Get("Accept"), "text/html") {
		return true
	}
	return strings.HasPrefix(r.Header.Get("User-Agent"), "Mozilla")
}

// IsFunctionsPortalRequest reports whether the request belongs to the
// non-browser API surface that may authenticate with a bearer credential.
func (c Classifier) IsFunctionsPortalRequest(r *http.Request) bool {
	prefix := c.PortalPathPrefix
	if prefix == "" {
		prefix = DefaultClassifier.PortalPathPrefix
	}
	if !strings.HasPrefix(r.URL.Path, prefix) {
		return false
	}
	return !c.IsBrowserRequest(r)
}
