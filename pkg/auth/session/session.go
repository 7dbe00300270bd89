// Package session parses and serializes the encrypted session cookie,
// the cookie-carried proof of a prior successful login.
//
// Two wire schemas exist after decryption, both semicolon-delimited:
//
//	legacy:  subject;timestamp                (issuer implicitly "Old")
//	current: email;puid;issuer;timestamp
//
// Any other field count is invalid. Timestamps are RFC 3339 with
// nanoseconds in UTC so they round-trip exactly. Serialization always
// emits the current schema; legacy is read-only back-compat.
package session

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/trygate-dev/trygate/pkg/auth"
	"github.com/trygate-dev/trygate/pkg/secret"
)

const (
	// CookieName is the session cookie name.
	CookieName = "loginsession"

	// Purpose is the crypto purpose tag for session payloads.
	Purpose = "session"

	// timeFormat round-trips exactly through parse and serialize.
	timeFormat = time.RFC3339Nano
)

// Codec validates and mints session cookie values.
type Codec struct {
	secrets *secret.Codec
	ttl     time.Duration
	now     func() time.Time
}

// Ensure Codec implements the gateway's session contract.
var _ auth.SessionAuthenticator = (*Codec)(nil)

// NewCodec creates a session codec with the given crypto codec and TTL.
func NewCodec(secrets *secret.Codec, ttl time.Duration) *Codec {
	return &Codec{secrets: secrets, ttl: ttl, now: time.Now}
}

// WithClock substitutes the time source. For tests.
func (c *Codec) WithClock(now func() time.Time) *Codec {
	c.now = now
	return c
}

// Authenticate reads the session cookie from the request and parses it.
// A missing cookie returns http.ErrNoCookie (wrapped); every other
// failure maps to one of the auth/secret sentinel errors. It never
// panics, whatever the cookie contains.
func (c *Codec) Authenticate(r *http.Request) (*auth.Identity, error) {
	cookie, err := r.Cookie(CookieName)
	if err != nil {
		return nil, fmt.Errorf("reading session cookie: %w", err)
	}
	return c.Parse(cookie.Value)
}

// Parse validates a raw cookie value and reconstructs the identity.
// The value is URL-unescaped, decrypted, split, and checked for expiry,
// in that order.
func (c *Codec) Parse(rawValue string) (*auth.Identity, error) {
	unescaped, err := url.QueryUnescape(rawValue)
	if err != nil {
		return nil, fmt.Errorf("%w: bad escaping: %w", auth.ErrMalformedToken, err)
	}

	payload, err := c.secrets.Decrypt(unescaped, Purpose)
	if err != nil {
		return nil, err
	}

	fields := strings.Split(payload, ";")
	switch len(fields) {
	case 2:
		// Legacy schema: subject;timestamp.
		if err := c.checkTimestamp(fields[1]); err != nil {
			return nil, err
		}
		return &auth.Identity{
			Email:          fields[0],
			ProviderUserID: fields[0],
			Issuer:         auth.IssuerLegacy,
		}, nil

	case 4:
		// Current schema: email;puid;issuer;timestamp.
		if err := c.checkTimestamp(fields[3]); err != nil {
			return nil, err
		}
		return &auth.Identity{
			Email:          fields[0],
			ProviderUserID: fields[1],
			Issuer:         fields[2],
		}, nil

	default:
		return nil, fmt.Errorf("%w: %d fields", auth.ErrMalformedToken, len(fields))
	}
}

// checkTimestamp parses the timestamp field and enforces the validity
// invariant: timestamp + TTL > now (strict).
func (c *Codec) checkTimestamp(field string) error {
	issued, err := time.Parse(timeFormat, field)
	if err != nil {
		return fmt.Errorf("%w: bad timestamp: %w", auth.ErrMalformedToken, err)
	}
	if !issued.Add(c.ttl).After(c.now().UTC()) {
		return auth.ErrExpiredToken
	}
	return nil
}

// Serialize mints a raw cookie value for the identity using the current
// 4-field schema, stamped with the current time.
func (c *Codec) Serialize(id *auth.Identity) (string, error) {
	payload := strings.Join([]string{
		id.Email,
		id.ProviderUserID,
		id.Issuer,
		c.now().UTC().Format(timeFormat),
	}, ";")

	sealed, err := c.secrets.Encrypt(payload, Purpose)
	if err != nil {
		return "", fmt.Errorf("sealing session token: %w", err)
	}

	// Escape after encryption. The reverse order corrupts padding.
	return url.QueryEscape(sealed), nil
}

// IssueCookie serializes the identity and sets the session cookie.
func (c *Codec) IssueCookie(w http.ResponseWriter, id *auth.Identity) error {
	value, err := c.Serialize(id)
	if err != nil {
		return err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
	})
	return nil
}

// ClearCookie expires the session cookie on the client.
func ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:    CookieName,
		Value:   "",
		Path:    "/",
		Expires: time.Unix(0, 0).UTC(),
	})
}
