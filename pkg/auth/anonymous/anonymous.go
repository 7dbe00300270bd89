// Package anonymous assigns a stable per-browser pseudo-identity to
// unauthenticated browser traffic, used for analytics continuity.
package anonymous

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/trygate-dev/trygate/pkg/analytics"
	"github.com/trygate-dev/trygate/pkg/auth"
	"github.com/trygate-dev/trygate/pkg/observability"
	"github.com/trygate-dev/trygate/pkg/secret"
)

const (
	// CookieName is the anonymous identity cookie name.
	CookieName = "anonymoususer"

	// Purpose is the crypto purpose tag for anonymous payloads.
	Purpose = "anonymous"

	// CookieTTL is the fixed expiry window. The cookie is refreshed,
	// not rotated, on each visit within the window.
	CookieTTL = 30 * time.Minute
)

// Tracker assigns and persists anonymous identities across requests.
type Tracker struct {
	secrets *secret.Codec
	events  analytics.Store
	now     func() time.Time
	newID   func() string
}

// Ensure Tracker implements the gateway's anonymous contract.
var _ auth.AnonymousTracker = (*Tracker)(nil)

// NewTracker creates a tracker. events may be nil, in which case created
// events are only logged.
func NewTracker(secrets *secret.Codec, events analytics.Store) *Tracker {
	return &Tracker{
		secrets: secrets,
		events:  events,
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

// WithClock substitutes the time source. For tests.
func (t *Tracker) WithClock(now func() time.Time) *Tracker {
	t.now = now
	return t
}

// WithIDSource substitutes the identifier generator. For tests.
func (t *Tracker) WithIDSource(newID func() string) *Tracker {
	t.newID = newID
	return t
}

// Ensure reconstructs the browser's anonymous identity from its cookie,
// or mints a new one. The second return value reports a true first
// sighting: the one-shot memo in the request context keeps pipeline
// re-entry from rotating the identifier or double-counting the created
// event. Ensure never fails; any error degrades to (nil, false).
func (t *Tracker) Ensure(w http.ResponseWriter, r *http.Request) (*auth.Identity, bool) {
	cookie, err := r.Cookie(CookieName)
	if err == nil {
		// Existing cookie: reconstruct, do not reissue.
		id, err := t.decode(cookie.Value)
		if err != nil {
			slog.Warn("anonymous cookie rejected", "error", err)
			return nil, false
		}
		return id, false
	}

	memo := auth.MemoFromContext(r.Context())

	userID := memo.ID()
	created := userID == ""
	if created {
		userID = t.newID()
		memo.Record(userID)
	}

	sealed, err := t.secrets.Encrypt(userID, Purpose)
	if err != nil {
		slog.Warn("sealing anonymous cookie failed", "error", err)
		return nil, false
	}

	http.SetCookie(w, &http.Cookie{
		Name:    CookieName,
		Value:   url.QueryEscape(sealed),
		Path:    "/",
		Expires: t.now().UTC().Add(CookieTTL),
	})

	identity := &auth.Identity{Email: userID, Issuer: auth.IssuerAnonymous}

	if created {
		t.recordCreated(r.Context(), identity, r)
	}

	return identity, created
}

// decode opens an anonymous cookie value into an identity. The provider
// user id is intentionally left unset.
func (t *Tracker) decode(rawValue string) (*auth.Identity, error) {
	unescaped, err := url.QueryUnescape(rawValue)
	if err != nil {
		return nil, err
	}

	userID, err := t.secrets.Decrypt(unescaped, Purpose)
	if err != nil {
		return nil, err
	}

	return &auth.Identity{Email: userID, Issuer: auth.IssuerAnonymous}, nil
}

// recordCreated emits the one-time created event. Recording failures are
// logged and swallowed; analytics must never fail the request.
func (t *Tracker) recordCreated(ctx context.Context, id *auth.Identity, r *http.Request) {
	observability.AnonymousUsersCreated.Inc()

	ev := analytics.NewEvent(analytics.EventAnonymousUserCreated, id.Name(), id.Issuer, r)
	slog.Info("anonymous user created",
		"subject", ev.Subject, "referrer", ev.Referrer, "cid", ev.CampaignID)

	if t.events != nil {
		if err := t.events.RecordEvent(ctx, ev); err != nil {
			slog.Warn("recording analytics event failed", "error", err)
		}
	}
}
