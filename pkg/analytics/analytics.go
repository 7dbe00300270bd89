// Package analytics defines the event store used for auth analytics
// continuity: anonymous-user creation and provider logins.
//
// Store adapters (memory, postgres) live in subpackages. This package
// contains only the event model, the interface, and shared errors.
package analytics

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// EventType names a recorded analytics event.
type EventType string

const (
	// EventAnonymousUserCreated records the first sighting of a browser.
	EventAnonymousUserCreated EventType = "anonymous_user_created"

	// EventUserLoggedIn records a provider login that issued a session.
	EventUserLoggedIn EventType = "user_logged_in"
)

// Event is a single recorded analytics event.
type Event struct {
	ID         string    `json:"id"`
	Type       EventType `json:"type"`
	Subject    string    `json:"subject"`
	Issuer     string    `json:"issuer"`
	Referrer   string    `json:"referrer,omitempty"`
	CampaignID string    `json:"campaign_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Store persists analytics events. Implementations must be safe for
// concurrent use; recording failures must never fail the request that
// produced the event.
type Store interface {
	RecordEvent(ctx context.Context, ev *Event) error
	ListEvents(ctx context.Context, limit int) ([]*Event, error)
	Close()
}

// Sentinel errors for store operations.
var (
	// ErrConflict is returned when an event with the given ID already exists.
	ErrConflict = errors.New("event already exists")
)

// NewEvent builds an event from the request it was observed on. Referrer
// and campaign id are taken from the request and sanitized (the legacy
// pipe-delimited analytics format reserved semicolons).
func NewEvent(t EventType, subject, issuer string, r *http.Request) *Event {
	ev := &Event{
		ID:        uuid.NewString(),
		Type:      t,
		Subject:   subject,
		Issuer:    issuer,
		CreatedAt: time.Now().UTC(),
	}
	if r != nil {
		ev.Referrer = sanitize(r.Referer())
		ev.CampaignID = sanitize(r.URL.Query().Get("cid"))
	}
	return ev
}

func sanitize(v string) string {
	return strings.ReplaceAll(v, ";", ",")
}
