package api

import "time"

// Template describes one of the trial templates offered to visitors.
type Template struct {
	Name        string `json:"name"`
	Language    string `json:"language,omitempty"`
	AppService  string `json:"appService"`
	SpriteName  string `json:"spriteName,omitempty"`
	Description string `json:"description,omitempty"`
}

// ResourceStatus is the lifecycle state of a trial resource.
type ResourceStatus string

const (
	ResourceStatusPending ResourceStatus = "pending"
	ResourceStatusActive  ResourceStatus = "active"
	ResourceStatusExpired ResourceStatus = "expired"
)

// Resource is a short-lived trial resource owned by one identity.
type Resource struct {
	ID        string         `json:"id"`
	Owner     string         `json:"owner"`
	Template  string         `json:"template"`
	Status    ResourceStatus `json:"status"`
	URL       string         `json:"url,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
	ExpiresAt time.Time      `json:"expiresAt"`
}

// Remaining returns how long the resource has left before it expires.
// Zero or negative means expired.
func (r *Resource) Remaining(now time.Time) time.Duration {
	return r.ExpiresAt.Sub(now)
}

// CreateResourceRequest is the payload for creating a trial resource.
type CreateResourceRequest struct {
	Template string `json:"template"`
}

// TelemetryEvent is a client-reported telemetry datum. The event name
// comes from the URL path; the properties arrive as the JSON body.
type TelemetryEvent struct {
	Name       string            `json:"name"`
	Properties map[string]string `json:"properties,omitempty"`
}

// UserInfo is the identity payload returned to authenticated callers.
type UserInfo struct {
	Name   string `json:"name"`
	Issuer string `json:"issuer"`
	Admin  bool   `json:"admin,omitempty"`
}
