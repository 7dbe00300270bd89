// Package observability provides Prometheus metrics and HTTP middleware
// for monitoring the trygate gateway.
package observability

import "github.com/prometheus/client_golang/prometheus"

var (
	// RequestsTotal counts all HTTP requests by method and status class.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trygate_requests_total",
			Help: "Total requests",
		},
		[]string{"method", "status"},
	)

	// RequestDuration records HTTP request duration in seconds by method.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "trygate_request_duration_seconds",
			Help:    "Request duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// AuthOutcomes counts authentication passes by terminal outcome and
	// the origin of the decision (an issuer or provider name).
	AuthOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trygate_auth_outcomes_total",
			Help: "Authentication outcomes",
		},
		[]string{"outcome", "origin"},
	)

	// AnonymousUsersCreated counts first sightings of new browsers.
	AnonymousUsersCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "trygate_anonymous_users_created_total",
			Help: "New anonymous identities minted",
		},
	)

	// AdminDenials counts admin-only operations rejected by the gate.
	AdminDenials = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "trygate_admin_denials_total",
			Help: "Admin operations denied",
		},
	)

	// SessionsIssued counts session cookies issued after provider logins.
	SessionsIssued = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trygate_sessions_issued_total",
			Help: "Session cookies issued",
		},
		[]string{"provider"},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		AuthOutcomes,
		AnonymousUsersCreated,
		AdminDenials,
		SessionsIssued,
	)
}
