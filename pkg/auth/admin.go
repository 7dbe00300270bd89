package auth

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/trygate-dev/trygate/pkg/observability"
)

// Gate authorizes admin-only operations against the configured admin
// user identifier.
type Gate struct {
	// AdminUser is the exact identity name granted admin access.
	AdminUser string
}

// IsAdmin reports whether the identity is the configured admin. The
// comparison is exact and case-sensitive; a missing identity or an empty
// configured admin never matches.
func (g *Gate) IsAdmin(id *Identity) bool {
	return g.AdminUser != "" && id != nil && id.Name() == g.AdminUser
}

// RequireAdmin executes op only when the context identity is the admin.
// op runs at most once and never runs unauthorized; the denial is
// ErrForbidden, an intentional terminal result.
func (g *Gate) RequireAdmin(ctx context.Context, op func() error) error {
	if !g.IsAdmin(IdentityFromContext(ctx)) {
		return ErrForbidden
	}
	return op()
}

// Middleware rejects non-admin callers with 403 before the handler runs.
// Used on routes flagged AdminOnly.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := IdentityFromContext(r.Context())
		if !g.IsAdmin(id) {
			slog.Warn("admin operation denied",
				"path", r.URL.Path, "subject", id.Name())
			observability.AdminDenials.Inc()
			http.Error(w, `{"error":"forbidden"}`, http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}
