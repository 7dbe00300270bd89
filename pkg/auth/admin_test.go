package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestIsAdmin(t *testing.T) {
	gate := &Gate{AdminUser: "admin@example.com"}

	tests := []struct {
		name string
		id   *Identity
		want bool
	}{
		{"exact match", &Identity{Email: "admin@example.com"}, true},
		{"different user", &Identity{Email: "user@example.com"}, false},
		{"case differs", &Identity{Email: "Admin@Example.com"}, false},
		{"nil identity", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := gate.IsAdmin(tt.id); got != tt.want {
				t.Errorf("IsAdmin(%+v) = %v, want %v", tt.id, got, tt.want)
			}
		})
	}
}

func TestIsAdminWithEmptyConfig(t *testing.T) {
	gate := &Gate{}
	if gate.IsAdmin(&Identity{Email: ""}) {
		t.Error("empty admin user must never match, even an empty identity name")
	}
}

func TestRequireAdmin(t *testing.T) {
	gate := &Gate{AdminUser: "admin@example.com"}

	t.Run("authorized runs op exactly once", func(t *testing.T) {
		ctx := SetIdentity(context.Background(), &Identity{Email: "admin@example.com"})
		calls := 0
		err := gate.RequireAdmin(ctx, func() error {
			calls++
			return nil
		})
		if err != nil {
			t.Errorf("RequireAdmin() error: %v", err)
		}
		if calls != 1 {
			t.Errorf("op ran %d times, want 1", calls)
		}
	})

	t.Run("unauthorized never runs op", func(t *testing.T) {
		ctx := SetIdentity(context.Background(), &Identity{Email: "user@example.com"})
		calls := 0
		err := gate.RequireAdmin(ctx, func() error {
			calls++
			return nil
		})
		if !errors.Is(err, ErrForbidden) {
			t.Errorf("RequireAdmin() error = %v, want ErrForbidden", err)
		}
		if calls != 0 {
			t.Errorf("op ran %d times, want 0", calls)
		}
	})

	t.Run("op error propagates", func(t *testing.T) {
		ctx := SetIdentity(context.Background(), &Identity{Email: "admin@example.com"})
		opErr := errors.New("op failed")
		if err := gate.RequireAdmin(ctx, func() error { return opErr }); !errors.Is(err, opErr) {
			t.Errorf("RequireAdmin() error = %v, want the op error", err)
		}
	})

	t.Run("no identity in context", func(t *testing.T) {
		if err := gate.RequireAdmin(context.Background(), func() error { return nil }); !errors.Is(err, ErrForbidden) {
			t.Errorf("RequireAdmin() error = %v, want ErrForbidden", err)
		}
	})
}

func TestAdminMiddleware(t *testing.T) {
	gate := &Gate{AdminUser: "admin@example.com"}
	handlerRan := false
	h := gate.Middleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		handlerRan = true
	}))

	r := httptest.NewRequest(http.MethodGet, "/api/resource/all", nil)
	r = r.WithContext(SetIdentity(r.Context(), &Identity{Email: "user@example.com"}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)

	if handlerRan {
		t.Error("handler ran for a non-admin caller")
	}
	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}

	r = httptest.NewRequest(http.MethodGet, "/api/resource/all", nil)
	r = r.WithContext(SetIdentity(r.Context(), &Identity{Email: "admin@example.com"}))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, r)

	if !handlerRan {
		t.Error("handler did not run for the admin")
	}
}
