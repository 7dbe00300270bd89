package auth

import "context"

// identityKey is a private type for the identity context key.
type identityKey struct{}

// SetIdentity stores the installed identity in the context. Installation
// is atomic: the identity is fully formed before it is set, and it is
// never mutated afterwards.
func SetIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext retrieves the installed identity.
// Returns nil when the request is unauthenticated.
func IdentityFromContext(ctx context.Context) *Identity {
	if v, ok := ctx.Value(identityKey{}).(*Identity); ok {
		return v
	}
	return nil
}

// anonymousMemoKey is a private type for the anonymous memo context key.
type anonymousMemoKey struct{}

// AnonymousMemo is a one-shot memo attached to the request context. The
// hosting pipeline can re-enter authentication for the same logical
// request; the memo remembers the identifier minted on the first pass so
// re-entry neither rotates the id nor emits a duplicate created event.
type AnonymousMemo struct {
	id string
}

// WithAnonymousMemo attaches an empty memo to the context. The gateway
// does this once at the top of each request.
func WithAnonymousMemo(ctx context.Context) context.Context {
	return context.WithValue(ctx, anonymousMemoKey{}, &AnonymousMemo{})
}

// MemoFromContext retrieves the request's memo, or nil if none was
// attached.
func MemoFromContext(ctx context.Context) *AnonymousMemo {
	if v, ok := ctx.Value(anonymousMemoKey{}).(*AnonymousMemo); ok {
		return v
	}
	return nil
}

// ID returns the identifier recorded on a previous pass, or empty.
func (m *AnonymousMemo) ID() string {
	if m == nil {
		return ""
	}
	return m.id
}

// Record stores the identifier minted for this request.
func (m *AnonymousMemo) Record(id string) {
	if m != nil {
		m.id = id
	}
}
