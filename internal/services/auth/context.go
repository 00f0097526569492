package auth

import (
	"context"

	"github.com/google/uuid"
)

type identityContextKey string

const identityKey identityContextKey = "auth_identity"

// Identity is the per-request resolved identity. It is derived by the
// identity middleware, read-only for downstream handlers and discarded at the
// end of the request. IsAdmin is always false: no admin-assignment path
// exists yet.
type Identity struct {
	UserID  uuid.UUID
	Email   string
	IsAdmin bool
}

// Anonymous is the zero identity attached to unauthenticated requests.
func Anonymous() Identity {
	return Identity{}
}

// LoggedIn reports whether the identity resolved to an authenticated user.
func (i Identity) LoggedIn() bool {
	return i.UserID != uuid.Nil
}

func WithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

func IdentityFromContext(ctx context.Context) (Identity, bool) {
	identity, ok := ctx.Value(identityKey).(Identity)
	return identity, ok
}
