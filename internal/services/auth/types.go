package auth

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrDuplicateAccount   = errors.New("account already exists")
	ErrSignupDisabled     = errors.New("signup is disabled")
	ErrUserNotFound       = errors.New("user not found")
	ErrRefreshNotFound    = errors.New("refresh token not found")

	ErrTokenMalformed        = errors.New("session token malformed")
	ErrTokenExpired          = errors.New("session token expired")
	ErrTokenInvalidSignature = errors.New("session token signature invalid")
)

// User is the persistent identity record. The id never changes once created
// and the email is unique across the store.
type User struct {
	ID           uuid.UUID
	Email        string
	Name         string
	PasswordHash string
}

// SessionClaims is the signed payload of a session token. It is never
// persisted; its lifecycle is exactly the cookie's.
type SessionClaims struct {
	UserID    uuid.UUID
	UserEmail string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// RefreshToken is the long-lived opaque credential. At most one live row
// exists per user at any time.
type RefreshToken struct {
	UserID    uuid.UUID
	Token     string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the token must be treated as absent.
func (t RefreshToken) Expired(now time.Time) bool {
	return !t.ExpiresAt.After(now)
}

// TTL is the remaining lifetime; cookie max-age is derived from it.
func (t RefreshToken) TTL() time.Duration {
	return time.Until(t.ExpiresAt)
}

// UserRepository is the persistence contract for identity records.
type UserRepository interface {
	Create(ctx context.Context, email, name, passwordHash string) (User, error)
	GetByID(ctx context.Context, id uuid.UUID) (User, error)
	GetByEmail(ctx context.Context, email string) (User, error)
	Count(ctx context.Context) (int64, error)
	Delete(ctx context.Context, id uuid.UUID) (bool, error)
}

// RefreshTokenRepository is the persistence contract for refresh tokens.
// Create must be race-safe: concurrent calls for the same user return the
// same token, enforced by a uniqueness constraint on user_id at the storage
// layer rather than application locking.
type RefreshTokenRepository interface {
	Create(ctx context.Context, userID uuid.UUID) (RefreshToken, error)
	GetByToken(ctx context.Context, token string) (RefreshToken, error)
	GetUserByToken(ctx context.Context, token string) (User, error)
	DeleteByToken(ctx context.Context, token string) (bool, error)
	DeleteByUserID(ctx context.Context, userID uuid.UUID) (bool, error)
}

// Credentials is the login form payload. Username carries the email; the
// split naming survives from the web form field names.
type Credentials struct {
	Username string
	Password string
}

// SignupRequest is the signup form payload.
type SignupRequest struct {
	Name     string
	Email    string
	Password string
}

// AuthResult bundles the credentials issued by a successful signup, login or
// refresh: a signed session token plus the opaque refresh token.
type AuthResult struct {
	User           User
	SessionToken   string
	SessionExpires time.Time
	RefreshToken   RefreshToken
}
