package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// JWTManager signs and validates session tokens with a process-wide symmetric
// secret. The manager imposes no expiry policy of its own: it encodes the
// ExpiresAt it is given and rejects tokens whose expiry has passed.
type JWTManager struct {
	secret []byte
	now    func() time.Time
}

type sessionTokenClaims struct {
	UserID    string `json:"user_id"`
	UserEmail string `json:"user_email"`
	jwt.RegisteredClaims
}

func NewJWTManager(secret string) *JWTManager {
	return &JWTManager{
		secret: []byte(secret),
		now:    time.Now,
	}
}

// NewClaims builds a fresh claim set for user expiring at now+ttl.
func (m *JWTManager) NewClaims(user User, ttl time.Duration) SessionClaims {
	now := m.now().UTC().Truncate(time.Second)
	return SessionClaims{
		UserID:    user.ID,
		UserEmail: user.Email,
		IssuedAt:  now,
		ExpiresAt: now.Add(ttl),
	}
}

// Issue serializes and signs claims with HS256.
func (m *JWTManager) Issue(claims SessionClaims) (string, error) {
	if len(m.secret) == 0 {
		return "", fmt.Errorf("jwt secret is empty")
	}
	if claims.UserID == uuid.Nil || strings.TrimSpace(claims.UserEmail) == "" {
		return "", ErrInvalidInput
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, sessionTokenClaims{
		UserID:    claims.UserID.String(),
		UserEmail: claims.UserEmail,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(claims.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(claims.ExpiresAt),
		},
	})

	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}

	return signed, nil
}

// Validate verifies the signature and expiry of raw. Failures are
// distinguishable because callers react differently: malformed and forged
// tokens force a cookie wipe, an expired one falls back to the refresh flow.
func (m *JWTManager) Validate(raw string) (SessionClaims, error) {
	if strings.TrimSpace(raw) == "" {
		return SessionClaims{}, ErrTokenMalformed
	}

	claims := &sessionTokenClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(_ *jwt.Token) (interface{}, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return SessionClaims{}, ErrTokenInvalidSignature
		case errors.Is(err, jwt.ErrTokenExpired):
			return SessionClaims{}, ErrTokenExpired
		default:
			return SessionClaims{}, ErrTokenMalformed
		}
	}
	if token == nil || !token.Valid {
		return SessionClaims{}, ErrTokenInvalidSignature
	}

	userID, parseErr := uuid.Parse(claims.UserID)
	if parseErr != nil || userID == uuid.Nil {
		return SessionClaims{}, ErrTokenMalformed
	}
	if claims.IssuedAt == nil || claims.ExpiresAt == nil {
		return SessionClaims{}, ErrTokenMalformed
	}

	return SessionClaims{
		UserID:    userID,
		UserEmail: claims.UserEmail,
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}
