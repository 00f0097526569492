package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

const refreshTokenBytes = 32

// NewOpaqueToken returns byteLen bytes from a cryptographically secure
// generator, hex encoded.
func NewOpaqueToken(byteLen int) (string, error) {
	if byteLen <= 0 {
		return "", fmt.Errorf("invalid token size")
	}

	b := make([]byte, byteLen)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}

	return hex.EncodeToString(b), nil
}

// NewRefreshTokenString returns an unguessable opaque refresh token with 256
// bits of entropy.
func NewRefreshTokenString() (string, error) {
	return NewOpaqueToken(refreshTokenBytes)
}
