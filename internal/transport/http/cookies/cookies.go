// Package cookies centralizes issuance and clearing of the two auth cookies.
// Both are HttpOnly, scoped to /, and Secure outside local development. The
// session cookie's max-age always matches the session claim TTL so the
// browser and the token agree on when the session ends.
package cookies

import (
	"net/http"
	"time"
)

const (
	SessionCookie = "session"
	RefreshCookie = "refresh"
)

// Options defines how auth cookies are issued.
type Options struct {
	Secure bool
}

// Session builds the signed session token cookie.
func Session(token string, ttl time.Duration, opts Options) *http.Cookie {
	return build(SessionCookie, token, ttl, opts)
}

// Refresh builds the opaque refresh token cookie.
func Refresh(token string, ttl time.Duration, opts Options) *http.Cookie {
	return build(RefreshCookie, token, ttl, opts)
}

// Cleared builds an expired cookie that removes name from the client.
func Cleared(name string, opts Options) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   opts.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}

func build(name, value string, ttl time.Duration, opts Options) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   opts.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}
