package handlers

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	authsvc "github.com/abelleisle/simple-health/internal/services/auth"
	"github.com/abelleisle/simple-health/internal/transport/http/cookies"
	httperrors "github.com/abelleisle/simple-health/internal/transport/http/errors"
)

// AuthHandler serves the browser-facing auth flows: signup, login, explicit
// session refresh and signout. All responses are redirects; failure reasons
// travel in the login/signup page query string and never reveal whether an
// account exists.
type AuthHandler struct {
	service *authsvc.Service
	cookies cookies.Options
	log     *zap.Logger
}

func NewAuthHandler(service *authsvc.Service, cookieOpts cookies.Options, log *zap.Logger) *AuthHandler {
	if log == nil {
		log = zap.NewNop()
	}

	return &AuthHandler{
		service: service,
		cookies: cookieOpts,
		log:     log,
	}
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		redirectWithError(w, r, "/login", "invalid request")
		return
	}

	creds := authsvc.Credentials{
		Username: r.PostFormValue("username"),
		Password: r.PostFormValue("password"),
	}

	res, err := h.service.Login(r.Context(), creds)
	if err != nil {
		if errors.Is(err, authsvc.ErrInvalidCredentials) {
			redirectWithError(w, r, "/login", "invalid credentials")
			return
		}
		h.log.Error("login failed", zap.Error(err))
		writeInternal(w)
		return
	}

	h.setAuthCookies(w, res)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		redirectWithError(w, r, "/signup", "invalid request")
		return
	}

	req := authsvc.SignupRequest{
		Name:     r.PostFormValue("name"),
		Email:    r.PostFormValue("email"),
		Password: r.PostFormValue("password"),
	}

	res, err := h.service.Signup(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, authsvc.ErrDuplicateAccount):
			redirectWithError(w, r, "/signup", "account already exists")
		case errors.Is(err, authsvc.ErrSignupDisabled):
			redirectWithError(w, r, "/login", "signup is disabled")
		case errors.Is(err, authsvc.ErrInvalidInput):
			redirectWithError(w, r, "/signup", "all fields are required")
		default:
			h.log.Error("signup failed", zap.Error(err))
			writeInternal(w)
		}
		return
	}

	h.setAuthCookies(w, res)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// RefreshToken force-rotates the session token outside the middleware's lazy
// path. Unlike the middleware, a dead refresh token here clears both cookies.
func (h *AuthHandler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(cookies.RefreshCookie)
	if err != nil || cookie.Value == "" {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	res, err := h.service.Refresh(r.Context(), cookie.Value)
	if err != nil {
		if errors.Is(err, authsvc.ErrRefreshNotFound) {
			h.clearAuthCookies(w)
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		h.log.Error("refresh failed", zap.Error(err))
		writeInternal(w)
		return
	}

	http.SetCookie(w, cookies.Session(res.SessionToken, h.service.SessionTTL(), h.cookies))
	http.Redirect(w, r, nextPath(r), http.StatusSeeOther)
}

func (h *AuthHandler) Signout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(cookies.RefreshCookie); err == nil && cookie.Value != "" {
		// Best effort: a storage hiccup must not keep the user logged in
		// client-side, so the cookies are cleared regardless.
		if _, err := h.service.Logout(r.Context(), cookie.Value); err != nil {
			h.log.Error("delete refresh token on signout", zap.Error(err))
		}
	}

	h.clearAuthCookies(w)
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

func (h *AuthHandler) setAuthCookies(w http.ResponseWriter, res authsvc.AuthResult) {
	http.SetCookie(w, cookies.Session(res.SessionToken, h.service.SessionTTL(), h.cookies))
	http.SetCookie(w, cookies.Refresh(res.RefreshToken.Token, res.RefreshToken.TTL(), h.cookies))
}

func (h *AuthHandler) clearAuthCookies(w http.ResponseWriter) {
	http.SetCookie(w, cookies.Cleared(cookies.SessionCookie, h.cookies))
	http.SetCookie(w, cookies.Cleared(cookies.RefreshCookie, h.cookies))
}

// nextPath returns a safe local redirect target from the next query
// parameter. Anything that is not a plain absolute path falls back to /.
func nextPath(r *http.Request) string {
	next := r.URL.Query().Get("next")
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") {
		return "/"
	}
	return next
}

func redirectWithError(w http.ResponseWriter, r *http.Request, page, message string) {
	http.Redirect(w, r, page+"?error="+url.QueryEscape(message), http.StatusSeeOther)
}

func writeInternal(w http.ResponseWriter) {
	httperrors.Write(w, http.StatusInternalServerError, httperrors.APIError{
		Code:    "INTERNAL_ERROR",
		Message: "internal server error",
	})
}
