package apiapp

import (
	"errors"
	"net/http"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	authsvc "github.com/abelleisle/simple-health/internal/services/auth"
	"github.com/abelleisle/simple-health/internal/transport/http/cookies"
	httperrors "github.com/abelleisle/simple-health/internal/transport/http/errors"
)

func ApplyMiddlewares(r chiRouter, log *zap.Logger) {
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(60 * time.Second))
	r.Use(requestLogger(log))
}

// IdentityMiddleware resolves the session and refresh cookies into an
// Identity once per request and attaches it to the context. It never denies
// access itself; RequireAuth layers that on top.
//
// Cookie mutations decided during resolution (wiping compromised cookies,
// reissuing an expired session from a live refresh token) are applied to the
// response up front, so they're attached no matter what status the downstream
// handler produces.
func IdentityMiddleware(service *authsvc.Service, cookieOpts cookies.Options, log *zap.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, mutations, err := resolveIdentity(r, service, cookieOpts, log)
			if err != nil {
				// A storage outage must not masquerade as a logout.
				log.Error("identity resolution failed", zap.Error(err))
				httperrors.Write(w, http.StatusInternalServerError, httperrors.APIError{
					Code:    "STORAGE_UNAVAILABLE",
					Message: "temporary server error",
				})
				return
			}

			for _, c := range mutations {
				http.SetCookie(w, c)
			}

			ctx := authsvc.WithIdentity(r.Context(), identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// resolveIdentity walks the per-request state machine over the two cookies
// and returns the resolved identity plus the cookie mutations to emit.
func resolveIdentity(r *http.Request, service *authsvc.Service, cookieOpts cookies.Options, log *zap.Logger) (authsvc.Identity, []*http.Cookie, error) {
	if raw := cookieValue(r, cookies.SessionCookie); raw != "" {
		claims, err := service.ResolveSession(raw)
		switch {
		case err == nil:
			return authsvc.Identity{UserID: claims.UserID, Email: claims.UserEmail}, nil, nil
		case errors.Is(err, authsvc.ErrTokenExpired):
			// Fall through to the refresh token; don't clear anything yet.
		default:
			// Malformed or forged: treat as compromised and wipe both.
			return authsvc.Anonymous(), []*http.Cookie{
				cookies.Cleared(cookies.SessionCookie, cookieOpts),
				cookies.Cleared(cookies.RefreshCookie, cookieOpts),
			}, nil
		}
	}

	raw := cookieValue(r, cookies.RefreshCookie)
	if raw == "" {
		return authsvc.Anonymous(), nil, nil
	}

	user, err := service.ResolveRefresh(r.Context(), raw)
	if err != nil {
		if errors.Is(err, authsvc.ErrRefreshNotFound) {
			// Leave the cookies; the explicit refresh endpoint is the one
			// that clears a dead refresh token.
			return authsvc.Anonymous(), nil, nil
		}
		return authsvc.Identity{}, nil, err
	}

	identity := authsvc.Identity{UserID: user.ID, Email: user.Email}

	token, _, err := service.IssueSessionFor(user)
	if err != nil {
		// A reissue failure on an otherwise valid refresh token must not
		// downgrade the user to logged-out for this request.
		log.Error("session reissue failed, continuing on refresh identity", zap.Error(err))
		return identity, nil, nil
	}

	return identity, []*http.Cookie{cookies.Session(token, service.SessionTTL(), cookieOpts)}, nil
}

// RequireAuth short-circuits anonymous requests with a redirect to the login
// page. It only inspects the identity resolved by IdentityMiddleware.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := authsvc.IdentityFromContext(r.Context())
		if !ok || !identity.LoggedIn() {
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func cookieValue(r *http.Request, name string) string {
	cookie, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return cookie.Value
}

func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			if log != nil {
				log.Info("http_request",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Duration("duration", time.Since(start)),
				)
			}
		})
	}
}

type chiRouter interface {
	Use(middlewares ...func(http.Handler) http.Handler)
}
