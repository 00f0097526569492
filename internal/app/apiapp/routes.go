package apiapp

import (
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	authsvc "github.com/abelleisle/simple-health/internal/services/auth"
	"github.com/abelleisle/simple-health/internal/transport/http/cookies"
	"github.com/abelleisle/simple-health/internal/transport/http/handlers"
)

type Dependencies struct {
	AuthService *authsvc.Service
	DB          handlers.Pinger
	CookieOpts  cookies.Options
	Logger      *zap.Logger
}

func RegisterRoutes(r chi.Router, deps Dependencies) {
	authHandler := handlers.NewAuthHandler(deps.AuthService, deps.CookieOpts, deps.Logger)
	healthHandler := handlers.NewHealthHandler(deps.DB)
	meHandler := handlers.NewMeHandler()

	identityMW := IdentityMiddleware(deps.AuthService, deps.CookieOpts, deps.Logger)

	r.Get("/healthz", healthHandler.Get)

	r.Group(func(r chi.Router) {
		r.Use(identityMW)

		r.Post("/login", authHandler.Login)
		r.Post("/signup", authHandler.Signup)
		r.Post("/signout", authHandler.Signout)

		r.With(RequireAuth).Get("/me", meHandler.Get)

		r.Route("/api/v1", func(r chi.Router) {
			r.Get("/health", healthHandler.Get)
			r.Get("/refresh_token", authHandler.RefreshToken)
		})
	})
}
