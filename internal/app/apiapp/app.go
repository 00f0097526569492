package apiapp

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/abelleisle/simple-health/internal/config"
	pgrepo "github.com/abelleisle/simple-health/internal/repo/postgres"
	authsvc "github.com/abelleisle/simple-health/internal/services/auth"
	"github.com/abelleisle/simple-health/internal/transport/http/cookies"
)

type App struct {
	cfg        config.Config
	logger     *zap.Logger
	server     *http.Server
	postgres   *pgxpool.Pool
	refresh    *pgrepo.RefreshTokenRepo
	httpRouter http.Handler
}

func New(ctx context.Context, cfg config.Config, log *zap.Logger) (*App, error) {
	if log == nil {
		return nil, fmt.Errorf("logger is nil")
	}

	r := chi.NewRouter()
	ApplyMiddlewares(r, log)

	if err := pgrepo.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	pool, err := pgrepo.NewPool(ctx, cfg.Postgres.DSN)
	if err != nil {
		return nil, fmt.Errorf("init postgres: %w", err)
	}

	userRepo := pgrepo.NewUserRepo(pool)
	refreshRepo := pgrepo.NewRefreshTokenRepo(pool, cfg.Auth.RefreshTTL)
	jwtManager := authsvc.NewJWTManager(cfg.Auth.JWTSecret)
	policy := authsvc.NewSignupPolicy(cfg.Signup.DisableAfterFirst)
	bootstrapSignupPolicy(ctx, policy, userRepo, cfg.Signup.DisableAfterFirst, log)
	authService := authsvc.NewService(userRepo, refreshRepo, jwtManager, policy, cfg.Auth.SessionTTL)

	cookieOpts := cookies.Options{Secure: !cfg.IsDev()}

	RegisterRoutes(r, Dependencies{
		AuthService: authService,
		DB:          pool,
		CookieOpts:  cookieOpts,
		Logger:      log,
	})

	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      r,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	return &App{
		cfg:        cfg,
		logger:     log,
		server:     server,
		postgres:   pool,
		refresh:    refreshRepo,
		httpRouter: r,
	}, nil
}

// bootstrapSignupPolicy pre-disables signup when the store already has users
// (single-admin mode). An unreadable count disables signup for safety.
func bootstrapSignupPolicy(ctx context.Context, policy *authsvc.SignupPolicy, users authsvc.UserRepository, enabled bool, log *zap.Logger) {
	if !enabled {
		return
	}

	count, err := users.Count(ctx)
	if err != nil {
		log.Error("unable to count users, disabling signup for safety", zap.Error(err))
		policy.Disable()
		return
	}
	if count > 0 {
		log.Debug("existing users found, signup disabled", zap.Int64("users", count))
		policy.Disable()
	}
}

func (a *App) Run() error {
	a.logger.Info("api server started", zap.String("addr", a.cfg.HTTP.Addr))
	err := a.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (a *App) Shutdown(ctx context.Context) error {
	err := a.server.Shutdown(ctx)
	if a.postgres != nil {
		a.postgres.Close()
	}
	return err
}

func (a *App) Handler() http.Handler {
	return a.httpRouter
}

// RefreshTokens exposes the refresh token repository for the cleanup job.
func (a *App) RefreshTokens() *pgrepo.RefreshTokenRepo {
	return a.refresh
}
