package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Service orchestrates credential verification, session token issuance and
// the refresh token store into the user-facing auth flows. All durable state
// lives behind the repository interfaces; the service itself holds only
// configuration.
type Service struct {
	users      UserRepository
	refresh    RefreshTokenRepository
	jwt        *JWTManager
	policy     *SignupPolicy
	sessionTTL time.Duration
}

func NewService(users UserRepository, refresh RefreshTokenRepository, jwtManager *JWTManager, policy *SignupPolicy, sessionTTL time.Duration) *Service {
	if sessionTTL <= 0 {
		sessionTTL = 24 * time.Hour
	}

	return &Service{
		users:      users,
		refresh:    refresh,
		jwt:        jwtManager,
		policy:     policy,
		sessionTTL: sessionTTL,
	}
}

// SessionTTL is the lifetime of issued session tokens. The session cookie
// max-age is derived from the same value.
func (s *Service) SessionTTL() time.Duration {
	return s.sessionTTL
}

// Signup creates a new account and issues both credentials. The email
// pre-check gives a friendly duplicate error; the unique constraint on
// users.email is the real safety net under concurrency.
func (s *Service) Signup(ctx context.Context, req SignupRequest) (AuthResult, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	name := strings.TrimSpace(req.Name)
	if email == "" || name == "" || req.Password == "" {
		return AuthResult{}, ErrInvalidInput
	}

	if s.policy != nil && !s.policy.Allowed() {
		return AuthResult{}, ErrSignupDisabled
	}

	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return AuthResult{}, ErrDuplicateAccount
	} else if !errors.Is(err, ErrUserNotFound) {
		return AuthResult{}, fmt.Errorf("check existing account: %w", err)
	}

	digest, err := HashPassword(req.Password)
	if err != nil {
		return AuthResult{}, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.users.Create(ctx, email, name, digest)
	if err != nil {
		if errors.Is(err, ErrDuplicateAccount) {
			return AuthResult{}, ErrDuplicateAccount
		}
		return AuthResult{}, fmt.Errorf("create user: %w", err)
	}

	result, err := s.issueForUser(ctx, user)
	if err != nil {
		return AuthResult{}, err
	}

	if s.policy != nil {
		s.policy.RecordSignup()
	}

	return result, nil
}

// Login verifies credentials and issues both tokens. Failures never reveal
// whether the account exists: an unknown email and a wrong password both come
// back as ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, creds Credentials) (AuthResult, error) {
	email := strings.ToLower(strings.TrimSpace(creds.Username))
	if email == "" || creds.Password == "" {
		return AuthResult{}, ErrInvalidCredentials
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return AuthResult{}, ErrInvalidCredentials
		}
		return AuthResult{}, fmt.Errorf("look up account: %w", err)
	}

	ok, err := VerifyPassword(creds.Password, user.PasswordHash)
	if err != nil {
		return AuthResult{}, fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		return AuthResult{}, ErrInvalidCredentials
	}

	return s.issueForUser(ctx, user)
}

// Refresh resolves an opaque refresh token and mints a fresh session token.
// The refresh token itself is not rotated here: the store already guarantees
// at most one live token per user.
func (s *Service) Refresh(ctx context.Context, token string) (AuthResult, error) {
	if strings.TrimSpace(token) == "" {
		return AuthResult{}, ErrRefreshNotFound
	}

	rt, err := s.refresh.GetByToken(ctx, token)
	if err != nil {
		if errors.Is(err, ErrRefreshNotFound) {
			return AuthResult{}, ErrRefreshNotFound
		}
		return AuthResult{}, fmt.Errorf("look up refresh token: %w", err)
	}

	user, err := s.users.GetByID(ctx, rt.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return AuthResult{}, ErrRefreshNotFound
		}
		return AuthResult{}, fmt.Errorf("look up refresh token user: %w", err)
	}

	sessionToken, expires, err := s.IssueSessionFor(user)
	if err != nil {
		return AuthResult{}, err
	}

	return AuthResult{
		User:           user,
		SessionToken:   sessionToken,
		SessionExpires: expires,
		RefreshToken:   rt,
	}, nil
}

// Logout removes the stored refresh token, reporting whether a row was
// actually deleted. Deleting an already-absent token is not an error.
func (s *Service) Logout(ctx context.Context, refreshToken string) (bool, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return false, nil
	}
	deleted, err := s.refresh.DeleteByToken(ctx, refreshToken)
	if err != nil {
		return false, fmt.Errorf("delete refresh token: %w", err)
	}
	return deleted, nil
}

// DeleteAccount removes the user row and the user's refresh token.
func (s *Service) DeleteAccount(ctx context.Context, userID uuid.UUID) error {
	if _, err := s.refresh.DeleteByUserID(ctx, userID); err != nil {
		return fmt.Errorf("delete refresh token: %w", err)
	}
	if _, err := s.users.Delete(ctx, userID); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return nil
}

// ResolveSession validates a raw session token.
func (s *Service) ResolveSession(raw string) (SessionClaims, error) {
	return s.jwt.Validate(raw)
}

// ResolveRefresh resolves a refresh token straight to its user. Absent or
// expired tokens and vanished users all come back as ErrRefreshNotFound;
// anything else is a storage failure the caller must not treat as logout.
func (s *Service) ResolveRefresh(ctx context.Context, token string) (User, error) {
	user, err := s.refresh.GetUserByToken(ctx, token)
	if err != nil {
		if errors.Is(err, ErrRefreshNotFound) || errors.Is(err, ErrUserNotFound) {
			return User{}, ErrRefreshNotFound
		}
		return User{}, fmt.Errorf("resolve refresh token: %w", err)
	}
	return user, nil
}

// IssueSessionFor mints a signed session token for user expiring at
// now+SessionTTL.
func (s *Service) IssueSessionFor(user User) (string, time.Time, error) {
	claims := s.jwt.NewClaims(user, s.sessionTTL)
	token, err := s.jwt.Issue(claims)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("issue session token: %w", err)
	}
	return token, claims.ExpiresAt, nil
}

func (s *Service) issueForUser(ctx context.Context, user User) (AuthResult, error) {
	rt, err := s.refresh.Create(ctx, user.ID)
	if err != nil {
		return AuthResult{}, fmt.Errorf("create refresh token: %w", err)
	}

	sessionToken, expires, err := s.IssueSessionFor(user)
	if err != nil {
		return AuthResult{}, err
	}

	return AuthResult{
		User:           user,
		SessionToken:   sessionToken,
		SessionExpires: expires,
		RefreshToken:   rt,
	}, nil
}
