package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	authsvc "github.com/abelleisle/simple-health/internal/services/auth"
)

// RefreshTokenRepo stores long-lived opaque refresh tokens in the
// refresh_keys table. The UNIQUE constraint on user_id is what keeps the
// at-most-one-live-token-per-user invariant under concurrent logins; the
// repository never takes application-level locks.
type RefreshTokenRepo struct {
	pool *pgxpool.Pool
	ttl  time.Duration
	now  func() time.Time
}

func NewRefreshTokenRepo(pool *pgxpool.Pool, ttl time.Duration) *RefreshTokenRepo {
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}

	return &RefreshTokenRepo{
		pool: pool,
		ttl:  ttl,
		now:  time.Now,
	}
}

// Create returns the user's live refresh token, generating and persisting a
// new one only when none exists. Two concurrent calls for the same user
// cannot both insert: the conditional upsert only replaces an expired row,
// and a loser that inserted nothing re-fetches the winner's token.
func (r *RefreshTokenRepo) Create(ctx context.Context, userID uuid.UUID) (authsvc.RefreshToken, error) {
	if r.pool == nil {
		return authsvc.RefreshToken{}, fmt.Errorf("postgres pool is nil")
	}
	if userID == uuid.Nil {
		return authsvc.RefreshToken{}, authsvc.ErrInvalidInput
	}

	if rt, err := r.liveByUser(ctx, userID); err == nil {
		return rt, nil
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return authsvc.RefreshToken{}, fmt.Errorf("find live refresh token: %w", err)
	}

	token, err := authsvc.NewRefreshTokenString()
	if err != nil {
		return authsvc.RefreshToken{}, fmt.Errorf("generate refresh token: %w", err)
	}

	now := r.now().UTC()
	var rt authsvc.RefreshToken
	err = r.pool.QueryRow(ctx, `
INSERT INTO refresh_keys (user_id, token, created_at, expires_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (user_id) DO UPDATE
SET token = EXCLUDED.token, created_at = EXCLUDED.created_at, expires_at = EXCLUDED.expires_at
WHERE refresh_keys.expires_at <= now()
RETURNING user_id, token, created_at, expires_at
`, userID, token, now, now.Add(r.ttl)).Scan(&rt.UserID, &rt.Token, &rt.CreatedAt, &rt.ExpiresAt)
	if err == nil {
		return rt, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return authsvc.RefreshToken{}, fmt.Errorf("insert refresh token: %w", err)
	}

	// Lost the race: a concurrent create landed a live row between our
	// select and upsert. Return the winner's token.
	rt, err = r.liveByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return authsvc.RefreshToken{}, authsvc.ErrRefreshNotFound
		}
		return authsvc.RefreshToken{}, fmt.Errorf("re-fetch refresh token after conflict: %w", err)
	}

	return rt, nil
}

func (r *RefreshTokenRepo) GetByToken(ctx context.Context, token string) (authsvc.RefreshToken, error) {
	if r.pool == nil {
		return authsvc.RefreshToken{}, fmt.Errorf("postgres pool is nil")
	}

	var rt authsvc.RefreshToken
	err := r.pool.QueryRow(ctx, `
SELECT user_id, token, created_at, expires_at
FROM refresh_keys
WHERE token = $1 AND expires_at > $2
`, token, r.now().UTC()).Scan(&rt.UserID, &rt.Token, &rt.CreatedAt, &rt.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return authsvc.RefreshToken{}, authsvc.ErrRefreshNotFound
		}
		return authsvc.RefreshToken{}, fmt.Errorf("find refresh token: %w", err)
	}

	return rt, nil
}

// GetUserByToken resolves an unexpired token straight to its user row.
func (r *RefreshTokenRepo) GetUserByToken(ctx context.Context, token string) (authsvc.User, error) {
	if r.pool == nil {
		return authsvc.User{}, fmt.Errorf("postgres pool is nil")
	}

	var user authsvc.User
	err := r.pool.QueryRow(ctx, `
SELECT u.id, u.email, u.name, u.password_hash
FROM refresh_keys rk
JOIN users u ON u.id = rk.user_id
WHERE rk.token = $1 AND rk.expires_at > $2
`, token, r.now().UTC()).Scan(&user.ID, &user.Email, &user.Name, &user.PasswordHash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return authsvc.User{}, authsvc.ErrRefreshNotFound
		}
		return authsvc.User{}, fmt.Errorf("find user by refresh token: %w", err)
	}

	return user, nil
}

func (r *RefreshTokenRepo) DeleteByToken(ctx context.Context, token string) (bool, error) {
	if r.pool == nil {
		return false, fmt.Errorf("postgres pool is nil")
	}

	tag, err := r.pool.Exec(ctx, `DELETE FROM refresh_keys WHERE token = $1`, token)
	if err != nil {
		return false, fmt.Errorf("delete refresh token: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

func (r *RefreshTokenRepo) DeleteByUserID(ctx context.Context, userID uuid.UUID) (bool, error) {
	if r.pool == nil {
		return false, fmt.Errorf("postgres pool is nil")
	}

	tag, err := r.pool.Exec(ctx, `DELETE FROM refresh_keys WHERE user_id = $1`, userID)
	if err != nil {
		return false, fmt.Errorf("delete refresh tokens for user: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

// DeleteExpired purges rows whose expiry has passed. Expired rows are already
// treated as absent by every lookup; this just keeps the table from growing.
func (r *RefreshTokenRepo) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	if r.pool == nil {
		return 0, fmt.Errorf("postgres pool is nil")
	}

	tag, err := r.pool.Exec(ctx, `DELETE FROM refresh_keys WHERE expires_at <= $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete expired refresh tokens: %w", err)
	}

	return tag.RowsAffected(), nil
}

func (r *RefreshTokenRepo) liveByUser(ctx context.Context, userID uuid.UUID) (authsvc.RefreshToken, error) {
	var rt authsvc.RefreshToken
	err := r.pool.QueryRow(ctx, `
SELECT user_id, token, created_at, expires_at
FROM refresh_keys
WHERE user_id = $1 AND expires_at > $2
`, userID, r.now().UTC()).Scan(&rt.UserID, &rt.Token, &rt.CreatedAt, &rt.ExpiresAt)
	if err != nil {
		return authsvc.RefreshToken{}, err
	}
	return rt, nil
}
