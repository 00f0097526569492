package auth_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	authsvc "github.com/abelleisle/simple-health/internal/services/auth"
)

// memUserRepo and memRefreshRepo are in-memory stand-ins for the postgres
// repositories. The refresh repo's mutex plays the role of the user_id
// uniqueness constraint: create is atomic get-or-insert.

type memUserRepo struct {
	mu       sync.Mutex
	users    map[uuid.UUID]authsvc.User
	failWith error
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{users: make(map[uuid.UUID]authsvc.User)}
}

func (r *memUserRepo) Create(_ context.Context, email, name, passwordHash string) (authsvc.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return authsvc.User{}, r.failWith
	}
	for _, u := range r.users {
		if u.Email == email {
			return authsvc.User{}, authsvc.ErrDuplicateAccount
		}
	}
	user := authsvc.User{ID: uuid.New(), Email: email, Name: name, PasswordHash: passwordHash}
	r.users[user.ID] = user
	return user, nil
}

func (r *memUserRepo) GetByID(_ context.Context, id uuid.UUID) (authsvc.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return authsvc.User{}, r.failWith
	}
	user, ok := r.users[id]
	if !ok {
		return authsvc.User{}, authsvc.ErrUserNotFound
	}
	return user, nil
}

func (r *memUserRepo) GetByEmail(_ context.Context, email string) (authsvc.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return authsvc.User{}, r.failWith
	}
	for _, u := range r.users {
		if u.Email == email {
			return u, nil
		}
	}
	return authsvc.User{}, authsvc.ErrUserNotFound
}

func (r *memUserRepo) Count(_ context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return 0, r.failWith
	}
	return int64(len(r.users)), nil
}

func (r *memUserRepo) Delete(_ context.Context, id uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return false, r.failWith
	}
	if _, ok := r.users[id]; !ok {
		return false, nil
	}
	delete(r.users, id)
	return true, nil
}

type memRefreshRepo struct {
	mu       sync.Mutex
	rows     map[uuid.UUID]authsvc.RefreshToken
	users    *memUserRepo
	ttl      time.Duration
	now      func() time.Time
	failWith error
}

func newMemRefreshRepo(users *memUserRepo) *memRefreshRepo {
	return &memRefreshRepo{
		rows:  make(map[uuid.UUID]authsvc.RefreshToken),
		users: users,
		ttl:   30 * 24 * time.Hour,
		now:   time.Now,
	}
}

func (r *memRefreshRepo) Create(_ context.Context, userID uuid.UUID) (authsvc.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return authsvc.RefreshToken{}, r.failWith
	}
	if rt, ok := r.rows[userID]; ok && !rt.Expired(r.now()) {
		return rt, nil
	}
	token, err := authsvc.NewRefreshTokenString()
	if err != nil {
		return authsvc.RefreshToken{}, err
	}
	rt := authsvc.RefreshToken{
		UserID:    userID,
		Token:     token,
		CreatedAt: r.now(),
		ExpiresAt: r.now().Add(r.ttl),
	}
	r.rows[userID] = rt
	return rt, nil
}

func (r *memRefreshRepo) GetByToken(_ context.Context, token string) (authsvc.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return authsvc.RefreshToken{}, r.failWith
	}
	for _, rt := range r.rows {
		if rt.Token == token && !rt.Expired(r.now()) {
			return rt, nil
		}
	}
	return authsvc.RefreshToken{}, authsvc.ErrRefreshNotFound
}

func (r *memRefreshRepo) GetUserByToken(ctx context.Context, token string) (authsvc.User, error) {
	rt, err := r.GetByToken(ctx, token)
	if err != nil {
		return authsvc.User{}, err
	}
	user, err := r.users.GetByID(ctx, rt.UserID)
	if err != nil {
		if errors.Is(err, authsvc.ErrUserNotFound) {
			return authsvc.User{}, authsvc.ErrRefreshNotFound
		}
		return authsvc.User{}, err
	}
	return user, nil
}

func (r *memRefreshRepo) DeleteByToken(_ context.Context, token string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return false, r.failWith
	}
	for userID, rt := range r.rows {
		if rt.Token == token {
			delete(r.rows, userID)
			return true, nil
		}
	}
	return false, nil
}

func (r *memRefreshRepo) DeleteByUserID(_ context.Context, userID uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return false, r.failWith
	}
	if _, ok := r.rows[userID]; !ok {
		return false, nil
	}
	delete(r.rows, userID)
	return true, nil
}

func newServiceForTest(t *testing.T, policy *authsvc.SignupPolicy) (*authsvc.Service, *memUserRepo, *memRefreshRepo) {
	t.Helper()

	users := newMemUserRepo()
	refresh := newMemRefreshRepo(users)
	jwtManager := authsvc.NewJWTManager("test-secret")
	svc := authsvc.NewService(users, refresh, jwtManager, policy, 24*time.Hour)

	return svc, users, refresh
}

func TestSignupIssuesBothTokens(t *testing.T) {
	svc, users, _ := newServiceForTest(t, nil)
	ctx := context.Background()

	res, err := svc.Signup(ctx, authsvc.SignupRequest{
		Name:     "Alice",
		Email:    "Alice@Example.com",
		Password: "correct horse battery staple",
	})
	if err != nil {
		t.Fatalf("signup: %v", err)
	}

	if res.SessionToken == "" || res.RefreshToken.Token == "" {
		t.Fatalf("signup did not issue both tokens")
	}
	if res.User.Email != "alice@example.com" {
		t.Fatalf("email not normalized: %q", res.User.Email)
	}

	claims, err := svc.ResolveSession(res.SessionToken)
	if err != nil {
		t.Fatalf("resolve issued session token: %v", err)
	}
	if claims.UserID != res.User.ID {
		t.Fatalf("session claims user mismatch")
	}

	count, _ := users.Count(ctx)
	if count != 1 {
		t.Fatalf("expected 1 user, got %d", count)
	}
}

func TestSignupDuplicateEmailCreatesNoRow(t *testing.T) {
	svc, users, _ := newServiceForTest(t, nil)
	ctx := context.Background()

	req := authsvc.SignupRequest{Name: "Alice", Email: "alice@example.com", Password: "first password!"}
	if _, err := svc.Signup(ctx, req); err != nil {
		t.Fatalf("first signup: %v", err)
	}

	req.Name = "Imposter"
	if _, err := svc.Signup(ctx, req); !errors.Is(err, authsvc.ErrDuplicateAccount) {
		t.Fatalf("expected ErrDuplicateAccount, got %v", err)
	}

	count, _ := users.Count(ctx)
	if count != 1 {
		t.Fatalf("duplicate signup created a row: %d users", count)
	}
}

func TestSignupDisabledAfterFirstInBootstrapMode(t *testing.T) {
	svc, _, _ := newServiceForTest(t, authsvc.NewSignupPolicy(true))
	ctx := context.Background()

	if _, err := svc.Signup(ctx, authsvc.SignupRequest{
		Name: "Admin", Email: "admin@example.com", Password: "bootstrap password",
	}); err != nil {
		t.Fatalf("first signup: %v", err)
	}

	_, err := svc.Signup(ctx, authsvc.SignupRequest{
		Name: "Second", Email: "second@example.com", Password: "another password",
	})
	if !errors.Is(err, authsvc.ErrSignupDisabled) {
		t.Fatalf("expected ErrSignupDisabled, got %v", err)
	}
}

func TestLoginFailureIsGeneric(t *testing.T) {
	svc, _, _ := newServiceForTest(t, nil)
	ctx := context.Background()

	if _, err := svc.Signup(ctx, authsvc.SignupRequest{
		Name: "Alice", Email: "alice@example.com", Password: "the real password",
	}); err != nil {
		t.Fatalf("signup: %v", err)
	}

	// Wrong password and unknown account must be indistinguishable.
	_, wrongPass := svc.Login(ctx, authsvc.Credentials{Username: "alice@example.com", Password: "nope"})
	_, unknown := svc.Login(ctx, authsvc.Credentials{Username: "ghost@example.com", Password: "nope"})

	if !errors.Is(wrongPass, authsvc.ErrInvalidCredentials) {
		t.Fatalf("wrong password: expected ErrInvalidCredentials, got %v", wrongPass)
	}
	if !errors.Is(unknown, authsvc.ErrInvalidCredentials) {
		t.Fatalf("unknown account: expected ErrInvalidCredentials, got %v", unknown)
	}
}

func TestLoginReusesLiveRefreshToken(t *testing.T) {
	svc, _, _ := newServiceForTest(t, nil)
	ctx := context.Background()

	signupRes, err := svc.Signup(ctx, authsvc.SignupRequest{
		Name: "Alice", Email: "alice@example.com", Password: "the real password",
	})
	if err != nil {
		t.Fatalf("signup: %v", err)
	}

	loginRes, err := svc.Login(ctx, authsvc.Credentials{
		Username: "alice@example.com", Password: "the real password",
	})
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	if loginRes.RefreshToken.Token != signupRes.RefreshToken.Token {
		t.Fatalf("login minted a second refresh token for the same user")
	}
}

func TestConcurrentCreateReturnsOneToken(t *testing.T) {
	_, users, refresh := newServiceForTest(t, nil)
	ctx := context.Background()

	user, err := users.Create(ctx, "alice@example.com", "Alice", "digest")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	const n = 16
	tokens := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rt, err := refresh.Create(ctx, user.ID)
			if err != nil {
				t.Errorf("concurrent create: %v", err)
				return
			}
			tokens[i] = rt.Token
		}(i)
	}
	wg.Wait()

	for i := 1; i < n; i++ {
		if tokens[i] != tokens[0] {
			t.Fatalf("concurrent creates produced divergent tokens: %q vs %q", tokens[0], tokens[i])
		}
	}
	if len(refresh.rows) != 1 {
		t.Fatalf("expected exactly one stored row, got %d", len(refresh.rows))
	}
}

func TestRefreshMintsNewSessionToken(t *testing.T) {
	svc, _, _ := newServiceForTest(t, nil)
	ctx := context.Background()

	signupRes, err := svc.Signup(ctx, authsvc.SignupRequest{
		Name: "Alice", Email: "alice@example.com", Password: "the real password",
	})
	if err != nil {
		t.Fatalf("signup: %v", err)
	}

	res, err := svc.Refresh(ctx, signupRes.RefreshToken.Token)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}

	claims, err := svc.ResolveSession(res.SessionToken)
	if err != nil {
		t.Fatalf("resolve refreshed session token: %v", err)
	}
	if claims.UserID != signupRes.User.ID {
		t.Fatalf("refreshed session resolves to wrong user")
	}

	if _, err := svc.Refresh(ctx, "no-such-token"); !errors.Is(err, authsvc.ErrRefreshNotFound) {
		t.Fatalf("expected ErrRefreshNotFound, got %v", err)
	}
}

func TestLogoutDeletesRefreshToken(t *testing.T) {
	svc, _, refresh := newServiceForTest(t, nil)
	ctx := context.Background()

	res, err := svc.Signup(ctx, authsvc.SignupRequest{
		Name: "Alice", Email: "alice@example.com", Password: "the real password",
	})
	if err != nil {
		t.Fatalf("signup: %v", err)
	}

	deleted, err := svc.Logout(ctx, res.RefreshToken.Token)
	if err != nil {
		t.Fatalf("logout: %v", err)
	}
	if !deleted {
		t.Fatalf("logout did not delete the stored token")
	}

	if _, err := refresh.GetByToken(ctx, res.RefreshToken.Token); !errors.Is(err, authsvc.ErrRefreshNotFound) {
		t.Fatalf("token still resolvable after logout: %v", err)
	}

	// Idempotent: deleting the same token again is not an error.
	deleted, err = svc.Logout(ctx, res.RefreshToken.Token)
	if err != nil || deleted {
		t.Fatalf("second logout: deleted=%v err=%v", deleted, err)
	}
}

func TestExpiredRefreshTokenIsAbsent(t *testing.T) {
	svc, users, refresh := newServiceForTest(t, nil)
	ctx := context.Background()

	user, _ := users.Create(ctx, "alice@example.com", "Alice", "digest")
	rt, err := refresh.Create(ctx, user.ID)
	if err != nil {
		t.Fatalf("create refresh token: %v", err)
	}

	refresh.now = func() time.Time { return time.Now().Add(31 * 24 * time.Hour) }

	if _, err := svc.Refresh(ctx, rt.Token); !errors.Is(err, authsvc.ErrRefreshNotFound) {
		t.Fatalf("expired token must read as absent, got %v", err)
	}

	// And a new create replaces it rather than returning the corpse.
	fresh, err := refresh.Create(ctx, user.ID)
	if err != nil {
		t.Fatalf("create after expiry: %v", err)
	}
	if fresh.Token == rt.Token {
		t.Fatalf("expired token was reused")
	}
}

func TestStorageErrorsPropagate(t *testing.T) {
	svc, users, refresh := newServiceForTest(t, nil)
	ctx := context.Background()

	boom := errors.New("connection refused")
	users.failWith = boom

	if _, err := svc.Login(ctx, authsvc.Credentials{Username: "a@b.c", Password: "x"}); !errors.Is(err, boom) {
		t.Fatalf("login must surface storage errors, got %v", err)
	}

	users.failWith = nil
	refresh.failWith = boom
	if _, err := svc.ResolveRefresh(ctx, "token"); !errors.Is(err, boom) {
		t.Fatalf("resolve refresh must surface storage errors, got %v", err)
	}
}

func TestDeleteAccountRemovesUserAndToken(t *testing.T) {
	svc, users, refresh := newServiceForTest(t, nil)
	ctx := context.Background()

	res, err := svc.Signup(ctx, authsvc.SignupRequest{
		Name: "Alice", Email: "alice@example.com", Password: "the real password",
	})
	if err != nil {
		t.Fatalf("signup: %v", err)
	}

	if err := svc.DeleteAccount(ctx, res.User.ID); err != nil {
		t.Fatalf("delete account: %v", err)
	}

	if _, err := users.GetByID(ctx, res.User.ID); !errors.Is(err, authsvc.ErrUserNotFound) {
		t.Fatalf("user still present after delete")
	}
	if _, err := refresh.GetByToken(ctx, res.RefreshToken.Token); !errors.Is(err, authsvc.ErrRefreshNotFound) {
		t.Fatalf("refresh token still present after delete")
	}
}
