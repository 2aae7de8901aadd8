package service

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"trackwise/api/internal/config"
	"trackwise/api/internal/models"
	"trackwise/api/internal/repository"
	"trackwise/api/internal/security"
)

// stubStore keeps users in a map and mirrors the repository's
// compare-and-swap refresh rotation.
type stubStore struct {
	users map[string]*models.User
}

func newStubStore() *stubStore {
	return &stubStore{users: make(map[string]*models.User)}
}

func (s *stubStore) Create(ctx context.Context, user models.User) error {
	s.users[user.ID] = &user
	return nil
}

func (s *stubStore) FindByEmail(ctx context.Context, email string) (models.User, error) {
	for _, u := range s.users {
		if u.Email == email {
			return *u, nil
		}
	}
	return models.User{}, repository.ErrUserNotFound
}

func (s *stubStore) GetByID(ctx context.Context, id string) (models.User, error) {
	if u, ok := s.users[id]; ok {
		return *u, nil
	}
	return models.User{}, repository.ErrUserNotFound
}

func (s *stubStore) FindByResetTokenHash(ctx context.Context, hash []byte) (models.User, error) {
	for _, u := range s.users {
		if bytes.Equal(u.ResetTokenHash, hash) {
			return *u, nil
		}
	}
	return models.User{}, repository.ErrUserNotFound
}

func (s *stubStore) SetRefreshToken(ctx context.Context, id string, hash []byte) error {
	u, ok := s.users[id]
	if !ok {
		return repository.ErrUserNotFound
	}
	u.RefreshTokenHash = hash
	return nil
}

func (s *stubStore) RotateRefreshToken(ctx context.Context, id string, oldHash, newHash []byte) error {
	u, ok := s.users[id]
	if !ok || !bytes.Equal(u.RefreshTokenHash, oldHash) {
		return repository.ErrRefreshTokenMismatch
	}
	u.RefreshTokenHash = newHash
	return nil
}

func (s *stubStore) ClearRefreshToken(ctx context.Context, id string) error {
	if u, ok := s.users[id]; ok {
		u.RefreshTokenHash = nil
	}
	return nil
}

func (s *stubStore) TouchLastLogin(ctx context.Context, id string) error {
	if u, ok := s.users[id]; ok {
		now := time.Now()
		u.LastLogin = &now
	}
	return nil
}

func (s *stubStore) MarkVerified(ctx context.Context, id string) error {
	u, ok := s.users[id]
	if !ok {
		return repository.ErrUserNotFound
	}
	u.IsVerified = true
	u.VerifyCode = nil
	u.VerifyCodeExpiry = nil
	return nil
}

func (s *stubStore) SetResetToken(ctx context.Context, id string, hash []byte, expiry time.Time) error {
	u, ok := s.users[id]
	if !ok {
		return repository.ErrUserNotFound
	}
	u.ResetTokenHash = hash
	u.ResetTokenExpiry = &expiry
	return nil
}

func (s *stubStore) UpdatePassword(ctx context.Context, id string, passwordHash []byte) error {
	u, ok := s.users[id]
	if !ok {
		return repository.ErrUserNotFound
	}
	u.PasswordHash = passwordHash
	u.ResetTokenHash = nil
	u.ResetTokenExpiry = nil
	u.RefreshTokenHash = nil
	return nil
}

func newTestService(store UserStore) *AuthService {
	cfg := &config.AppConfig{
		Security: config.SecurityConfig{
			JWTSecret:     "test-secret",
			JWTAccessTTL:  15 * time.Minute,
			JWTRefreshTTL: 7 * 24 * time.Hour,
		},
	}
	return NewAuthService(store, cfg, zerolog.Nop())
}

func TestRegisterAndLogin(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newStubStore()
	svc := newTestService(store)

	result, err := svc.Register(ctx, RegisterInput{
		Email:       "A@B.com",
		Password:    "secret1",
		DisplayName: "Ada",
	})
	require.NoError(t, err)
	require.Equal(t, "a@b.com", result.User.Email)
	require.Equal(t, models.UserRoleStudent, result.User.Role)
	require.NotEmpty(t, result.AccessToken)
	require.NotEmpty(t, result.RefreshToken)

	claims, err := security.ParseToken(result.AccessToken, "test-secret")
	require.NoError(t, err)
	require.Equal(t, result.User.ID, claims.UserID)
	require.Equal(t, security.TokenTypeAccess, claims.TokenType)

	// Same email again, any casing, is taken.
	_, err = svc.Register(ctx, RegisterInput{Email: "a@b.COM", Password: "x", DisplayName: "Eve"})
	require.ErrorIs(t, err, ErrEmailTaken)

	login, err := svc.Login(ctx, LoginInput{Email: "a@b.com", Password: "secret1"})
	require.NoError(t, err)
	require.Equal(t, result.User.ID, login.User.ID)

	_, err = svc.Login(ctx, LoginInput{Email: "a@b.com", Password: "wrong"})
	require.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Login(ctx, LoginInput{Email: "nobody@b.com", Password: "secret1"})
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLoginDeactivatedAccount(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newStubStore()
	svc := newTestService(store)

	result, err := svc.Register(ctx, RegisterInput{Email: "a@b.com", Password: "secret1", DisplayName: "Ada"})
	require.NoError(t, err)

	store.users[result.User.ID].IsActive = false

	_, err = svc.Login(ctx, LoginInput{Email: "a@b.com", Password: "secret1"})
	require.ErrorIs(t, err, ErrAccountDeactivated)
}

func TestRefreshRotationIsSingleUse(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newStubStore()
	svc := newTestService(store)

	result, err := svc.Register(ctx, RegisterInput{Email: "a@b.com", Password: "secret1", DisplayName: "Ada"})
	require.NoError(t, err)

	rotated, err := svc.Refresh(ctx, result.RefreshToken)
	require.NoError(t, err)
	require.NotEqual(t, result.RefreshToken, rotated.RefreshToken)

	// The superseded token is cryptographically valid but no longer stored.
	_, err = svc.Refresh(ctx, result.RefreshToken)
	require.ErrorIs(t, err, ErrInvalidRefreshToken)

	// The fresh one still works.
	_, err = svc.Refresh(ctx, rotated.RefreshToken)
	require.NoError(t, err)
}

func TestRefreshRejectsAccessToken(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newStubStore()
	svc := newTestService(store)

	result, err := svc.Register(ctx, RegisterInput{Email: "a@b.com", Password: "secret1", DisplayName: "Ada"})
	require.NoError(t, err)

	_, err = svc.Refresh(ctx, result.AccessToken)
	require.ErrorIs(t, err, ErrInvalidRefreshToken)
}

func TestLogoutInvalidatesRefresh(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newStubStore()
	svc := newTestService(store)

	result, err := svc.Register(ctx, RegisterInput{Email: "a@b.com", Password: "secret1", DisplayName: "Ada"})
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, result.User.ID))

	_, err = svc.Refresh(ctx, result.RefreshToken)
	require.ErrorIs(t, err, ErrInvalidRefreshToken)
}

func TestVerifyEmail(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newStubStore()
	svc := newTestService(store)

	result, err := svc.Register(ctx, RegisterInput{Email: "a@b.com", Password: "secret1", DisplayName: "Ada"})
	require.NoError(t, err)

	code := *store.users[result.User.ID].VerifyCode

	require.ErrorIs(t, svc.VerifyEmail(ctx, "a@b.com", "000000x"), ErrInvalidCode)
	require.NoError(t, svc.VerifyEmail(ctx, "a@b.com", code))
	require.True(t, store.users[result.User.ID].IsVerified)

	// Verifying an already-verified account is a no-op.
	require.NoError(t, svc.VerifyEmail(ctx, "a@b.com", "anything"))
}

func TestVerifyEmailExpiredCode(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newStubStore()
	svc := newTestService(store)

	result, err := svc.Register(ctx, RegisterInput{Email: "a@b.com", Password: "secret1", DisplayName: "Ada"})
	require.NoError(t, err)

	u := store.users[result.User.ID]
	past := time.Now().Add(-time.Minute)
	u.VerifyCodeExpiry = &past

	require.ErrorIs(t, svc.VerifyEmail(ctx, "a@b.com", *u.VerifyCode), ErrCodeExpired)
}

func TestPasswordResetFlow(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newStubStore()
	svc := newTestService(store)

	result, err := svc.Register(ctx, RegisterInput{Email: "a@b.com", Password: "secret1", DisplayName: "Ada"})
	require.NoError(t, err)

	// Unknown email: no error, no token.
	token, err := svc.RequestPasswordReset(ctx, "nobody@b.com")
	require.NoError(t, err)
	require.Empty(t, token)

	token, err = svc.RequestPasswordReset(ctx, "a@b.com")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	require.ErrorIs(t, svc.ResetPassword(ctx, "bogus", "newpass1"), ErrInvalidResetToken)
	require.NoError(t, svc.ResetPassword(ctx, token, "newpass1"))

	// Old password dead, new one works, refresh token revoked.
	_, err = svc.Login(ctx, LoginInput{Email: "a@b.com", Password: "secret1"})
	require.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.Login(ctx, LoginInput{Email: "a@b.com", Password: "newpass1"})
	require.NoError(t, err)
	_, err = svc.Refresh(ctx, result.RefreshToken)
	require.ErrorIs(t, err, ErrInvalidRefreshToken)

	// Reset tokens are single-use.
	require.ErrorIs(t, svc.ResetPassword(ctx, token, "another1"), ErrInvalidResetToken)
}
