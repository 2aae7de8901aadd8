package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"trackwise/api/internal/config"
	"trackwise/api/internal/ids"
	"trackwise/api/internal/models"
	"trackwise/api/internal/repository"
	"trackwise/api/internal/security"
)

var (
	ErrEmailTaken          = errors.New("email already registered")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrAccountDeactivated  = errors.New("account deactivated")
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	ErrInvalidCode         = errors.New("invalid verification code")
	ErrCodeExpired         = errors.New("verification code expired")
	ErrInvalidResetToken   = errors.New("invalid reset token")
)

const (
	verifyCodeTTL = 15 * time.Minute
	resetTokenTTL = time.Hour
)

// UserStore is the slice of the user repository the auth flows need.
type UserStore interface {
	Create(ctx context.Context, user models.User) error
	FindByEmail(ctx context.Context, email string) (models.User, error)
	GetByID(ctx context.Context, id string) (models.User, error)
	FindByResetTokenHash(ctx context.Context, hash []byte) (models.User, error)
	SetRefreshToken(ctx context.Context, id string, hash []byte) error
	RotateRefreshToken(ctx context.Context, id string, oldHash, newHash []byte) error
	ClearRefreshToken(ctx context.Context, id string) error
	TouchLastLogin(ctx context.Context, id string) error
	MarkVerified(ctx context.Context, id string) error
	SetResetToken(ctx context.Context, id string, hash []byte, expiry time.Time) error
	UpdatePassword(ctx context.Context, id string, passwordHash []byte) error
}

type AuthService struct {
	users UserStore
	cfg   *config.AppConfig
	log   zerolog.Logger
}

func NewAuthService(users UserStore, cfg *config.AppConfig, log zerolog.Logger) *AuthService {
	return &AuthService{users: users, cfg: cfg, log: log}
}

type RegisterInput struct {
	Email       string
	Password    string
	DisplayName string
}

type AuthResult struct {
	AccessToken  string
	RefreshToken string
	User         models.User
}

func (s *AuthService) Register(ctx context.Context, input RegisterInput) (AuthResult, error) {
	input.Email = strings.TrimSpace(strings.ToLower(input.Email))
	if input.Email == "" || input.Password == "" {
		return AuthResult{}, fmt.Errorf("email and password required")
	}

	if _, err := s.users.FindByEmail(ctx, input.Email); err == nil {
		return AuthResult{}, ErrEmailTaken
	} else if !errors.Is(err, repository.ErrUserNotFound) {
		return AuthResult{}, err
	}

	passwordHash, err := security.HashPassword(input.Password)
	if err != nil {
		return AuthResult{}, err
	}

	code, err := generateOTP()
	if err != nil {
		return AuthResult{}, err
	}
	codeExpiry := time.Now().Add(verifyCodeTTL)

	user := models.User{
		ID:               ids.New(),
		Email:            input.Email,
		PasswordHash:     passwordHash,
		DisplayName:      input.DisplayName,
		Role:             models.UserRoleStudent,
		IsActive:         true,
		AuthProvider:     models.AuthProviderLocal,
		VerifyCode:       &code,
		VerifyCodeExpiry: &codeExpiry,
	}

	if err := s.users.Create(ctx, user); err != nil {
		return AuthResult{}, err
	}

	// Delivery of the verification code is handled outside this service.
	s.log.Debug().Str("user_id", user.ID).Msg("verification code issued")

	return s.issueTokens(ctx, user)
}

type LoginInput struct {
	Email    string
	Password string
}

func (s *AuthService) Login(ctx context.Context, input LoginInput) (AuthResult, error) {
	input.Email = strings.TrimSpace(strings.ToLower(input.Email))
	user, err := s.users.FindByEmail(ctx, input.Email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return AuthResult{}, ErrInvalidCredentials
		}
		return AuthResult{}, err
	}

	if !user.IsActive {
		return AuthResult{}, ErrAccountDeactivated
	}

	ok, err := security.VerifyPassword(input.Password, user.PasswordHash)
	if err != nil || !ok {
		return AuthResult{}, ErrInvalidCredentials
	}

	result, err := s.issueTokens(ctx, user)
	if err != nil {
		return AuthResult{}, err
	}

	if err := s.users.TouchLastLogin(ctx, user.ID); err != nil {
		s.log.Warn().Err(err).Str("user_id", user.ID).Msg("touch last login failed")
	}

	return result, nil
}

// issueTokens signs a fresh pair and persists the refresh hash, displacing
// any previous refresh token.
func (s *AuthService) issueTokens(ctx context.Context, user models.User) (AuthResult, error) {
	pair, err := security.IssueTokenPair(
		s.cfg.Security.JWTSecret,
		user.ID,
		s.cfg.Security.JWTAccessTTL,
		s.cfg.Security.JWTRefreshTTL,
	)
	if err != nil {
		return AuthResult{}, err
	}

	if err := s.users.SetRefreshToken(ctx, user.ID, security.HashToken(pair.RefreshToken)); err != nil {
		return AuthResult{}, err
	}

	return AuthResult{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		User:         user,
	}, nil
}

// Refresh exchanges a refresh token for a new pair. The swap of the stored
// hash is a compare-and-swap, so a token that has already been rotated away
// fails here even though its signature and expiry are still good.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (AuthResult, error) {
	claims, err := security.ParseToken(refreshToken, s.cfg.Security.JWTSecret)
	if err != nil {
		if errors.Is(err, security.ErrTokenExpired) {
			return AuthResult{}, err
		}
		return AuthResult{}, ErrInvalidRefreshToken
	}
	if claims.TokenType != security.TokenTypeRefresh {
		return AuthResult{}, ErrInvalidRefreshToken
	}

	userID := claims.UserID
	if userID == "" {
		if userID, _ = security.LegacyUserID(refreshToken, s.cfg.Security.JWTSecret); userID == "" {
			return AuthResult{}, ErrInvalidRefreshToken
		}
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return AuthResult{}, ErrInvalidRefreshToken
		}
		return AuthResult{}, err
	}
	if !user.IsActive {
		return AuthResult{}, ErrAccountDeactivated
	}

	pair, err := security.IssueTokenPair(
		s.cfg.Security.JWTSecret,
		user.ID,
		s.cfg.Security.JWTAccessTTL,
		s.cfg.Security.JWTRefreshTTL,
	)
	if err != nil {
		return AuthResult{}, err
	}

	err = s.users.RotateRefreshToken(ctx, user.ID,
		security.HashToken(refreshToken),
		security.HashToken(pair.RefreshToken),
	)
	if err != nil {
		if errors.Is(err, repository.ErrRefreshTokenMismatch) {
			return AuthResult{}, ErrInvalidRefreshToken
		}
		return AuthResult{}, err
	}

	return AuthResult{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		User:         user,
	}, nil
}

// Logout drops the stored refresh hash; outstanding refresh tokens die
// immediately even though they have not expired.
func (s *AuthService) Logout(ctx context.Context, userID string) error {
	return s.users.ClearRefreshToken(ctx, userID)
}

func (s *AuthService) VerifyEmail(ctx context.Context, email string, code string) error {
	email = strings.TrimSpace(strings.ToLower(email))
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return ErrInvalidCode
		}
		return err
	}
	if user.IsVerified {
		return nil
	}
	if user.VerifyCode == nil || *user.VerifyCode != code {
		return ErrInvalidCode
	}
	if user.VerifyCodeExpiry == nil || time.Now().After(*user.VerifyCodeExpiry) {
		return ErrCodeExpired
	}
	return s.users.MarkVerified(ctx, user.ID)
}

// RequestPasswordReset generates and stores a reset token for the account.
// The raw token is returned for the delivery layer; an unknown email yields
// an empty token and no error so the endpoint cannot be used to probe
// accounts.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return "", nil
		}
		return "", err
	}

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate reset token: %w", err)
	}
	token := base64.RawURLEncoding.EncodeToString(buf)

	expiry := time.Now().Add(resetTokenTTL)
	if err := s.users.SetResetToken(ctx, user.ID, security.HashToken(token), expiry); err != nil {
		return "", err
	}

	s.log.Debug().Str("user_id", user.ID).Msg("password reset token issued")
	return token, nil
}

// ResetPassword consumes a reset token. Changing the password also revokes
// the outstanding refresh token.
func (s *AuthService) ResetPassword(ctx context.Context, token string, newPassword string) error {
	if token == "" || newPassword == "" {
		return ErrInvalidResetToken
	}

	user, err := s.users.FindByResetTokenHash(ctx, security.HashToken(token))
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return ErrInvalidResetToken
		}
		return err
	}
	if user.ResetTokenExpiry == nil || time.Now().After(*user.ResetTokenExpiry) {
		return ErrInvalidResetToken
	}

	passwordHash, err := security.HashPassword(newPassword)
	if err != nil {
		return err
	}
	return s.users.UpdatePassword(ctx, user.ID, passwordHash)
}

func generateOTP() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
