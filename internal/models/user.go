package models

import "time"

type UserRole string

const (
	UserRoleStudent UserRole = "student"
	UserRoleAdmin   UserRole = "admin"
)

type AuthProvider string

const (
	AuthProviderLocal  AuthProvider = "local"
	AuthProviderGoogle AuthProvider = "google"
)

// User is the credential-store record. A user holds at most one outstanding
// refresh token (stored hashed); issuing a new one overwrites the old.
type User struct {
	ID           string
	Email        string
	PasswordHash []byte
	DisplayName  string
	Role         UserRole
	IsActive     bool
	IsVerified   bool
	AuthProvider AuthProvider
	GoogleID     *string
	AvatarURL    *string

	VerifyCode       *string
	VerifyCodeExpiry *time.Time
	ResetTokenHash   []byte
	ResetTokenExpiry *time.Time

	RefreshTokenHash []byte
	LastLogin        *time.Time

	// Game session fields. GameActive is a cached flag; wall-clock truth is
	// derived from the timestamps and the flag is corrected lazily on read.
	GameActive        bool
	GameStartedAt     *time.Time
	GameExpiresAt     *time.Time
	GameCooldownUntil *time.Time
	GamesPlayed       int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Principal is the normalized authenticated-user context attached to a
// request after the bearer token and user record check out.
type Principal struct {
	ID         string         `json:"id"`
	UserID     string         `json:"userId"`
	Name       string         `json:"name"`
	Email      string         `json:"email"`
	Role       UserRole       `json:"role"`
	IsActive   bool           `json:"isActive"`
	IsVerified bool           `json:"isVerified"`
	LastLogin  *time.Time     `json:"lastLogin"`
	Stats      PrincipalStats `json:"stats"`
}

type PrincipalStats struct {
	GamesPlayed int `json:"gamesPlayed"`
}

// NewPrincipal projects a user record into its request-context shape.
func NewPrincipal(u User) Principal {
	return Principal{
		ID:         u.ID,
		UserID:     u.ID,
		Name:       u.DisplayName,
		Email:      u.Email,
		Role:       u.Role,
		IsActive:   u.IsActive,
		IsVerified: u.IsVerified,
		LastLogin:  u.LastLogin,
		Stats:      PrincipalStats{GamesPlayed: u.GamesPlayed},
	}
}
