package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"trackwise/api/internal/gamesession"
	"trackwise/api/internal/models"
)

var (
	ErrUserNotFound = errors.New("user not found")
	// ErrRefreshTokenMismatch means the presented refresh token is not the
	// currently stored one: either superseded by rotation or already cleared.
	ErrRefreshTokenMismatch = errors.New("refresh token mismatch")
)

const userColumns = `
	id, email, password_hash, display_name, role, is_active, is_verified,
	auth_provider, google_id, avatar_url,
	verify_code, verify_code_expiry, reset_token_hash, reset_token_expiry,
	refresh_token_hash, last_login,
	game_active, game_started_at, game_expires_at, game_cooldown_until, games_played,
	created_at, updated_at`

type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

func scanUser(row pgx.Row) (models.User, error) {
	var user models.User
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.DisplayName,
		&user.Role,
		&user.IsActive,
		&user.IsVerified,
		&user.AuthProvider,
		&user.GoogleID,
		&user.AvatarURL,
		&user.VerifyCode,
		&user.VerifyCodeExpiry,
		&user.ResetTokenHash,
		&user.ResetTokenExpiry,
		&user.RefreshTokenHash,
		&user.LastLogin,
		&user.GameActive,
		&user.GameStartedAt,
		&user.GameExpiresAt,
		&user.GameCooldownUntil,
		&user.GamesPlayed,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, ErrUserNotFound
		}
		return models.User{}, err
	}
	return user, nil
}

func (r *UserRepository) Create(ctx context.Context, user models.User) error {
	const query = `
		INSERT INTO users (
			id, email, password_hash, display_name, role, is_active, is_verified,
			auth_provider, google_id, verify_code, verify_code_expiry,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW(), NOW()
		)
	`

	_, err := r.pool.Exec(ctx, query,
		user.ID,
		user.Email,
		user.PasswordHash,
		user.DisplayName,
		user.Role,
		user.IsActive,
		user.IsVerified,
		user.AuthProvider,
		user.GoogleID,
		user.VerifyCode,
		user.VerifyCodeExpiry,
	)
	return err
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (models.User, error) {
	const query = `SELECT` + userColumns + ` FROM users WHERE email = $1`
	return scanUser(r.pool.QueryRow(ctx, query, email))
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (models.User, error) {
	const query = `SELECT` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(r.pool.QueryRow(ctx, query, id))
}

func (r *UserRepository) FindByResetTokenHash(ctx context.Context, hash []byte) (models.User, error) {
	const query = `SELECT` + userColumns + ` FROM users WHERE reset_token_hash = $1`
	return scanUser(r.pool.QueryRow(ctx, query, hash))
}

func (r *UserRepository) List(ctx context.Context, limit, offset int) ([]models.User, error) {
	const query = `SELECT` + userColumns + ` FROM users ORDER BY created_at DESC LIMIT $1 OFFSET $2`

	rows, err := r.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func (r *UserRepository) UpdateActive(ctx context.Context, id string, active bool) error {
	const query = `UPDATE users SET is_active = $2, updated_at = NOW() WHERE id = $1`
	cmd, err := r.pool.Exec(ctx, query, id, active)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *UserRepository) UpdateDisplayName(ctx context.Context, id string, name string) error {
	const query = `UPDATE users SET display_name = $2, updated_at = NOW() WHERE id = $1`
	cmd, err := r.pool.Exec(ctx, query, id, name)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *UserRepository) SetAvatar(ctx context.Context, id string, url string) error {
	const query = `UPDATE users SET avatar_url = $2, updated_at = NOW() WHERE id = $1`
	cmd, err := r.pool.Exec(ctx, query, id, url)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *UserRepository) TouchLastLogin(ctx context.Context, id string) error {
	const query = `UPDATE users SET last_login = NOW(), updated_at = NOW() WHERE id = $1`
	_, err := r.pool.Exec(ctx, query, id)
	return err
}

// SetRefreshToken stores the hash of a freshly issued refresh token,
// replacing whatever was there. Exactly one refresh token is outstanding per
// user at any time.
func (r *UserRepository) SetRefreshToken(ctx context.Context, id string, hash []byte) error {
	const query = `UPDATE users SET refresh_token_hash = $2, updated_at = NOW() WHERE id = $1`
	cmd, err := r.pool.Exec(ctx, query, id, hash)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// RotateRefreshToken swaps the stored hash only if it still matches the
// presented one. The compare-and-swap makes rotation single-use: a superseded
// token loses the race and fails instead of silently overwriting.
func (r *UserRepository) RotateRefreshToken(ctx context.Context, id string, oldHash, newHash []byte) error {
	const query = `
		UPDATE users SET refresh_token_hash = $3, updated_at = NOW()
		WHERE id = $1 AND refresh_token_hash = $2
	`
	cmd, err := r.pool.Exec(ctx, query, id, oldHash, newHash)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrRefreshTokenMismatch
	}
	return nil
}

func (r *UserRepository) ClearRefreshToken(ctx context.Context, id string) error {
	const query = `UPDATE users SET refresh_token_hash = NULL, updated_at = NOW() WHERE id = $1`
	_, err := r.pool.Exec(ctx, query, id)
	return err
}

func (r *UserRepository) MarkVerified(ctx context.Context, id string) error {
	const query = `
		UPDATE users SET is_verified = TRUE, verify_code = NULL,
			verify_code_expiry = NULL, updated_at = NOW()
		WHERE id = $1
	`
	cmd, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *UserRepository) SetResetToken(ctx context.Context, id string, hash []byte, expiry time.Time) error {
	const query = `
		UPDATE users SET reset_token_hash = $2, reset_token_expiry = $3, updated_at = NOW()
		WHERE id = $1
	`
	_, err := r.pool.Exec(ctx, query, id, hash, expiry)
	return err
}

// UpdatePassword swaps the credential and revokes the outstanding refresh
// token and reset token in the same statement.
func (r *UserRepository) UpdatePassword(ctx context.Context, id string, passwordHash []byte) error {
	const query = `
		UPDATE users SET password_hash = $2,
			reset_token_hash = NULL, reset_token_expiry = NULL,
			refresh_token_hash = NULL, updated_at = NOW()
		WHERE id = $1
	`
	cmd, err := r.pool.Exec(ctx, query, id, passwordHash)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// PurgeExpiredTokens clears verification codes and reset tokens past their
// expiry. Run from the scheduler.
func (r *UserRepository) PurgeExpiredTokens(ctx context.Context, now time.Time) (int64, error) {
	const query = `
		UPDATE users SET
			verify_code = CASE WHEN verify_code_expiry < $1 THEN NULL ELSE verify_code END,
			verify_code_expiry = CASE WHEN verify_code_expiry < $1 THEN NULL ELSE verify_code_expiry END,
			reset_token_hash = CASE WHEN reset_token_expiry < $1 THEN NULL ELSE reset_token_hash END,
			reset_token_expiry = CASE WHEN reset_token_expiry < $1 THEN NULL ELSE reset_token_expiry END,
			updated_at = NOW()
		WHERE verify_code_expiry < $1 OR reset_token_expiry < $1
	`
	cmd, err := r.pool.Exec(ctx, query, now)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

// ReconcileStaleGameFlags corrects users whose active flag outlived its
// window but were never read since. The normal path is the lazy write-on-read
// in the tracker; this sweep only catches records nobody asked about.
func (r *UserRepository) ReconcileStaleGameFlags(ctx context.Context, now time.Time) (int64, error) {
	const query = `
		UPDATE users SET
			game_active = FALSE,
			game_cooldown_until = COALESCE(game_cooldown_until, game_expires_at + INTERVAL '60 minutes'),
			updated_at = NOW()
		WHERE game_active = TRUE AND game_expires_at <= $1
	`
	cmd, err := r.pool.Exec(ctx, query, now)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

// GameState implements gamesession.Repository.
func (r *UserRepository) GameState(ctx context.Context, userID string) (gamesession.State, error) {
	const query = `
		SELECT game_active, game_started_at, game_expires_at, game_cooldown_until
		FROM users WHERE id = $1
	`

	var state gamesession.State
	err := r.pool.QueryRow(ctx, query, userID).Scan(
		&state.Active,
		&state.StartedAt,
		&state.ExpiresAt,
		&state.CooldownUntil,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return gamesession.State{}, ErrUserNotFound
		}
		return gamesession.State{}, err
	}
	return state, nil
}

// SaveGameState implements gamesession.Repository. Transitioning into an
// active window bumps the games-played counter in the same statement so the
// row is written once.
func (r *UserRepository) SaveGameState(ctx context.Context, userID string, state gamesession.State) error {
	const query = `
		UPDATE users SET
			game_active = $2,
			game_started_at = $3,
			game_expires_at = $4,
			game_cooldown_until = $5,
			games_played = games_played + CASE WHEN $2 AND NOT game_active THEN 1 ELSE 0 END,
			updated_at = NOW()
		WHERE id = $1
	`
	cmd, err := r.pool.Exec(ctx, query, userID,
		state.Active,
		state.StartedAt,
		state.ExpiresAt,
		state.CooldownUntil,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}
