package repositories

import (
	"context"
	"time"

	"moderation-api/internal/database"
	"moderation-api/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const userSelect = `
	SELECT u.id, u.username, u.email, u.password_hash,
	       u.is_email_confirmed, u.is_two_factor_enabled,
	       u.two_factor_secret, u.two_factor_pending_secret,
	       u.is_locked, u.last_login,
	       u.refresh_token_hash, u.refresh_token_expires_at,
	       u.created_at, u.updated_at,
	       COALESCE(array_agg(r.name ORDER BY r.name) FILTER (WHERE r.name IS NOT NULL), '{}')
	FROM users u
	LEFT JOIN user_roles ur ON ur.user_id = u.id
	LEFT JOIN roles r ON r.id = ur.role_id
`

type UserRepository struct {
	db querier
}

func NewUserRepository(db *database.DB) *UserRepository {
	return &UserRepository{db: db.Pool}
}

// WithTx returns a repository bound to the given transaction.
func (r *UserRepository) WithTx(tx pgx.Tx) *UserRepository {
	return &UserRepository{db: tx}
}

// rowScanner covers both pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanUserRow(scanner rowScanner) (*models.User, error) {
	var user models.User

	err := scanner.Scan(
		&user.ID, &user.Username, &user.Email, &user.PasswordHash,
		&user.IsEmailConfirmed, &user.IsTwoFactorEnabled,
		&user.TwoFactorSecret, &user.TwoFactorPendingSecret,
		&user.IsLocked, &user.LastLogin,
		&user.RefreshTokenHash, &user.RefreshTokenExpiresAt,
		&user.CreatedAt, &user.UpdatedAt,
		&user.Roles,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &user, nil
}

func (r *UserRepository) getOne(ctx context.Context, where string, args ...any) (*models.User, error) {
	query := userSelect + " WHERE " + where + " GROUP BY u.id"
	return scanUserRow(r.db.QueryRow(ctx, query, args...))
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	return r.getOne(ctx, "u.id = $1", id)
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	return r.getOne(ctx, "u.username = $1", username)
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.getOne(ctx, "u.email = $1", email)
}

// GetByIDAndEmail is used by token-driven flows where the token binds both
// the subject and the email it was sent to.
func (r *UserRepository) GetByIDAndEmail(ctx context.Context, id, email string) (*models.User, error) {
	return r.getOne(ctx, "u.id = $1 AND u.email = $2", id, email)
}

// GetByRefreshTokenHash resolves a stored refresh token that has not expired.
func (r *UserRepository) GetByRefreshTokenHash(ctx context.Context, hash string) (*models.User, error) {
	return r.getOne(ctx, "u.refresh_token_hash = $1 AND u.refresh_token_expires_at > now()", hash)
}

func (r *UserRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	user.ID = uuid.New().String()

	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now
	user.LastLogin = now

	query := `
		INSERT INTO users (id, username, email, password_hash, is_email_confirmed, last_login, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.db.Exec(ctx, query,
		user.ID, user.Username, user.Email, user.PasswordHash,
		user.IsEmailConfirmed, user.LastLogin, user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return user, nil
}

func (r *UserRepository) update(ctx context.Context, query string, args ...any) error {
	result, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// SetRefreshToken stores the hash of the active refresh token. Passing nil
// values clears it (logout or rotation failure).
func (r *UserRepository) SetRefreshToken(ctx context.Context, id string, hash *string, expiresAt *time.Time) error {
	query := `
		UPDATE users SET refresh_token_hash = $1, refresh_token_expires_at = $2, updated_at = now()
		WHERE id = $3
	`
	return r.update(ctx, query, hash, expiresAt, id)
}

func (r *UserRepository) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE users SET last_login = $1, updated_at = now() WHERE id = $2`
	return r.update(ctx, query, at, id)
}

// SetPassword replaces the password hash and invalidates the stored refresh
// token so stolen sessions do not survive a password change.
func (r *UserRepository) SetPassword(ctx context.Context, id, passwordHash string) error {
	query := `
		UPDATE users SET password_hash = $1, refresh_token_hash = NULL, refresh_token_expires_at = NULL, updated_at = now()
		WHERE id = $2
	`
	return r.update(ctx, query, passwordHash, id)
}

func (r *UserRepository) ConfirmEmail(ctx context.Context, id string) error {
	query := `UPDATE users SET is_email_confirmed = TRUE, updated_at = now() WHERE id = $1`
	return r.update(ctx, query, id)
}

// SetPendingTwoFactorSecret records a freshly generated secret that is not
// yet active. Repeated setup calls overwrite the previous pending secret.
func (r *UserRepository) SetPendingTwoFactorSecret(ctx context.Context, id, secret string) error {
	query := `UPDATE users SET two_factor_pending_secret = $1, updated_at = now() WHERE id = $2`
	return r.update(ctx, query, secret, id)
}

// ActivateTwoFactor promotes the pending secret to the active slot. Fails
// with ErrBadRequest when no enrollment is pending.
func (r *UserRepository) ActivateTwoFactor(ctx context.Context, id string) error {
	query := `
		UPDATE users
		SET two_factor_secret = two_factor_pending_secret,
		    two_factor_pending_secret = NULL,
		    is_two_factor_enabled = TRUE,
		    updated_at = now()
		WHERE id = $1 AND two_factor_pending_secret IS NOT NULL
	`
	result, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrBadRequest
	}
	return nil
}

func (r *UserRepository) DisableTwoFactor(ctx context.Context, id string) error {
	query := `
		UPDATE users
		SET two_factor_secret = NULL,
		    two_factor_pending_secret = NULL,
		    is_two_factor_enabled = FALSE,
		    updated_at = now()
		WHERE id = $1
	`
	return r.update(ctx, query, id)
}

func (r *UserRepository) SetLocked(ctx context.Context, id string, locked bool) error {
	query := `UPDATE users SET is_locked = $1, updated_at = now() WHERE id = $2`
	return r.update(ctx, query, locked, id)
}
