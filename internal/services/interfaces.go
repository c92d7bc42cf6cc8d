package services

import (
	"context"
	"time"

	"moderation-api/internal/models"
)

// UserRepository defines the user persistence operations the services need.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByIDAndEmail(ctx context.Context, id, email string) (*models.User, error)
	GetByRefreshTokenHash(ctx context.Context, hash string) (*models.User, error)
	SetRefreshToken(ctx context.Context, id string, hash *string, expiresAt *time.Time) error
	UpdateLastLogin(ctx context.Context, id string, at time.Time) error
	SetPassword(ctx context.Context, id, passwordHash string) error
	ConfirmEmail(ctx context.Context, id string) error
	SetPendingTwoFactorSecret(ctx context.Context, id, secret string) error
	ActivateTwoFactor(ctx context.Context, id string) error
	DisableTwoFactor(ctx context.Context, id string) error
	SetLocked(ctx context.Context, id string, locked bool) error
}

// Registrar creates a user together with its initial role.
type Registrar interface {
	CreateUserWithRole(ctx context.Context, user *models.User, roleName string) (*models.User, error)
}

// LoginAttemptRepository tracks failed login counters per username.
type LoginAttemptRepository interface {
	RecordAttempt(ctx context.Context, username string, window time.Duration) (int, error)
	Reset(ctx context.Context, username string) error
	DeleteStale(ctx context.Context, olderThan time.Duration) (int64, error)
}

// APIKeyRepository persists API keys. Only hashes are stored.
type APIKeyRepository interface {
	Create(ctx context.Context, key *models.APIKey) (*models.APIKey, error)
	CountByUser(ctx context.Context, userID string) (int, error)
	ListNamesByUser(ctx context.Context, userID string) ([]string, error)
	DeleteByUserAndName(ctx context.Context, userID, name string) error
	GetUserIDByKeyHash(ctx context.Context, keyHash string) (string, error)
}

// RequestCountRepository meters daily API usage per user.
type RequestCountRepository interface {
	Advance(ctx context.Context, userID string, limit int) (int, error)
	Get(ctx context.Context, userID string) (*models.RequestCount, error)
}
