package repositories

import (
	"context"
	"fmt"
	"time"

	"moderation-api/internal/database"
	"moderation-api/internal/models"

	"github.com/google/uuid"
)

type APIKeyRepository struct {
	db querier
}

func NewAPIKeyRepository(db *database.DB) *APIKeyRepository {
	return &APIKeyRepository{db: db.Pool}
}

func (r *APIKeyRepository) Create(ctx context.Context, key *models.APIKey) (*models.APIKey, error) {
	key.ID = uuid.New().String()
	key.CreatedAt = time.Now()

	query := `
		INSERT INTO api_keys (id, name, key_hash, user_id, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.db.Exec(ctx, query, key.ID, key.Name, key.KeyHash, key.UserID, key.CreatedAt)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return key, nil
}

func (r *APIKeyRepository) CountByUser(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM api_keys WHERE user_id = $1`, userID).Scan(&count)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return count, nil
}

// ListNamesByUser returns key names only. Hashes never leave the repository
// except for authentication lookups.
func (r *APIKeyRepository) ListNamesByUser(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.db.Query(ctx,
		`SELECT name FROM api_keys WHERE user_id = $1 ORDER BY created_at`, userID)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	defer rows.Close()

	names := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, database.MapPostgresError(err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating api keys: %w", err)
	}

	return names, nil
}

// DeleteByUserAndName revokes a key. Scoping by user prevents deleting
// another user's key through a guessed name.
func (r *APIKeyRepository) DeleteByUserAndName(ctx context.Context, userID, name string) error {
	result, err := r.db.Exec(ctx,
		`DELETE FROM api_keys WHERE user_id = $1 AND name = $2`, userID, name)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// GetUserIDByKeyHash resolves a key hash to its owner.
func (r *APIKeyRepository) GetUserIDByKeyHash(ctx context.Context, keyHash string) (string, error) {
	var userID string
	err := r.db.QueryRow(ctx,
		`SELECT user_id FROM api_keys WHERE key_hash = $1`, keyHash).Scan(&userID)
	if err != nil {
		return "", database.MapPostgresError(err)
	}
	return userID, nil
}
