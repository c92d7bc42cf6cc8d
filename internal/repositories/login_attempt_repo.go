package repositories

import (
	"context"
	"time"

	"moderation-api/internal/database"
)

type LoginAttemptRepository struct {
	db querier
}

func NewLoginAttemptRepository(db *database.DB) *LoginAttemptRepository {
	return &LoginAttemptRepository{db: db.Pool}
}

// RecordAttempt bumps the attempt counter for a username and returns the new
// count. The counter restarts at 1 when the previous attempt is older than
// the window. A single UPSERT keeps concurrent logins from losing updates.
func (r *LoginAttemptRepository) RecordAttempt(ctx context.Context, username string, window time.Duration) (int, error) {
	query := `
		INSERT INTO login_attempts (username, attempt_count, last_attempt)
		VALUES ($1, 1, now())
		ON CONFLICT (username) DO UPDATE
		SET attempt_count = CASE
			WHEN login_attempts.last_attempt < now() - $2::interval THEN 1
			ELSE login_attempts.attempt_count + 1
		END,
		last_attempt = now()
		RETURNING attempt_count
	`

	var count int
	err := r.db.QueryRow(ctx, query, username, window).Scan(&count)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}

	return count, nil
}

// Reset clears the counter after a successful login. Missing rows are fine.
func (r *LoginAttemptRepository) Reset(ctx context.Context, username string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM login_attempts WHERE username = $1`, username)
	return database.MapPostgresError(err)
}

// DeleteStale removes counters whose window has long expired. Called by the
// background cleanup loop.
func (r *LoginAttemptRepository) DeleteStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	result, err := r.db.Exec(ctx,
		`DELETE FROM login_attempts WHERE last_attempt < now() - $1::interval`, olderThan)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return result.RowsAffected(), nil
}
