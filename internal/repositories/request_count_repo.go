package repositories

import (
	"context"

	"github.com/jackc/pgx/v5"

	"moderation-api/internal/database"
	"moderation-api/internal/models"
)

type RequestCountRepository struct {
	db querier
}

func NewRequestCountRepository(db *database.DB) *RequestCountRepository {
	return &RequestCountRepository{db: db.Pool}
}

// WithTx returns a repository bound to the given transaction.
func (r *RequestCountRepository) WithTx(tx pgx.Tx) *RequestCountRepository {
	return &RequestCountRepository{db: tx}
}

// Init creates the zero-valued counter row for a new user. An existing row
// is left untouched.
func (r *RequestCountRepository) Init(ctx context.Context, userID string) error {
	query := `
		INSERT INTO request_counts (user_id, count, last_request)
		VALUES ($1, 0, now())
		ON CONFLICT (user_id) DO NOTHING
	`

	if _, err := r.db.Exec(ctx, query, userID); err != nil {
		return database.MapPostgresError(err)
	}
	return nil
}

// Advance consumes one unit of the user's daily quota and returns the new
// count. The counter restarts when the last request fell on an earlier
// calendar day. When the quota is already spent for today, the guarded
// UPDATE touches no rows and ErrQuotaExceeded is returned; the whole check
// and increment is a single statement so concurrent requests cannot
// overshoot the limit.
func (r *RequestCountRepository) Advance(ctx context.Context, userID string, limit int) (int, error) {
	query := `
		INSERT INTO request_counts (user_id, count, last_request)
		VALUES ($1, 1, now())
		ON CONFLICT (user_id) DO UPDATE
		SET count = CASE
			WHEN request_counts.last_request::date < CURRENT_DATE THEN 1
			ELSE request_counts.count + 1
		END,
		last_request = now()
		WHERE request_counts.last_request::date < CURRENT_DATE
		   OR request_counts.count < $2
		RETURNING count
	`

	var count int
	err := r.db.QueryRow(ctx, query, userID, limit).Scan(&count)
	if err != nil {
		mapped := database.MapPostgresError(err)
		// No row returned means the guard rejected the increment.
		if mapped == models.ErrNotFound {
			return 0, models.ErrQuotaExceeded
		}
		return 0, mapped
	}

	return count, nil
}

// Get returns the current counter for a user, zero when none exists yet.
func (r *RequestCountRepository) Get(ctx context.Context, userID string) (*models.RequestCount, error) {
	query := `SELECT user_id, count, last_request FROM request_counts WHERE user_id = $1`

	var rc models.RequestCount
	err := r.db.QueryRow(ctx, query, userID).Scan(&rc.UserID, &rc.Count, &rc.LastRequest)
	if err != nil {
		mapped := database.MapPostgresError(err)
		if mapped == models.ErrNotFound {
			return &models.RequestCount{UserID: userID}, nil
		}
		return nil, mapped
	}

	return &rc, nil
}
