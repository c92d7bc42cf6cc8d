package repositories

import (
	"context"
	"fmt"

	"moderation-api/internal/database"
	"moderation-api/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type RoleRepository struct {
	db querier
}

func NewRoleRepository(db *database.DB) *RoleRepository {
	return &RoleRepository{db: db.Pool}
}

func (r *RoleRepository) WithTx(tx pgx.Tx) *RoleRepository {
	return &RoleRepository{db: tx}
}

// EnsureDefaultRoles seeds the role table. ON CONFLICT makes this safe to
// run on every startup and from concurrent instances.
func (r *RoleRepository) EnsureDefaultRoles(ctx context.Context) error {
	query := `
		INSERT INTO roles (id, name, description)
		VALUES ($1, $2, $3), ($4, $5, $6)
		ON CONFLICT (name) DO NOTHING
	`

	_, err := r.db.Exec(ctx, query,
		uuid.New().String(), models.RoleAdmin, "Full administrative access",
		uuid.New().String(), models.RoleUser, "Standard user access",
	)
	if err != nil {
		return fmt.Errorf("failed to seed roles: %w", database.MapPostgresError(err))
	}

	return nil
}

// AssignRole links a user to a role by name. Assigning an already held role
// is a no-op.
func (r *RoleRepository) AssignRole(ctx context.Context, userID, roleName string) error {
	query := `
		INSERT INTO user_roles (user_id, role_id)
		SELECT $1, id FROM roles WHERE name = $2
		ON CONFLICT (user_id, role_id) DO NOTHING
	`

	result, err := r.db.Exec(ctx, query, userID, roleName)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		// Either the role name does not exist or the link was already there.
		// Verify the role exists so a typo fails loudly.
		var exists bool
		if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM roles WHERE name = $1)`, roleName).Scan(&exists); err != nil {
			return database.MapPostgresError(err)
		}
		if !exists {
			return fmt.Errorf("%w: role %q", models.ErrNotFound, roleName)
		}
	}

	return nil
}

func (r *RoleRepository) GetUserRoles(ctx context.Context, userID string) ([]string, error) {
	query := `
		SELECT r.name
		FROM roles r
		JOIN user_roles ur ON ur.role_id = r.id
		WHERE ur.user_id = $1
		ORDER BY r.name
	`

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	defer rows.Close()

	roles := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, database.MapPostgresError(err)
		}
		roles = append(roles, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating roles: %w", err)
	}

	return roles, nil
}
