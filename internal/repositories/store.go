package repositories

import (
	"context"

	"moderation-api/internal/database"
	"moderation-api/internal/models"

	"github.com/jackc/pgx/v5"
)

// Store bundles the repositories with the operations that span more than
// one of them inside a single transaction.
type Store struct {
	db            *database.DB
	Users         *UserRepository
	Roles         *RoleRepository
	LoginAttempts *LoginAttemptRepository
	APIKeys       *APIKeyRepository
	RequestCounts *RequestCountRepository
}

func NewStore(db *database.DB) *Store {
	return &Store{
		db:            db,
		Users:         NewUserRepository(db),
		Roles:         NewRoleRepository(db),
		LoginAttempts: NewLoginAttemptRepository(db),
		APIKeys:       NewAPIKeyRepository(db),
		RequestCounts: NewRequestCountRepository(db),
	}
}

// CreateUserWithRole inserts a user, its role link, and its zero-valued
// request counter atomically so a crash between the writes cannot leave a
// partially provisioned account.
func (s *Store) CreateUserWithRole(ctx context.Context, user *models.User, roleName string) (*models.User, error) {
	var created *models.User

	err := s.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		u, err := s.Users.WithTx(tx).Create(ctx, user)
		if err != nil {
			return err
		}
		if err := s.Roles.WithTx(tx).AssignRole(ctx, u.ID, roleName); err != nil {
			return err
		}
		if err := s.RequestCounts.WithTx(tx).Init(ctx, u.ID); err != nil {
			return err
		}
		u.Roles = []string{roleName}
		created = u
		return nil
	})
	if err != nil {
		return nil, err
	}

	return created, nil
}
