package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/jonesrussell/north-cloud/dispatcher/internal/domain"
)

// UserRepository reads tenant records. The executor only ever queries by
// client; user rows are written by an external system.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository creates a new user repository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// FindByClientID returns all users belonging to a client, oldest first.
func (r *UserRepository) FindByClientID(ctx context.Context, clientID string) ([]*domain.User, error) {
	var users []*domain.User
	query := `
		SELECT id, client_id, name, email, address, phone, created_at, updated_at
		FROM users
		WHERE client_id = $1
		ORDER BY created_at ASC
	`

	if err := r.db.SelectContext(ctx, &users, query, clientID); err != nil {
		return nil, fmt.Errorf("failed to find users for client %s: %w", clientID, err)
	}

	if users == nil {
		users = []*domain.User{}
	}

	return users, nil
}
