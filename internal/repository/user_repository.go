package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/bonyankop-api/internal/models"
)

const userSelect = `SELECT u.id, u.email, u.password_hash, u.full_name, u.role, u.active, u.last_login,
       u.created_at, u.updated_at, p.id AS provider_profile_id
  FROM users u
  LEFT JOIN provider_profiles p ON p.user_id = u.id`

// UserRepository loads marketplace identities.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository constructs the repository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// FindByEmail matches email case-insensitively.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.findOne(ctx, userSelect+` WHERE LOWER(u.email) = LOWER($1)`, email)
}

// FindByID returns sql.ErrNoRows for unknown users.
func (r *UserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	return r.findOne(ctx, userSelect+` WHERE u.id = $1`, id)
}

func (r *UserRepository) findOne(ctx context.Context, query, arg string) (*models.User, error) {
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, arg); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("load user: %w", err)
	}
	return &user, nil
}

// TouchLogin stamps a successful login.
func (r *UserRepository) TouchLogin(ctx context.Context, id string, at time.Time) error {
	const query = `UPDATE users SET last_login = $2, updated_at = $2 WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id, at)
	if err != nil {
		return fmt.Errorf("touch user login: %w", err)
	}
	return expectAffected(result, "touch user login")
}
