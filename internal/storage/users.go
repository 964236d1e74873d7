package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ashita-ai/manabi/internal/model"
)

// CreateUser inserts a new user identity and returns it with generated fields.
func (db *DB) CreateUser(ctx context.Context, user model.User) (model.User, error) {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	row := db.pool.QueryRow(ctx,
		`INSERT INTO users (id, user_id, name, role, api_key_hash)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, user_id, name, role, api_key_hash, created_at, updated_at`,
		user.ID, user.UserID, user.Name, string(user.Role), user.APIKeyHash,
	)
	created, err := scanUser(row)
	if err != nil {
		return model.User{}, fmt.Errorf("storage: create user: %w", err)
	}
	return created, nil
}

// GetUserByUserID retrieves a user by external user_id.
// Returns ErrNotFound if no such user exists.
func (db *DB) GetUserByUserID(ctx context.Context, userID string) (model.User, error) {
	row := db.pool.QueryRow(ctx,
		`SELECT id, user_id, name, role, api_key_hash, created_at, updated_at
		 FROM users WHERE user_id = $1`, userID,
	)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.User{}, ErrNotFound
		}
		return model.User{}, fmt.Errorf("storage: get user: %w", err)
	}
	return user, nil
}

// ListUsers returns all users ordered by creation time.
func (db *DB) ListUsers(ctx context.Context) ([]model.User, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, user_id, name, role, api_key_hash, created_at, updated_at
		 FROM users ORDER BY created_at ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list users: %w", err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan user: %w", err)
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

// CountUsers returns the total number of users.
func (db *DB) CountUsers(ctx context.Context) (int64, error) {
	var count int64
	if err := db.pool.QueryRow(ctx, `SELECT count(*) FROM users`).Scan(&count); err != nil {
		return 0, fmt.Errorf("storage: count users: %w", err)
	}
	return count, nil
}

func scanUser(row pgx.Row) (model.User, error) {
	var (
		u    model.User
		role string
	)
	if err := row.Scan(&u.ID, &u.UserID, &u.Name, &role, &u.APIKeyHash, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return model.User{}, err
	}
	u.Role = model.UserRole(role)
	return u, nil
}
