package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/Clark-Hu/movieweb/internal/domain"
)

// UsersRepository persists list owners.
type UsersRepository struct {
	db DBTX
}

// Create inserts a user. Names are unique case-insensitively; a clash yields ErrConflict.
func (r *UsersRepository) Create(ctx context.Context, name string) (domain.User, error) {
	var u domain.User
	err := r.db.QueryRow(ctx, `
        INSERT INTO users (id, name) VALUES ($1, $2)
        RETURNING id, name, created_at
    `, uuid.NewString(), name).Scan(&u.ID, &u.Name, &u.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.User{}, fmt.Errorf("create user %q: %w", name, ErrConflict)
		}
		return domain.User{}, err
	}
	return u, nil
}

// GetByID fetches a user with their list size.
func (r *UsersRepository) GetByID(ctx context.Context, id string) (domain.User, error) {
	var u domain.User
	err := r.db.QueryRow(ctx, `
        SELECT u.id, u.name, u.created_at,
               (SELECT COUNT(*)::int FROM memberships ms WHERE ms.user_id = u.id)
        FROM users u WHERE u.id = $1
    `, id).Scan(&u.ID, &u.Name, &u.CreatedAt, &u.MovieCount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, ErrNotFound
		}
		return domain.User{}, err
	}
	return u, nil
}

// List returns all users ordered by name.
func (r *UsersRepository) List(ctx context.Context) ([]domain.User, error) {
	rows, err := r.db.Query(ctx, `
        SELECT u.id, u.name, u.created_at, COUNT(ms.movie_id)::int
        FROM users u
        LEFT JOIN memberships ms ON ms.user_id = u.id
        GROUP BY u.id
        ORDER BY u.name
    `)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.User, 0)
	for rows.Next() {
		var u domain.User
		if err := rows.Scan(&u.ID, &u.Name, &u.CreatedAt, &u.MovieCount); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}
