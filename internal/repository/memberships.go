package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/Clark-Hu/movieweb/internal/domain"
)

// MembershipsRepository persists the user/movie ledger.
type MembershipsRepository struct {
	db DBTX
}

const membershipColumns = `ms.user_id, ms.movie_id, ms.personal_rating, ms.created_at, ms.updated_at`

// Insert creates an entry. An existing (user, movie) pair yields ErrConflict
// and a missing user or movie yields ErrNotFound.
func (r *MembershipsRepository) Insert(ctx context.Context, userID, movieID string, rating *float64) (domain.MembershipEntry, error) {
	query := fmt.Sprintf(`
        INSERT INTO memberships AS ms (user_id, movie_id, personal_rating)
        VALUES ($1,$2,$3)
        ON CONFLICT (user_id, movie_id) DO NOTHING
        RETURNING %s
    `, membershipColumns)

	entry, err := scanMembership(r.db.QueryRow(ctx, query, userID, movieID, rating))
	switch {
	case err == nil:
		return entry, nil
	case errors.Is(err, pgx.ErrNoRows):
		return domain.MembershipEntry{}, ErrConflict
	case isForeignKeyViolation(err):
		return domain.MembershipEntry{}, ErrNotFound
	default:
		return domain.MembershipEntry{}, err
	}
}

// Get retrieves the entry for a user/movie combination.
func (r *MembershipsRepository) Get(ctx context.Context, userID, movieID string) (domain.MembershipEntry, error) {
	query := fmt.Sprintf(`SELECT %s FROM memberships ms WHERE ms.user_id = $1 AND ms.movie_id = $2`, membershipColumns)
	entry, err := scanMembership(r.db.QueryRow(ctx, query, userID, movieID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.MembershipEntry{}, ErrNotFound
		}
		return domain.MembershipEntry{}, err
	}
	return entry, nil
}

// UpdateRating overwrites the personal rating; nil clears it.
func (r *MembershipsRepository) UpdateRating(ctx context.Context, userID, movieID string, rating *float64) (domain.MembershipEntry, error) {
	query := fmt.Sprintf(`
        UPDATE memberships ms
        SET personal_rating = $3, updated_at = now()
        WHERE ms.user_id = $1 AND ms.movie_id = $2
        RETURNING %s
    `, membershipColumns)
	entry, err := scanMembership(r.db.QueryRow(ctx, query, userID, movieID, rating))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.MembershipEntry{}, ErrNotFound
		}
		return domain.MembershipEntry{}, err
	}
	return entry, nil
}

// Delete removes the entry and reports whether one existed.
func (r *MembershipsRepository) Delete(ctx context.Context, userID, movieID string) (bool, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM memberships WHERE user_id = $1 AND movie_id = $2`, userID, movieID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// RatingsForMovie returns every non-null personal rating of a movie.
func (r *MembershipsRepository) RatingsForMovie(ctx context.Context, movieID string) ([]float64, error) {
	rows, err := r.db.Query(ctx, `
        SELECT personal_rating FROM memberships
        WHERE movie_id = $1 AND personal_rating IS NOT NULL
    `, movieID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[float64])
}

// ListForUser returns a user's entries joined with their movies, ordered by title.
func (r *MembershipsRepository) ListForUser(ctx context.Context, userID string) ([]domain.ListEntry, error) {
	query := fmt.Sprintf(`
        SELECT %s, %s
        FROM memberships ms
        JOIN movies m ON m.id = ms.movie_id
        WHERE ms.user_id = $1
        ORDER BY lower(m.title), m.id
    `, membershipColumns, movieColumns)
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]domain.ListEntry, 0)
	for rows.Next() {
		var e domain.ListEntry
		movie, err := scanMovieAfter(rows,
			&e.UserID, &e.MovieID, &e.PersonalRating, &e.CreatedAt, &e.UpdatedAt)
		if err != nil {
			return nil, err
		}
		e.Movie = movie
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func scanMembership(row pgx.Row) (domain.MembershipEntry, error) {
	var e domain.MembershipEntry
	err := row.Scan(&e.UserID, &e.MovieID, &e.PersonalRating, &e.CreatedAt, &e.UpdatedAt)
	return e, err
}
