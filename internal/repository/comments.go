package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/Clark-Hu/movieweb/internal/domain"
)

// CommentsRepository persists movie comments.
type CommentsRepository struct {
	db DBTX
}

// Create stores a comment. A missing movie or user yields ErrNotFound.
func (r *CommentsRepository) Create(ctx context.Context, movieID, userID, body string) (domain.Comment, error) {
	c, err := scanComment(r.db.QueryRow(ctx, `
        WITH c AS (
            INSERT INTO comments (id, movie_id, user_id, body)
            VALUES ($1,$2,$3,$4)
            RETURNING id, movie_id, user_id, body, likes_count, created_at
        )
        SELECT c.id, c.movie_id, c.user_id, u.name, c.body, c.likes_count, c.created_at
        FROM c JOIN users u ON u.id = c.user_id
    `, uuid.NewString(), movieID, userID, body))
	if err != nil {
		if isForeignKeyViolation(err) {
			return domain.Comment{}, ErrNotFound
		}
		return domain.Comment{}, err
	}
	return c, nil
}

// ListForMovie returns a movie's comments, newest first.
func (r *CommentsRepository) ListForMovie(ctx context.Context, movieID string) ([]domain.Comment, error) {
	rows, err := r.db.Query(ctx, `
        SELECT c.id, c.movie_id, c.user_id, u.name, c.body, c.likes_count, c.created_at
        FROM comments c JOIN users u ON u.id = c.user_id
        WHERE c.movie_id = $1
        ORDER BY c.created_at DESC, c.id DESC
    `, movieID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	comments := make([]domain.Comment, 0)
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, err
		}
		comments = append(comments, c)
	}
	return comments, rows.Err()
}

// Like increments the like counter of a comment.
func (r *CommentsRepository) Like(ctx context.Context, commentID string) (domain.Comment, error) {
	c, err := scanComment(r.db.QueryRow(ctx, `
        UPDATE comments c
        SET likes_count = c.likes_count + 1
        FROM users u
        WHERE c.id = $1 AND u.id = c.user_id
        RETURNING c.id, c.movie_id, c.user_id, u.name, c.body, c.likes_count, c.created_at
    `, commentID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Comment{}, ErrNotFound
		}
		return domain.Comment{}, err
	}
	return c, nil
}

func scanComment(row pgx.Row) (domain.Comment, error) {
	var c domain.Comment
	err := row.Scan(&c.ID, &c.MovieID, &c.UserID, &c.UserName, &c.Text, &c.LikesCount, &c.CreatedAt)
	return c, err
}
