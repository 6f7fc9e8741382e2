package repository

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/Clark-Hu/movieweb/internal/domain"
)

// MoviesRepository is the catalog store. It enforces no business rules
// beyond the schema constraints.
type MoviesRepository struct {
	db DBTX
}

const movieColumns = `
    m.id,
    m.external_id,
    m.title,
    m.release_year,
    m.director,
    m.writer,
    m.actors,
    m.runtime,
    m.genre,
    m.plot,
    m.language,
    m.country,
    m.awards,
    m.poster_url,
    m.rated,
    m.metascore,
    m.imdb_votes,
    m.seed_rating,
    m.aggregate_rating,
    m.aggregate_vote_count,
    m.created_at,
    m.updated_at
`

// MovieCreateParams bundles the fields required to create a movie.
type MovieCreateParams struct {
	ExternalID  *string
	Title       string
	ReleaseYear *int
	Details     domain.MovieDetails
	SeedRating  *float64
}

// MovieListFilters encapsulates search and pagination options.
type MovieListFilters struct {
	Query  *string
	Year   *int
	Genre  *string
	Limit  int
	Cursor *MovieCursor
}

// MovieCursor allows stable pagination by created_at/id.
type MovieCursor struct {
	CreatedAt time.Time `json:"createdAt"`
	ID        string    `json:"id"`
}

// MovieListResult returns the paginated payload.
type MovieListResult struct {
	Items      []domain.CatalogMovie
	NextCursor *string
}

// Insert stores a new movie. A duplicate external id yields ErrConflict.
func (r *MoviesRepository) Insert(ctx context.Context, params MovieCreateParams) (domain.CatalogMovie, error) {
	query := fmt.Sprintf(`
        INSERT INTO movies AS m (
            id, external_id, title, release_year,
            director, writer, actors, runtime, genre, plot, language, country,
            awards, poster_url, rated, metascore, imdb_votes, seed_rating
        )
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
        RETURNING %s
    `, movieColumns)

	d := params.Details
	row := r.db.QueryRow(ctx, query,
		uuid.NewString(), params.ExternalID, params.Title, params.ReleaseYear,
		d.Director, d.Writer, d.Actors, d.Runtime, d.Genre, d.Plot, d.Language, d.Country,
		d.Awards, d.PosterURL, d.Rated, d.Metascore, d.IMDbVotes, params.SeedRating,
	)
	movie, err := scanMovie(row)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.CatalogMovie{}, fmt.Errorf("insert movie: %w", ErrConflict)
		}
		return domain.CatalogMovie{}, err
	}
	return movie, nil
}

// GetByID fetches a movie by its identifier.
func (r *MoviesRepository) GetByID(ctx context.Context, id string) (domain.CatalogMovie, error) {
	query := fmt.Sprintf(`SELECT %s FROM movies m WHERE m.id = $1`, movieColumns)
	return r.getOne(ctx, query, id)
}

// GetByExternalID fetches a movie by its provider identifier.
func (r *MoviesRepository) GetByExternalID(ctx context.Context, externalID string) (domain.CatalogMovie, error) {
	query := fmt.Sprintf(`SELECT %s FROM movies m WHERE m.external_id = $1`, movieColumns)
	return r.getOne(ctx, query, externalID)
}

// LockForUpdate reads a movie and holds its row lock until the surrounding
// transaction ends.
func (r *MoviesRepository) LockForUpdate(ctx context.Context, id string) (domain.CatalogMovie, error) {
	query := fmt.Sprintf(`SELECT %s FROM movies m WHERE m.id = $1 FOR UPDATE`, movieColumns)
	return r.getOne(ctx, query, id)
}

// FindByTitleYear returns movies whose title matches case-insensitively and
// whose year matches exactly, oldest first.
func (r *MoviesRepository) FindByTitleYear(ctx context.Context, title string, year int) ([]domain.CatalogMovie, error) {
	query := fmt.Sprintf(`
        SELECT %s FROM movies m
        WHERE lower(m.title) = lower($1) AND m.release_year = $2
        ORDER BY m.created_at ASC, m.id ASC
    `, movieColumns)
	rows, err := r.db.Query(ctx, query, strings.TrimSpace(title), year)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []domain.CatalogMovie
	for rows.Next() {
		movie, err := scanMovie(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, movie)
	}
	return results, rows.Err()
}

// BackfillExternalID sets the external id only when it is still NULL. The
// boolean reports whether the row changed.
func (r *MoviesRepository) BackfillExternalID(ctx context.Context, id, externalID string) (domain.CatalogMovie, bool, error) {
	query := fmt.Sprintf(`
        UPDATE movies m
        SET external_id = $2, updated_at = now()
        WHERE m.id = $1 AND m.external_id IS NULL
        RETURNING %s
    `, movieColumns)

	movie, err := scanMovie(r.db.QueryRow(ctx, query, id, externalID))
	switch {
	case err == nil:
		return movie, true, nil
	case errors.Is(err, pgx.ErrNoRows):
		current, err := r.GetByID(ctx, id)
		return current, false, err
	case isUniqueViolation(err):
		return domain.CatalogMovie{}, false, fmt.Errorf("backfill external id: %w", ErrConflict)
	default:
		return domain.CatalogMovie{}, false, err
	}
}

// SetAggregate stores a freshly computed community rating.
func (r *MoviesRepository) SetAggregate(ctx context.Context, id string, agg domain.Aggregate) error {
	tag, err := r.db.Exec(ctx, `
        UPDATE movies
        SET aggregate_rating = $2, aggregate_vote_count = $3, updated_at = now()
        WHERE id = $1
    `, id, agg.Rating, agg.VoteCount)
	if err != nil {
		return fmt.Errorf("set aggregate: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a movie together with its memberships and comments.
func (r *MoviesRepository) Delete(ctx context.Context, id string) (bool, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM movies WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// IDs returns every movie id, used by bulk maintenance.
func (r *MoviesRepository) IDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.Query(ctx, `SELECT id FROM movies ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// Top returns the movies on the most lists, ties broken by community rating.
func (r *MoviesRepository) Top(ctx context.Context, limit int) ([]domain.CatalogMovie, error) {
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	query := fmt.Sprintf(`
        SELECT %s, COUNT(ms.user_id)::int AS user_count
        FROM movies m
        LEFT JOIN memberships ms ON ms.movie_id = m.id
        GROUP BY m.id
        ORDER BY user_count DESC, m.aggregate_rating DESC NULLS LAST, m.title ASC
        LIMIT $1
    `, movieColumns)
	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.CatalogMovie, 0, limit)
	for rows.Next() {
		var userCount int
		movie, err := scanMovie(rows, &userCount)
		if err != nil {
			return nil, err
		}
		movie.UserCount = userCount
		items = append(items, movie)
	}
	return items, rows.Err()
}

// List returns movies that match the provided filters.
func (r *MoviesRepository) List(ctx context.Context, filters MovieListFilters) (MovieListResult, error) {
	if filters.Limit <= 0 {
		filters.Limit = 20
	} else if filters.Limit > 100 {
		filters.Limit = 100
	}

	where := make([]string, 0)
	args := make([]interface{}, 0)
	arg := func(value interface{}) string {
		args = append(args, value)
		return fmt.Sprintf("$%d", len(args))
	}

	if filters.Query != nil && strings.TrimSpace(*filters.Query) != "" {
		q := "%" + strings.TrimSpace(*filters.Query) + "%"
		p1 := arg(q)
		p2 := arg(q)
		where = append(where, fmt.Sprintf("(m.title ILIKE %s OR m.director ILIKE %s)", p1, p2))
	}
	if filters.Year != nil {
		where = append(where, fmt.Sprintf("m.release_year = %s", arg(*filters.Year)))
	}
	if filters.Genre != nil && strings.TrimSpace(*filters.Genre) != "" {
		where = append(where, fmt.Sprintf("m.genre ILIKE %s", arg("%"+strings.TrimSpace(*filters.Genre)+"%")))
	}
	if filters.Cursor != nil {
		cursorCreated := arg(filters.Cursor.CreatedAt)
		cursorID := arg(filters.Cursor.ID)
		where = append(where, fmt.Sprintf("(m.created_at, m.id) < (%s, %s)", cursorCreated, cursorID))
	}

	queryBuilder := strings.Builder{}
	queryBuilder.WriteString("SELECT ")
	queryBuilder.WriteString(movieColumns)
	queryBuilder.WriteString(" FROM movies m")

	if len(where) > 0 {
		queryBuilder.WriteString(" WHERE ")
		queryBuilder.WriteString(strings.Join(where, " AND "))
	}

	queryBuilder.WriteString(" ORDER BY m.created_at DESC, m.id DESC")
	queryBuilder.WriteString(fmt.Sprintf(" LIMIT %d", filters.Limit))

	rows, err := r.db.Query(ctx, queryBuilder.String(), args...)
	if err != nil {
		return MovieListResult{}, err
	}
	defer rows.Close()

	items := make([]domain.CatalogMovie, 0)
	for rows.Next() {
		movie, err := scanMovie(rows)
		if err != nil {
			return MovieListResult{}, err
		}
		items = append(items, movie)
	}
	if err := rows.Err(); err != nil {
		return MovieListResult{}, err
	}

	var nextCursor *string
	if len(items) == filters.Limit {
		last := items[len(items)-1]
		token, err := encodeCursor(MovieCursor{CreatedAt: last.CreatedAt, ID: last.ID})
		if err != nil {
			return MovieListResult{}, err
		}
		nextCursor = &token
	}

	return MovieListResult{Items: items, NextCursor: nextCursor}, nil
}

func (r *MoviesRepository) getOne(ctx context.Context, query string, args ...any) (domain.CatalogMovie, error) {
	movie, err := scanMovie(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.CatalogMovie{}, ErrNotFound
		}
		return domain.CatalogMovie{}, err
	}
	return movie, nil
}

func scanMovie(row pgx.Row, extra ...any) (domain.CatalogMovie, error) {
	var movie domain.CatalogMovie
	if err := row.Scan(append(movieDest(&movie), extra...)...); err != nil {
		return domain.CatalogMovie{}, err
	}
	return movie, nil
}

// scanMovieAfter scans rows whose movie columns follow other columns.
func scanMovieAfter(row pgx.Row, leading ...any) (domain.CatalogMovie, error) {
	var movie domain.CatalogMovie
	if err := row.Scan(append(leading, movieDest(&movie)...)...); err != nil {
		return domain.CatalogMovie{}, err
	}
	return movie, nil
}

func movieDest(movie *domain.CatalogMovie) []any {
	d := &movie.Details
	return []any{
		&movie.ID,
		&movie.ExternalID,
		&movie.Title,
		&movie.ReleaseYear,
		&d.Director,
		&d.Writer,
		&d.Actors,
		&d.Runtime,
		&d.Genre,
		&d.Plot,
		&d.Language,
		&d.Country,
		&d.Awards,
		&d.PosterURL,
		&d.Rated,
		&d.Metascore,
		&d.IMDbVotes,
		&movie.SeedRating,
		&movie.AggregateRating,
		&movie.AggregateVoteCount,
		&movie.CreatedAt,
		&movie.UpdatedAt,
	}
}

func encodeCursor(c MovieCursor) (string, error) {
	payload, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(payload), nil
}

// DecodeCursor parses a cursor token into a MovieCursor.
func DecodeCursor(token string) (*MovieCursor, error) {
	if token == "" {
		return nil, nil
	}
	data, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("invalid cursor: %w", err)
	}
	var cursor MovieCursor
	if err := json.Unmarshal(data, &cursor); err != nil {
		return nil, fmt.Errorf("invalid cursor payload: %w", err)
	}
	return &cursor, nil
}

// GetByTitle fetches the oldest movie whose title matches case-insensitively.
func (r *MoviesRepository) GetByTitle(ctx context.Context, title string) (domain.CatalogMovie, error) {
	query := fmt.Sprintf(`
        SELECT %s FROM movies m
        WHERE lower(m.title) = lower($1)
        ORDER BY m.created_at ASC, m.id ASC
        LIMIT 1
    `, movieColumns)
	return r.getOne(ctx, query, strings.TrimSpace(title))
}
