package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/Clark-Hu/movieweb/internal/domain"
	"github.com/Clark-Hu/movieweb/internal/repository"
)

// MetadataProvider looks movies up in the external metadata service. A miss
// must wrap domain.ErrNotFound; other failures should be domain.ExternalError.
type MetadataProvider interface {
	Lookup(ctx context.Context, title string, year *int) (*domain.MetadataBundle, error)
	LookupByID(ctx context.Context, externalID string) (*domain.MetadataBundle, error)
}

// Options tunes a Service.
type Options struct {
	LookupTimeout time.Duration
	Logger        zerolog.Logger
	Clock         func() time.Time
}

// Service runs every catalog operation as one transaction.
type Service struct {
	repo          *repository.Repository
	metadata      MetadataProvider
	lookupTimeout time.Duration
	logger        zerolog.Logger
	now           func() time.Time
}

// NewService wires the catalog over the repositories and a metadata provider.
func NewService(repo *repository.Repository, metadata MetadataProvider, opts Options) *Service {
	if opts.LookupTimeout <= 0 {
		opts.LookupTimeout = 10 * time.Second
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Service{
		repo:          repo,
		metadata:      metadata,
		lookupTimeout: opts.LookupTimeout,
		logger:        opts.Logger.With().Str("component", "catalog").Logger(),
		now:           opts.Clock,
	}
}

// AddRequest asks to put a movie on a user's list.
type AddRequest struct {
	UserID    string
	Candidate Candidate
	Rating    *float64
}

// AddResult describes the state after an add.
type AddResult struct {
	Movie        domain.CatalogMovie
	Entry        domain.MembershipEntry
	MovieCreated bool
	Outcome      Outcome
}

// AddToList resolves the candidate, fetching metadata when the catalog has no
// match, then records the membership and recomputes the aggregate. Metadata
// is fetched outside any transaction and nothing is written if it fails.
func (s *Service) AddToList(ctx context.Context, req AddRequest) (AddResult, error) {
	cand := req.Candidate.normalized()
	if err := cand.validate(s.now()); err != nil {
		return AddResult{}, err
	}
	if err := ValidateRating(req.Rating); err != nil {
		return AddResult{}, err
	}
	if _, err := s.repo.Users.GetByID(ctx, req.UserID); err != nil {
		return AddResult{}, fmt.Errorf("user %s: %w", req.UserID, err)
	}

	res, err := s.addInTx(ctx, req.UserID, cand, nil, req.Rating)
	if !errors.Is(err, errUnresolved) {
		return res, err
	}

	bundle, err := s.fetchMetadata(ctx, cand)
	if err != nil {
		return AddResult{}, err
	}
	return s.addInTx(ctx, req.UserID, cand, bundle, req.Rating)
}

func (s *Service) addInTx(ctx context.Context, userID string, cand Candidate, bundle *domain.MetadataBundle, rating *float64) (AddResult, error) {
	var res AddResult
	err := s.withRetry(ctx, func(tx *repository.Repository) error {
		movie, created, err := Resolve(ctx, tx, cand, bundle, s.now())
		if err != nil {
			return err
		}
		entry, outcome, err := AddOrUpdate(ctx, tx, userID, movie.ID, rating)
		if err != nil {
			return err
		}
		if movie, err = tx.Movies.GetByID(ctx, movie.ID); err != nil {
			return err
		}
		res = AddResult{Movie: movie, Entry: entry, MovieCreated: created, Outcome: outcome}
		return nil
	})
	if err == nil {
		s.logger.Info().
			Str("user_id", userID).
			Str("movie_id", res.Movie.ID).
			Bool("movie_created", res.MovieCreated).
			Bool("changed", res.Outcome.Changed).
			Msg("movie added to list")
	}
	return res, err
}

// AddExisting puts a known catalog movie on a user's list without a rating.
func (s *Service) AddExisting(ctx context.Context, userID, movieID string) (domain.MembershipEntry, Outcome, error) {
	var (
		entry   domain.MembershipEntry
		outcome Outcome
	)
	err := s.repo.InTx(ctx, func(tx *repository.Repository) error {
		var err error
		entry, outcome, err = Ensure(ctx, tx, userID, movieID)
		return err
	})
	return entry, outcome, err
}

// SetRating sets or, with nil, clears the personal rating on an existing entry.
func (s *Service) SetRating(ctx context.Context, userID, movieID string, rating *float64) (domain.MembershipEntry, Outcome, error) {
	if err := ValidateRating(rating); err != nil {
		return domain.MembershipEntry{}, Outcome{}, err
	}
	var (
		entry   domain.MembershipEntry
		outcome Outcome
	)
	err := s.repo.InTx(ctx, func(tx *repository.Repository) error {
		if _, err := tx.Memberships.Get(ctx, userID, movieID); err != nil {
			return fmt.Errorf("list entry: %w", err)
		}
		var err error
		entry, outcome, err = AddOrUpdate(ctx, tx, userID, movieID, rating)
		return err
	})
	return entry, outcome, err
}

// RemoveFromList deletes the user's entry; false means there was none.
func (s *Service) RemoveFromList(ctx context.Context, userID, movieID string) (bool, error) {
	var removed bool
	err := s.repo.InTx(ctx, func(tx *repository.Repository) error {
		var err error
		removed, err = Remove(ctx, tx, userID, movieID)
		return err
	})
	return removed, err
}

// Entry returns a single list entry.
func (s *Service) Entry(ctx context.Context, userID, movieID string) (domain.MembershipEntry, error) {
	return s.repo.Memberships.Get(ctx, userID, movieID)
}

// ListForUser returns the user's list ordered by title.
func (s *Service) ListForUser(ctx context.Context, userID string) ([]domain.ListEntry, error) {
	if _, err := s.repo.Users.GetByID(ctx, userID); err != nil {
		return nil, fmt.Errorf("user %s: %w", userID, err)
	}
	return s.repo.Memberships.ListForUser(ctx, userID)
}

// Import resolves or creates a catalog movie without touching any list.
func (s *Service) Import(ctx context.Context, cand Candidate) (domain.CatalogMovie, bool, error) {
	cand = cand.normalized()
	if err := cand.validate(s.now()); err != nil {
		return domain.CatalogMovie{}, false, err
	}

	movie, created, err := s.importInTx(ctx, cand, nil)
	if !errors.Is(err, errUnresolved) {
		return movie, created, err
	}
	bundle, err := s.fetchMetadata(ctx, cand)
	if err != nil {
		return domain.CatalogMovie{}, false, err
	}
	return s.importInTx(ctx, cand, bundle)
}

func (s *Service) importInTx(ctx context.Context, cand Candidate, bundle *domain.MetadataBundle) (domain.CatalogMovie, bool, error) {
	var (
		movie   domain.CatalogMovie
		created bool
	)
	err := s.withRetry(ctx, func(tx *repository.Repository) error {
		var err error
		movie, created, err = Resolve(ctx, tx, cand, bundle, s.now())
		return err
	})
	return movie, created, err
}

// DeleteMovie removes a movie globally along with its list entries and comments.
func (s *Service) DeleteMovie(ctx context.Context, movieID string) (bool, error) {
	var deleted bool
	err := s.repo.InTx(ctx, func(tx *repository.Repository) error {
		var err error
		deleted, err = tx.Movies.Delete(ctx, movieID)
		return err
	})
	if err == nil && deleted {
		s.logger.Info().Str("movie_id", movieID).Msg("movie deleted globally")
	}
	return deleted, err
}

// Recompute rebuilds one movie's aggregate.
func (s *Service) Recompute(ctx context.Context, movieID string) (domain.Aggregate, error) {
	var agg domain.Aggregate
	err := s.repo.InTx(ctx, func(tx *repository.Repository) error {
		var err error
		agg, err = Recompute(ctx, tx, movieID)
		return err
	})
	return agg, err
}

// RecomputeAll rebuilds every aggregate, one transaction per movie.
func (s *Service) RecomputeAll(ctx context.Context) (int, error) {
	ids, err := s.repo.Movies.IDs(ctx)
	if err != nil {
		return 0, err
	}
	for i, id := range ids {
		if _, err := s.Recompute(ctx, id); err != nil && !errors.Is(err, repository.ErrNotFound) {
			return i, err
		}
	}
	return len(ids), nil
}

// Movie returns a movie with its comments.
func (s *Service) Movie(ctx context.Context, movieID string) (domain.CatalogMovie, []domain.Comment, error) {
	movie, err := s.repo.Movies.GetByID(ctx, movieID)
	if err != nil {
		return domain.CatalogMovie{}, nil, err
	}
	comments, err := s.repo.Comments.ListForMovie(ctx, movieID)
	if err != nil {
		return domain.CatalogMovie{}, nil, err
	}
	return movie, comments, nil
}

// Movies lists the catalog.
func (s *Service) Movies(ctx context.Context, filters repository.MovieListFilters) (repository.MovieListResult, error) {
	return s.repo.Movies.List(ctx, filters)
}

// Top returns the most listed movies.
func (s *Service) Top(ctx context.Context, limit int) ([]domain.CatalogMovie, error) {
	return s.repo.Movies.Top(ctx, limit)
}

// CreateUser registers a user under a trimmed, lower-cased name.
func (s *Service) CreateUser(ctx context.Context, name string) (domain.User, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return domain.User{}, domain.InvalidInput("user name is required")
	}
	return s.repo.Users.Create(ctx, name)
}

// Users lists all users with their list sizes.
func (s *Service) Users(ctx context.Context) ([]domain.User, error) {
	return s.repo.Users.List(ctx)
}

// User returns one user.
func (s *Service) User(ctx context.Context, userID string) (domain.User, error) {
	return s.repo.Users.GetByID(ctx, userID)
}

// AddComment attaches a comment to a movie.
func (s *Service) AddComment(ctx context.Context, movieID, userID, text string) (domain.Comment, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.Comment{}, domain.InvalidInput("comment text is required")
	}
	return s.repo.Comments.Create(ctx, movieID, userID, text)
}

// LikeComment increments a comment's like counter.
func (s *Service) LikeComment(ctx context.Context, commentID string) (domain.Comment, error) {
	return s.repo.Comments.Like(ctx, commentID)
}

// Preview fetches provider metadata for a candidate without touching the
// catalog. The result carries cleaned fields and no ID.
func (s *Service) Preview(ctx context.Context, cand Candidate) (domain.CatalogMovie, error) {
	cand = cand.normalized()
	if err := cand.validate(s.now()); err != nil {
		return domain.CatalogMovie{}, err
	}
	bundle, err := s.fetchMetadata(ctx, cand)
	if err != nil {
		return domain.CatalogMovie{}, err
	}
	params, err := paramsFromBundle(bundle, s.now())
	if err != nil {
		return domain.CatalogMovie{}, err
	}
	return domain.CatalogMovie{
		ExternalID:  params.ExternalID,
		Title:       params.Title,
		ReleaseYear: params.ReleaseYear,
		Details:     params.Details,
		SeedRating:  params.SeedRating,
	}, nil
}

// TitleMatch pairs a suggested title with the catalog movie it names, if any.
type TitleMatch struct {
	Title string
	Movie *domain.CatalogMovie
}

// MatchTitles looks each title up in the catalog concurrently, keeping order.
func (s *Service) MatchTitles(ctx context.Context, titles []string) ([]TitleMatch, error) {
	matches := make([]TitleMatch, len(titles))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, title := range titles {
		g.Go(func() error {
			matches[i] = TitleMatch{Title: title}
			movie, err := s.repo.Movies.GetByTitle(gctx, title)
			if errors.Is(err, repository.ErrNotFound) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("match %q: %w", title, err)
			}
			matches[i].Movie = &movie
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return matches, nil
}

func (s *Service) fetchMetadata(ctx context.Context, cand Candidate) (*domain.MetadataBundle, error) {
	if s.metadata == nil {
		return nil, domain.External("metadata", "not configured", nil)
	}
	ctx, cancel := context.WithTimeout(ctx, s.lookupTimeout)
	defer cancel()

	var (
		bundle *domain.MetadataBundle
		err    error
	)
	if cand.ExternalID != nil {
		bundle, err = s.metadata.LookupByID(ctx, *cand.ExternalID)
	} else {
		bundle, err = s.metadata.Lookup(ctx, cand.Title, cand.Year)
	}
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			s.logger.Warn().Err(err).Str("title", cand.Title).Msg("metadata lookup failed")
		}
		return nil, fmt.Errorf("metadata lookup: %w", err)
	}
	return bundle, nil
}

// withRetry runs fn in a transaction and retries once when a concurrent
// writer won a uniqueness race; the second pass resolves to the winner.
func (s *Service) withRetry(ctx context.Context, fn func(tx *repository.Repository) error) error {
	err := s.repo.InTx(ctx, fn)
	if errors.Is(err, repository.ErrConflict) {
		s.logger.Debug().Err(err).Msg("retrying after concurrent create")
		err = s.repo.InTx(ctx, fn)
	}
	return err
}
