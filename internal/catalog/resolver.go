package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Clark-Hu/movieweb/internal/domain"
	"github.com/Clark-Hu/movieweb/internal/metrics"
	"github.com/Clark-Hu/movieweb/internal/repository"
)

// errUnresolved is the NotFound returned when neither identifiers nor a
// metadata bundle produce a movie.
var errUnresolved = fmt.Errorf("%w: no catalog match", domain.ErrNotFound)

// Candidate loosely identifies a movie.
type Candidate struct {
	ExternalID *string
	Title      string
	Year       *int
}

func (c Candidate) normalized() Candidate {
	out := Candidate{Title: strings.TrimSpace(c.Title), Year: c.Year}
	if c.ExternalID != nil {
		if id := strings.TrimSpace(*c.ExternalID); id != "" {
			out.ExternalID = &id
		}
	}
	return out
}

func (c Candidate) validate(now time.Time) error {
	if c.ExternalID == nil && c.Title == "" {
		return domain.InvalidInput("title or external id is required")
	}
	return validateYear(c.Year, now)
}

// Resolve returns the catalog movie the candidate refers to, creating it
// from bundle when nothing matches. Rules, first match wins:
//  1. external id lookup; the stored record is returned untouched
//  2. case-insensitive title plus exact year; a missing external id is backfilled
//  3. create from bundle
//
// Without a match or a bundle the error wraps domain.ErrNotFound.
func Resolve(ctx context.Context, tx *repository.Repository, c Candidate, bundle *domain.MetadataBundle, now time.Time) (domain.CatalogMovie, bool, error) {
	c = c.normalized()
	if err := validateYear(c.Year, now); err != nil {
		return domain.CatalogMovie{}, false, err
	}

	if c.ExternalID != nil {
		movie, err := tx.Movies.GetByExternalID(ctx, *c.ExternalID)
		if err == nil {
			return movie, false, nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return domain.CatalogMovie{}, false, err
		}
	}

	if c.Title != "" && c.Year != nil {
		movie, ok, err := matchTitleYear(ctx, tx, c.Title, *c.Year, c.ExternalID)
		if err != nil || ok {
			return movie, false, err
		}
	}

	if bundle == nil {
		return domain.CatalogMovie{}, false, errUnresolved
	}
	return createFromBundle(ctx, tx, c, bundle, now)
}

func createFromBundle(ctx context.Context, tx *repository.Repository, c Candidate, bundle *domain.MetadataBundle, now time.Time) (domain.CatalogMovie, bool, error) {
	params, err := paramsFromBundle(bundle, now)
	if err != nil {
		return domain.CatalogMovie{}, false, err
	}
	if params.ExternalID == nil {
		params.ExternalID = c.ExternalID
	}

	// The bundle can identify an existing movie the candidate alone did not.
	if params.ExternalID != nil && !sameString(params.ExternalID, c.ExternalID) {
		movie, err := tx.Movies.GetByExternalID(ctx, *params.ExternalID)
		if err == nil {
			return movie, false, nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return domain.CatalogMovie{}, false, err
		}
	}
	if params.ReleaseYear != nil {
		movie, ok, err := matchTitleYear(ctx, tx, params.Title, *params.ReleaseYear, params.ExternalID)
		if err != nil || ok {
			return movie, false, err
		}
	}

	movie, err := tx.Movies.Insert(ctx, params)
	if err != nil {
		return domain.CatalogMovie{}, false, err
	}
	agg, err := Recompute(ctx, tx, movie.ID)
	if err != nil {
		return domain.CatalogMovie{}, false, err
	}
	movie.AggregateRating = agg.Rating
	movie.AggregateVoteCount = agg.VoteCount
	metrics.MoviesCreated.Inc()
	return movie, true, nil
}

// matchTitleYear finds a title/year match compatible with externalID. A
// match that already carries a different external id is another movie.
func matchTitleYear(ctx context.Context, tx *repository.Repository, title string, year int, externalID *string) (domain.CatalogMovie, bool, error) {
	matches, err := tx.Movies.FindByTitleYear(ctx, title, year)
	if err != nil {
		return domain.CatalogMovie{}, false, err
	}
	for _, m := range matches {
		switch {
		case externalID == nil || sameString(m.ExternalID, externalID):
			return m, true, nil
		case m.ExternalID == nil:
			updated, _, err := tx.Movies.BackfillExternalID(ctx, m.ID, *externalID)
			if err != nil {
				return domain.CatalogMovie{}, false, err
			}
			return updated, true, nil
		}
	}
	return domain.CatalogMovie{}, false, nil
}

func sameString(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
