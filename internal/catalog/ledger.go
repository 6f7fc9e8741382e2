package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/Clark-Hu/movieweb/internal/domain"
	"github.com/Clark-Hu/movieweb/internal/repository"
)

// Outcome reports what a ledger write did. The zero value means the entry
// already existed and nothing changed.
type Outcome struct {
	Created bool
	Changed bool
}

// AddOrUpdate creates the (user, movie) entry or updates its rating when the
// value differs. A nil rating clears an existing one.
func AddOrUpdate(ctx context.Context, tx *repository.Repository, userID, movieID string, rating *float64) (domain.MembershipEntry, Outcome, error) {
	if err := ValidateRating(rating); err != nil {
		return domain.MembershipEntry{}, Outcome{}, err
	}
	existing, found, err := lockEntry(ctx, tx, userID, movieID)
	if err != nil {
		return domain.MembershipEntry{}, Outcome{}, err
	}

	var (
		entry   domain.MembershipEntry
		outcome Outcome
	)
	switch {
	case !found:
		entry, err = tx.Memberships.Insert(ctx, userID, movieID, rating)
		outcome = Outcome{Created: true, Changed: true}
	case sameRating(existing.PersonalRating, rating):
		return existing, Outcome{}, nil
	default:
		entry, err = tx.Memberships.UpdateRating(ctx, userID, movieID, rating)
		outcome = Outcome{Changed: true}
	}
	if err != nil {
		return domain.MembershipEntry{}, Outcome{}, fmt.Errorf("write membership: %w", err)
	}

	if _, err := Recompute(ctx, tx, movieID); err != nil {
		return domain.MembershipEntry{}, Outcome{}, err
	}
	return entry, outcome, nil
}

// Ensure adds the movie to the user's list without touching any rating.
func Ensure(ctx context.Context, tx *repository.Repository, userID, movieID string) (domain.MembershipEntry, Outcome, error) {
	existing, found, err := lockEntry(ctx, tx, userID, movieID)
	if err != nil {
		return domain.MembershipEntry{}, Outcome{}, err
	}
	if found {
		return existing, Outcome{}, nil
	}
	entry, err := tx.Memberships.Insert(ctx, userID, movieID, nil)
	if err != nil {
		return domain.MembershipEntry{}, Outcome{}, fmt.Errorf("write membership: %w", err)
	}
	if _, err := Recompute(ctx, tx, movieID); err != nil {
		return domain.MembershipEntry{}, Outcome{}, err
	}
	return entry, Outcome{Created: true, Changed: true}, nil
}

// Remove deletes the entry if present. Removing an absent entry is not an error.
func Remove(ctx context.Context, tx *repository.Repository, userID, movieID string) (bool, error) {
	if _, err := tx.Movies.LockForUpdate(ctx, movieID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	removed, err := tx.Memberships.Delete(ctx, userID, movieID)
	if err != nil || !removed {
		return false, err
	}
	if _, err := Recompute(ctx, tx, movieID); err != nil {
		return false, err
	}
	return true, nil
}

// lockEntry checks the user, locks the movie row and loads any current entry.
func lockEntry(ctx context.Context, tx *repository.Repository, userID, movieID string) (domain.MembershipEntry, bool, error) {
	if _, err := tx.Users.GetByID(ctx, userID); err != nil {
		return domain.MembershipEntry{}, false, fmt.Errorf("user %s: %w", userID, err)
	}
	if _, err := tx.Movies.LockForUpdate(ctx, movieID); err != nil {
		return domain.MembershipEntry{}, false, fmt.Errorf("movie %s: %w", movieID, err)
	}
	entry, err := tx.Memberships.Get(ctx, userID, movieID)
	if errors.Is(err, repository.ErrNotFound) {
		return domain.MembershipEntry{}, false, nil
	}
	if err != nil {
		return domain.MembershipEntry{}, false, err
	}
	return entry, true, nil
}

func sameRating(a, b *float64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
