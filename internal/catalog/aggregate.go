package catalog

import (
	"context"
	"fmt"
	"math"

	"github.com/Clark-Hu/movieweb/internal/domain"
	"github.com/Clark-Hu/movieweb/internal/metrics"
	"github.com/Clark-Hu/movieweb/internal/repository"
)

// Aggregate combines the seed rating, worth exactly one vote, with every
// personal rating. The mean is rounded to two decimals; no votes yields a
// nil rating and a zero count.
func Aggregate(seed *float64, ratings []float64) domain.Aggregate {
	var total float64
	count := 0
	if seed != nil {
		total += *seed
		count++
	}
	for _, r := range ratings {
		total += r
		count++
	}
	if count == 0 {
		return domain.Aggregate{}
	}
	mean := math.Round(total/float64(count)*100) / 100
	return domain.Aggregate{Rating: &mean, VoteCount: count}
}

// Recompute rebuilds a movie's aggregate from the votes currently stored.
// It locks the movie row, so tx should be transaction-bound.
func Recompute(ctx context.Context, tx *repository.Repository, movieID string) (domain.Aggregate, error) {
	movie, err := tx.Movies.LockForUpdate(ctx, movieID)
	if err != nil {
		return domain.Aggregate{}, fmt.Errorf("recompute %s: %w", movieID, err)
	}
	ratings, err := tx.Memberships.RatingsForMovie(ctx, movieID)
	if err != nil {
		return domain.Aggregate{}, fmt.Errorf("recompute %s: load ratings: %w", movieID, err)
	}

	agg := Aggregate(movie.SeedRating, ratings)
	if err := tx.Movies.SetAggregate(ctx, movieID, agg); err != nil {
		return domain.Aggregate{}, fmt.Errorf("recompute %s: %w", movieID, err)
	}
	metrics.AggregateRecomputes.Inc()
	return agg, nil
}
