package catalog

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/Clark-Hu/movieweb/internal/domain"
	"github.com/Clark-Hu/movieweb/internal/repository"
)

// Clean returns nil for empty values and the provider's "N/A" placeholder.
func Clean(value string) *string {
	v := strings.TrimSpace(value)
	if v == "" || strings.EqualFold(v, "n/a") {
		return nil
	}
	return &v
}

// ParseYear reads the first component of values like "1994" or "2008–2013".
func ParseYear(value string) *int {
	v := Clean(value)
	if v == nil {
		return nil
	}
	first := *v
	if i := strings.IndexAny(first, "–—-"); i >= 0 {
		first = first[:i]
	}
	year, err := strconv.Atoi(strings.TrimSpace(first))
	if err != nil || year < 0 {
		return nil
	}
	return &year
}

// ConvertRating maps a 0–10 provider rating to the 0–5 scale, rounded to the
// nearest half point. Ties go to the even whole number, so 6.5 becomes 3.0.
func ConvertRating(value string) *float64 {
	v := Clean(value)
	if v == nil {
		return nil
	}
	r10, err := strconv.ParseFloat(*v, 64)
	if err != nil || math.IsNaN(r10) || math.IsInf(r10, 0) {
		return nil
	}
	r5 := math.RoundToEven(math.Min(math.Max(r10, 0), 10)) / 2
	return &r5
}

func paramsFromBundle(b *domain.MetadataBundle, now time.Time) (repository.MovieCreateParams, error) {
	title := Clean(b.Title)
	if title == nil {
		return repository.MovieCreateParams{}, domain.InvalidInput("metadata has no title")
	}
	year := ParseYear(b.Year)
	if err := validateYear(year, now); err != nil {
		return repository.MovieCreateParams{}, err
	}
	return repository.MovieCreateParams{
		ExternalID:  Clean(b.ExternalID),
		Title:       *title,
		ReleaseYear: year,
		SeedRating:  ConvertRating(b.Rating),
		Details: domain.MovieDetails{
			Director:  Clean(b.Director),
			Writer:    Clean(b.Writer),
			Actors:    Clean(b.Actors),
			Runtime:   Clean(b.Runtime),
			Genre:     Clean(b.Genre),
			Plot:      Clean(b.Plot),
			Language:  Clean(b.Language),
			Country:   Clean(b.Country),
			Awards:    Clean(b.Awards),
			PosterURL: Clean(b.Poster),
			Rated:     Clean(b.Rated),
			Metascore: Clean(b.Metascore),
			IMDbVotes: Clean(b.Votes),
		},
	}, nil
}

func validateYear(year *int, now time.Time) error {
	if year == nil {
		return nil
	}
	if *year < 0 {
		return domain.InvalidInput("release year %d is negative", *year)
	}
	if *year > now.Year() {
		return domain.InvalidInput("release year %d is in the future", *year)
	}
	return nil
}

// ValidateRating accepts nil or a finite value in [0,5].
func ValidateRating(rating *float64) error {
	if rating == nil {
		return nil
	}
	if math.IsNaN(*rating) || *rating < 0 || *rating > 5 {
		return domain.ErrInvalidRating
	}
	return nil
}
