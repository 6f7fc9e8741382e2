package domain

import "time"

// MovieDetails holds the descriptive metadata copied from the provider at creation time.
type MovieDetails struct {
	Director  *string
	Writer    *string
	Actors    *string
	Runtime   *string
	Genre     *string
	Plot      *string
	Language  *string
	Country   *string
	Awards    *string
	PosterURL *string
	Rated     *string
	Metascore *string
	IMDbVotes *string
}

// CatalogMovie is the canonical, deduplicated movie record shared by all users.
type CatalogMovie struct {
	ID          string
	ExternalID  *string
	Title       string
	ReleaseYear *int
	Details     MovieDetails
	// SeedRating is imported once on creation and counts as one vote.
	SeedRating         *float64
	AggregateRating    *float64
	AggregateVoteCount int
	// UserCount is only populated by listings that join memberships.
	UserCount int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// MetadataBundle is a raw record from the metadata provider. Values are
// passed through untouched; placeholders such as "N/A" are still present.
type MetadataBundle struct {
	ExternalID string
	Title      string
	Year       string
	Rating     string
	Votes      string
	Director   string
	Writer     string
	Actors     string
	Runtime    string
	Genre      string
	Plot       string
	Language   string
	Country    string
	Awards     string
	Poster     string
	Rated      string
	Metascore  string
}
