package domain

import "time"

// MembershipEntry links one user to one catalog movie.
type MembershipEntry struct {
	UserID         string
	MovieID        string
	PersonalRating *float64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ListEntry is a membership together with the movie it points at.
type ListEntry struct {
	MembershipEntry
	Movie CatalogMovie
}

// Aggregate is the derived community rating of a movie.
type Aggregate struct {
	Rating    *float64
	VoteCount int
}
