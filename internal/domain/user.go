package domain

import "time"

// User owns a personal movie list.
type User struct {
	ID         string
	Name       string
	MovieCount int
	CreatedAt  time.Time
}

// Comment is a user's remark on a catalog movie.
type Comment struct {
	ID         string
	MovieID    string
	UserID     string
	UserName   string
	Text       string
	LikesCount int
	CreatedAt  time.Time
}
