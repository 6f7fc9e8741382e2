package httpserver

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Clark-Hu/movieweb/internal/catalog"
	"github.com/Clark-Hu/movieweb/internal/domain"
)

const userHeader = "X-User-Id"

type userCreateRequest struct {
	Name string `json:"name" validate:"required,max=100"`
}

type userResponse struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	MovieCount int       `json:"movieCount"`
	CreatedAt  time.Time `json:"createdAt"`
}

type addMovieRequest struct {
	movieLookupRequest
	Rating *float64 `json:"rating" validate:"omitempty,gte=0,lte=5"`
}

type ratingRequest struct {
	Rating *float64 `json:"rating" validate:"omitempty,gte=0,lte=5"`
}

type entryResponse struct {
	UserID         string         `json:"userId"`
	MovieID        string         `json:"movieId"`
	PersonalRating *float64       `json:"personalRating"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
	Movie          *movieResponse `json:"movie,omitempty"`
}

type addMovieResponse struct {
	Entry        entryResponse `json:"entry"`
	MovieCreated bool          `json:"movieCreated"`
	Changed      bool          `json:"changed"`
}

type userMoviesResponse struct {
	Items []entryResponse `json:"items"`
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req userCreateRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}

	user, err := s.catalog.CreateUser(r.Context(), req.Name)
	if err != nil {
		s.respondServiceError(w, r, err, "create user")
		return
	}
	w.Header().Set("Location", "/users/"+url.PathEscape(user.ID))
	s.respondJSON(w, http.StatusCreated, toUserResponse(user))
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.catalog.Users(r.Context())
	if err != nil {
		s.respondServiceError(w, r, err, "list users")
		return
	}
	items := make([]userResponse, 0, len(users))
	for _, u := range users {
		items = append(items, toUserResponse(u))
	}
	s.respondJSON(w, http.StatusOK, map[string][]userResponse{"items": items})
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	user, err := s.catalog.User(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		s.respondServiceError(w, r, err, "fetch user")
		return
	}
	s.respondJSON(w, http.StatusOK, toUserResponse(user))
}

func (s *Server) handleListUserMovies(w http.ResponseWriter, r *http.Request) {
	entries, err := s.catalog.ListForUser(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		s.respondServiceError(w, r, err, "list user movies")
		return
	}
	items := make([]entryResponse, 0, len(entries))
	for _, e := range entries {
		movie := toMovieResponse(e.Movie)
		resp := toEntryResponse(e.MembershipEntry)
		resp.Movie = &movie
		items = append(items, resp)
	}
	s.respondJSON(w, http.StatusOK, userMoviesResponse{Items: items})
}

func (s *Server) handleAddMovie(w http.ResponseWriter, r *http.Request) {
	var req addMovieRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}

	res, err := s.catalog.AddToList(r.Context(), catalog.AddRequest{
		UserID:    chi.URLParam(r, "userID"),
		Candidate: req.candidate(),
		Rating:    req.Rating,
	})
	if err != nil {
		s.respondServiceError(w, r, err, "add movie")
		return
	}

	entry := toEntryResponse(res.Entry)
	movie := toMovieResponse(res.Movie)
	entry.Movie = &movie
	status := http.StatusOK
	if res.Outcome.Created {
		status = http.StatusCreated
	}
	s.respondJSON(w, status, addMovieResponse{
		Entry:        entry,
		MovieCreated: res.MovieCreated,
		Changed:      res.Outcome.Changed,
	})
}

func (s *Server) handleAddExisting(w http.ResponseWriter, r *http.Request) {
	entry, outcome, err := s.catalog.AddExisting(r.Context(), chi.URLParam(r, "userID"), chi.URLParam(r, "movieID"))
	if err != nil {
		s.respondServiceError(w, r, err, "add movie")
		return
	}
	status := http.StatusOK
	if outcome.Created {
		status = http.StatusCreated
	}
	s.respondJSON(w, status, addMovieResponse{Entry: toEntryResponse(entry), Changed: outcome.Changed})
}

func (s *Server) handleSetRating(w http.ResponseWriter, r *http.Request) {
	var req ratingRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}

	userID, movieID := chi.URLParam(r, "userID"), chi.URLParam(r, "movieID")
	entry, outcome, err := s.catalog.SetRating(r.Context(), userID, movieID, req.Rating)
	if err != nil {
		s.respondServiceError(w, r, err, "update rating")
		return
	}
	movie, _, err := s.catalog.Movie(r.Context(), movieID)
	if err != nil {
		s.respondServiceError(w, r, err, "update rating")
		return
	}

	resp := toEntryResponse(entry)
	mr := toMovieResponse(movie)
	resp.Movie = &mr
	s.respondJSON(w, http.StatusOK, addMovieResponse{Entry: resp, Changed: outcome.Changed})
}

func (s *Server) handleRemoveMovie(w http.ResponseWriter, r *http.Request) {
	if _, err := s.catalog.RemoveFromList(r.Context(), chi.URLParam(r, "userID"), chi.URLParam(r, "movieID")); err != nil {
		s.respondServiceError(w, r, err, "remove movie")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// requireSelf lets a request through only when X-User-Id names the user in
// the path.
func (s *Server) requireSelf(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		acting := strings.TrimSpace(r.Header.Get(userHeader))
		if acting == "" {
			s.respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing or invalid authentication information")
			return
		}
		if acting != chi.URLParam(r, "userID") {
			s.respondError(w, http.StatusForbidden, "FORBIDDEN", "Cannot modify another user's list")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireAdmin guards catalog-wide mutations with the bearer token.
func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.verifyBearer(r.Header.Get("Authorization")) {
			s.respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing or invalid authentication information")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) verifyBearer(header string) bool {
	if header == "" || s.cfg.AuthToken == "" {
		return false
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return false
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	return token == s.cfg.AuthToken
}

func toUserResponse(u domain.User) userResponse {
	return userResponse{ID: u.ID, Name: u.Name, MovieCount: u.MovieCount, CreatedAt: u.CreatedAt}
}

func toEntryResponse(e domain.MembershipEntry) entryResponse {
	return entryResponse{
		UserID:         e.UserID,
		MovieID:        e.MovieID,
		PersonalRating: e.PersonalRating,
		CreatedAt:      e.CreatedAt,
		UpdatedAt:      e.UpdatedAt,
	}
}
