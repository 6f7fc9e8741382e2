package httpserver

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Clark-Hu/movieweb/internal/catalog"
	"github.com/Clark-Hu/movieweb/internal/domain"
	"github.com/Clark-Hu/movieweb/internal/repository"
)

const (
	defaultTopLimit = 10
	maxTopLimit     = 100
)

type movieListResponse struct {
	Items      []movieResponse `json:"items"`
	NextCursor *string         `json:"nextCursor,omitempty"`
}

type movieResponse struct {
	ID         string   `json:"id,omitempty"`
	ExternalID *string  `json:"externalId,omitempty"`
	Title      string   `json:"title"`
	Year       *int     `json:"year,omitempty"`
	Director   *string  `json:"director,omitempty"`
	Writer     *string  `json:"writer,omitempty"`
	Actors     *string  `json:"actors,omitempty"`
	Runtime    *string  `json:"runtime,omitempty"`
	Genre      *string  `json:"genre,omitempty"`
	Plot       *string  `json:"plot,omitempty"`
	Language   *string  `json:"language,omitempty"`
	Country    *string  `json:"country,omitempty"`
	Awards     *string  `json:"awards,omitempty"`
	PosterURL  *string  `json:"posterUrl,omitempty"`
	Rated      *string  `json:"rated,omitempty"`
	Metascore  *string  `json:"metascore,omitempty"`
	IMDbVotes  *string  `json:"imdbVotes,omitempty"`
	SeedRating *float64 `json:"seedRating"`
	Rating     *float64 `json:"rating"`
	VoteCount  int      `json:"voteCount"`
	UserCount  int      `json:"userCount,omitempty"`
	CreatedAt  *string  `json:"createdAt,omitempty"`
	UpdatedAt  *string  `json:"updatedAt,omitempty"`
}

type movieDetailResponse struct {
	movieResponse
	Comments []commentResponse `json:"comments"`
}

type movieLookupRequest struct {
	ExternalID *string `json:"externalId" validate:"omitempty,max=32"`
	Title      string  `json:"title" validate:"required_without=ExternalID,max=300"`
	Year       *int    `json:"year" validate:"omitempty,gte=0"`
}

func (req movieLookupRequest) candidate() catalog.Candidate {
	return catalog.Candidate{
		ExternalID: normalizeStringPtr(req.ExternalID),
		Title:      strings.TrimSpace(req.Title),
		Year:       req.Year,
	}
}

type importResponse struct {
	Movie   movieResponse `json:"movie"`
	Created bool          `json:"created"`
}

func (s *Server) handleListMovies(w http.ResponseWriter, r *http.Request) {
	filters, err := buildMovieFilters(r.URL.Query())
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}

	result, err := s.catalog.Movies(r.Context(), filters)
	if err != nil {
		s.respondServiceError(w, r, err, "list movies")
		return
	}

	resp := movieListResponse{
		Items:      toMovieResponses(result.Items),
		NextCursor: result.NextCursor,
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func buildMovieFilters(query url.Values) (repository.MovieListFilters, error) {
	var filters repository.MovieListFilters

	if q := strings.TrimSpace(query.Get("q")); q != "" {
		filters.Query = &q
	}
	if val := strings.TrimSpace(query.Get("year")); val != "" {
		year, err := strconv.Atoi(val)
		if err != nil {
			return filters, fmt.Errorf("invalid year value")
		}
		filters.Year = &year
	}
	if val := strings.TrimSpace(query.Get("genre")); val != "" {
		filters.Genre = &val
	}
	if val := strings.TrimSpace(query.Get("limit")); val != "" {
		limit, err := strconv.Atoi(val)
		if err != nil {
			return filters, fmt.Errorf("invalid limit value")
		}
		filters.Limit = limit
	}
	if val := strings.TrimSpace(query.Get("cursor")); val != "" {
		cursor, err := repository.DecodeCursor(val)
		if err != nil {
			return filters, fmt.Errorf("invalid cursor")
		}
		filters.Cursor = cursor
	}
	return filters, nil
}

func (s *Server) handleTopMovies(w http.ResponseWriter, r *http.Request) {
	limit := defaultTopLimit
	if val := strings.TrimSpace(r.URL.Query().Get("limit")); val != "" {
		parsed, err := strconv.Atoi(val)
		if err != nil || parsed <= 0 {
			s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid limit value")
			return
		}
		limit = min(parsed, maxTopLimit)
	}

	movies, err := s.catalog.Top(r.Context(), limit)
	if err != nil {
		s.respondServiceError(w, r, err, "list top movies")
		return
	}
	s.respondJSON(w, http.StatusOK, movieListResponse{Items: toMovieResponses(movies)})
}

func (s *Server) handleGetMovie(w http.ResponseWriter, r *http.Request) {
	movie, comments, err := s.catalog.Movie(r.Context(), chi.URLParam(r, "movieID"))
	if err != nil {
		s.respondServiceError(w, r, err, "fetch movie")
		return
	}
	s.respondJSON(w, http.StatusOK, movieDetailResponse{
		movieResponse: toMovieResponse(movie),
		Comments:      toCommentResponses(comments),
	})
}

func (s *Server) handleImportMovie(w http.ResponseWriter, r *http.Request) {
	var req movieLookupRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}

	movie, created, err := s.catalog.Import(r.Context(), req.candidate())
	if err != nil {
		s.respondServiceError(w, r, err, "import movie")
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
		w.Header().Set("Location", "/movies/"+url.PathEscape(movie.ID))
	}
	s.respondJSON(w, status, importResponse{Movie: toMovieResponse(movie), Created: created})
}

func (s *Server) handleDeleteMovie(w http.ResponseWriter, r *http.Request) {
	deleted, err := s.catalog.DeleteMovie(r.Context(), chi.URLParam(r, "movieID"))
	if err != nil {
		s.respondServiceError(w, r, err, "delete movie")
		return
	}
	if !deleted {
		s.respondError(w, http.StatusNotFound, "NOT_FOUND", "Resource not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMetadataPreview(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	req := movieLookupRequest{Title: strings.TrimSpace(query.Get("title"))}
	if id := strings.TrimSpace(query.Get("externalId")); id != "" {
		req.ExternalID = &id
	}
	if val := strings.TrimSpace(query.Get("year")); val != "" {
		year, err := strconv.Atoi(val)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid year value")
			return
		}
		req.Year = &year
	}
	if err := validate.Struct(req); err != nil {
		s.respondValidationError(w, err)
		return
	}

	movie, err := s.catalog.Preview(r.Context(), req.candidate())
	if err != nil {
		s.respondServiceError(w, r, err, "look up metadata")
		return
	}
	s.respondJSON(w, http.StatusOK, toMovieResponse(movie))
}

func toMovieResponses(movies []domain.CatalogMovie) []movieResponse {
	items := make([]movieResponse, 0, len(movies))
	for _, m := range movies {
		items = append(items, toMovieResponse(m))
	}
	return items
}

func toMovieResponse(movie domain.CatalogMovie) movieResponse {
	d := movie.Details
	return movieResponse{
		ID:         movie.ID,
		ExternalID: movie.ExternalID,
		Title:      movie.Title,
		Year:       movie.ReleaseYear,
		Director:   d.Director,
		Writer:     d.Writer,
		Actors:     d.Actors,
		Runtime:    d.Runtime,
		Genre:      d.Genre,
		Plot:       d.Plot,
		Language:   d.Language,
		Country:    d.Country,
		Awards:     d.Awards,
		PosterURL:  d.PosterURL,
		Rated:      d.Rated,
		Metascore:  d.Metascore,
		IMDbVotes:  d.IMDbVotes,
		SeedRating: movie.SeedRating,
		Rating:     movie.AggregateRating,
		VoteCount:  movie.AggregateVoteCount,
		UserCount:  movie.UserCount,
		CreatedAt:  formatTime(movie.CreatedAt),
		UpdatedAt:  formatTime(movie.UpdatedAt),
	}
}

func formatTime(t time.Time) *string {
	if t.IsZero() {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}

func normalizeStringPtr(ptr *string) *string {
	if ptr == nil {
		return nil
	}
	val := strings.TrimSpace(*ptr)
	if val == "" {
		return nil
	}
	return &val
}
