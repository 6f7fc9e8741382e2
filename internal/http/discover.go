package httpserver

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/Clark-Hu/movieweb/internal/catalog"
	"github.com/Clark-Hu/movieweb/internal/domain"
	"github.com/Clark-Hu/movieweb/internal/suggest"
)

const sessionHeader = "X-Session-Id"

type interpretRequest struct {
	Query string `json:"query" validate:"required,max=500"`
}

type suggestionResponse struct {
	Title string         `json:"title"`
	Movie *movieResponse `json:"movie"`
}

type similarResponse struct {
	MovieID         string               `json:"movieId"`
	Temperature     float64              `json:"temperature"`
	Recommendations []suggestionResponse `json:"recommendations"`
	Recorded        int                  `json:"recorded"`
}

func (s *Server) handleInterpret(w http.ResponseWriter, r *http.Request) {
	var req interpretRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}
	if s.interpreter == nil {
		s.respondServiceError(w, r, domain.External("suggest", "not configured", nil), "interpret query")
		return
	}

	title, err := s.interpreter.Interpret(r.Context(), req.Query)
	if errors.Is(err, suggest.ErrNoTitle) {
		s.respondError(w, http.StatusNotFound, "NO_CLEAR_TITLE", "Could not identify a movie from the description")
		return
	}
	if err != nil {
		s.respondServiceError(w, r, err, "interpret query")
		return
	}

	matches, err := s.catalog.MatchTitles(r.Context(), []string{title})
	if err != nil {
		s.respondServiceError(w, r, err, "interpret query")
		return
	}
	s.respondJSON(w, http.StatusOK, toSuggestionResponses(matches)[0])
}

func (s *Server) handleSimilar(w http.ResponseWriter, r *http.Request) {
	if s.recommender == nil {
		s.respondServiceError(w, r, domain.External("suggest", "not configured", nil), "recommend movies")
		return
	}

	temperature := suggest.RecommendTemperature
	if val := strings.TrimSpace(r.URL.Query().Get("temperature")); val != "" {
		if parsed, err := strconv.ParseFloat(val, 64); err == nil {
			temperature = parsed
		}
	}

	movieID := chi.URLParam(r, "movieID")
	movie, _, err := s.catalog.Movie(r.Context(), movieID)
	if err != nil {
		s.respondServiceError(w, r, err, "recommend movies")
		return
	}

	sessionID := strings.TrimSpace(r.Header.Get(sessionHeader))
	rec, err := s.recommender.Similar(r.Context(), sessionID, movie.Title, temperature)
	if err != nil {
		s.respondServiceError(w, r, err, "recommend movies")
		return
	}

	matches, err := s.catalog.MatchTitles(r.Context(), rec.Titles)
	if err != nil {
		s.respondServiceError(w, r, err, "recommend movies")
		return
	}
	s.respondJSON(w, http.StatusOK, similarResponse{
		MovieID:         movieID,
		Temperature:     rec.Temperature,
		Recommendations: toSuggestionResponses(matches),
		Recorded:        rec.Recorded,
	})
}

func toSuggestionResponses(matches []catalog.TitleMatch) []suggestionResponse {
	items := make([]suggestionResponse, 0, len(matches))
	for _, m := range matches {
		item := suggestionResponse{Title: m.Title}
		if m.Movie != nil {
			mr := toMovieResponse(*m.Movie)
			item.Movie = &mr
		}
		items = append(items, item)
	}
	return items
}
