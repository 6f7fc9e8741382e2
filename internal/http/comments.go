package httpserver

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Clark-Hu/movieweb/internal/domain"
)

type commentRequest struct {
	Text string `json:"text" validate:"required,max=2000"`
}

type commentResponse struct {
	ID         string    `json:"id"`
	MovieID    string    `json:"movieId"`
	UserID     string    `json:"userId"`
	UserName   string    `json:"userName,omitempty"`
	Text       string    `json:"text"`
	LikesCount int       `json:"likesCount"`
	CreatedAt  time.Time `json:"createdAt"`
}

func (s *Server) handleAddComment(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(r.Header.Get(userHeader))
	if userID == "" {
		s.respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing or invalid authentication information")
		return
	}

	var req commentRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}

	comment, err := s.catalog.AddComment(r.Context(), chi.URLParam(r, "movieID"), userID, req.Text)
	if err != nil {
		s.respondServiceError(w, r, err, "add comment")
		return
	}
	s.respondJSON(w, http.StatusCreated, toCommentResponse(comment))
}

func (s *Server) handleLikeComment(w http.ResponseWriter, r *http.Request) {
	comment, err := s.catalog.LikeComment(r.Context(), chi.URLParam(r, "commentID"))
	if err != nil {
		s.respondServiceError(w, r, err, "like comment")
		return
	}
	s.respondJSON(w, http.StatusOK, toCommentResponse(comment))
}

func toCommentResponses(comments []domain.Comment) []commentResponse {
	items := make([]commentResponse, 0, len(comments))
	for _, c := range comments {
		items = append(items, toCommentResponse(c))
	}
	return items
}

func toCommentResponse(c domain.Comment) commentResponse {
	return commentResponse{
		ID:         c.ID,
		MovieID:    c.MovieID,
		UserID:     c.UserID,
		UserName:   c.UserName,
		Text:       c.Text,
		LikesCount: c.LikesCount,
		CreatedAt:  c.CreatedAt,
	}
}
