package handler

import (
	"net/http"

	"github.com/kacharaalert/internal/middleware"
	"github.com/kacharaalert/internal/model"
	"github.com/kacharaalert/internal/repository"
)

type RatingHandler struct {
	ratings *repository.RatingRepository
}

func NewRatingHandler(ratings *repository.RatingRepository) *RatingHandler {
	return &RatingHandler{ratings: ratings}
}

func (h *RatingHandler) Summary(w http.ResponseWriter, r *http.Request) {
	s, err := h.ratings.Summary(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		writeRepoError(w, "rating summary", err)
		return
	}
	writeJSON(w, http.StatusOK, "Rating summary loaded", s)
}

// Submit creates or replaces the caller's rating.
func (h *RatingHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req model.RatingRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.ratings.Upsert(r.Context(), middleware.GetUserID(r.Context()), req.Score, req.Comment)
	if err != nil {
		writeRepoError(w, "submit rating", err)
		return
	}
	writeJSON(w, http.StatusOK, "Thanks for your feedback", res)
}
