package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/skillbarter/internal/auth"
	"github.com/sakif/skillbarter/internal/service"
)

// RatingHandler records ratings.
type RatingHandler struct {
	ratings *service.RatingService
	logger  *slog.Logger
}

func NewRatingHandler(ratings *service.RatingService, logger *slog.Logger) *RatingHandler {
	return &RatingHandler{ratings: ratings, logger: logger}
}

// HandleSubmit rates another user once.
//
// HTTP: POST /submit-rating
// FORM: ratee (username), rating (1-5)
// Auth: Required
func (h *RatingHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	ratee := r.FormValue("ratee")
	rating, err := h.ratings.Add(r.Context(), sessionFrom(r), ratee, r.FormValue("rating"))
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	if auth.WantsJSON(r) {
		writeJSON(w, http.StatusCreated, rating)
		return
	}
	redirect(w, r, profileURL(ratee))
}
