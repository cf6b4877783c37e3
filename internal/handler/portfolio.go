package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/skillbarter/internal/service"
)

// PortfolioHandler reads and edits per-skill galleries.
type PortfolioHandler struct {
	portfolio *service.PortfolioService
	logger    *slog.Logger
}

func NewPortfolioHandler(portfolio *service.PortfolioService, logger *slog.Logger) *PortfolioHandler {
	return &PortfolioHandler{portfolio: portfolio, logger: logger}
}

// HandleGet returns one gallery.
//
// HTTP: GET /portfolio?id={username}&skill={skillName}
func (h *PortfolioHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	gallery, err := h.portfolio.Get(r.Context(), sessionFrom(r), q.Get("id"), q.Get("skill"))
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, gallery)
}

// HandleUpdate sets the description of the caller's gallery for a skill and
// adds the posted image to it. ?id= may name the gallery's owner; anyone but
// the caller is refused.
//
// HTTP: POST /editPortfolio/upload?skill={skillName} (multipart/form-data)
// FORM: description, image (optional)
// Auth: Required
func (h *PortfolioHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	if err := h.portfolio.CheckOwner(sess, r.URL.Query().Get("id")); err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	if err := parseMultipart(w, r); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	image, closeImage, err := formUpload(r, "image")
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	defer closeImage()

	skill := r.URL.Query().Get("skill")
	if err := h.portfolio.Update(r.Context(), sess, skill, r.FormValue("description"), image); err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	if wantsFetch(r) {
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
		return
	}
	redirect(w, r, profileURL(sess.Username))
}
