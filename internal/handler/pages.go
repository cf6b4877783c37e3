package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/skillbarter/internal/service"
)

// PageHandler serves the browsing pages: categories, skills, profiles and
// visit history.
type PageHandler struct {
	skills   *service.SkillService
	profiles *service.ProfileService
	history  *service.HistoryService
	render   *Renderer
	logger   *slog.Logger
}

func NewPageHandler(
	skills *service.SkillService,
	profiles *service.ProfileService,
	history *service.HistoryService,
	render *Renderer,
	logger *slog.Logger,
) *PageHandler {
	return &PageHandler{
		skills:   skills,
		profiles: profiles,
		history:  history,
		render:   render,
		logger:   logger,
	}
}

// HandleHome lists every skill category.
//
// HTTP: GET /
func (h *PageHandler) HandleHome(w http.ResponseWriter, r *http.Request) {
	cats, err := h.skills.Categories(r.Context())
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	h.render.render(w, r, http.StatusOK, "home", "Skill Barter", cats)
}

// HandleCategory lists the skills of one category.
//
// HTTP: GET /category/{name}
func (h *PageHandler) HandleCategory(w http.ResponseWriter, r *http.Request) {
	view, err := h.skills.Category(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	h.render.render(w, r, http.StatusOK, "category", view.Category.Name, view)
}

// HandleSkill lists the users offering a skill.
//
// HTTP: GET /skill/{name}
// Auth: Required
func (h *PageHandler) HandleSkill(w http.ResponseWriter, r *http.Request) {
	view, err := h.skills.Skill(r.Context(), sessionFrom(r), chi.URLParam(r, "name"))
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	h.render.render(w, r, http.StatusOK, "skill", view.Skill.Name, view)
}

// HandleProfile shows a profile. Without ?id= it shows the caller's own.
//
// HTTP: GET /profile?id={username}
func (h *PageHandler) HandleProfile(w http.ResponseWriter, r *http.Request) {
	view, err := h.profiles.View(r.Context(), sessionFrom(r), r.URL.Query().Get("id"))
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	h.render.render(w, r, http.StatusOK, "profile", view.User.Username, view)
}

// HandleUserJSON is the JSON form of HandleProfile.
//
// HTTP: GET /api/users/{username}
func (h *PageHandler) HandleUserJSON(w http.ResponseWriter, r *http.Request) {
	view, err := h.profiles.View(r.Context(), sessionFrom(r), chi.URLParam(r, "username"))
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// HandleHistory shows the cards of the users in one of the caller's history
// lists.
//
// HTTP: GET /history/{filter}
// Auth: Required
func (h *PageHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	filter := chi.URLParam(r, "filter")
	cards, err := h.history.List(r.Context(), sessionFrom(r), filter)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	h.render.render(w, r, http.StatusOK, "history", "Recently "+filter, cards)
}

// HandleNotFound is the fallback page.
//
// HTTP: GET /404, and any unknown route
func (h *PageHandler) HandleNotFound(w http.ResponseWriter, r *http.Request) {
	h.render.render(w, r, http.StatusNotFound, "404", "Not found", nil)
}
