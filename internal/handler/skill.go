package handler

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/skillbarter/internal/auth"
	"github.com/sakif/skillbarter/internal/model"
	"github.com/sakif/skillbarter/internal/service"
)

// SkillHandler adds and removes skills on the caller's profile.
type SkillHandler struct {
	skills *service.SkillService
	logger *slog.Logger
}

func NewSkillHandler(skills *service.SkillService, logger *slog.Logger) *SkillHandler {
	return &SkillHandler{skills: skills, logger: logger}
}

// HandleAdd claims a skill.
//
// HTTP: POST /add-skill/{skillID}
// Auth: Required
func (h *SkillHandler) HandleAdd(w http.ResponseWriter, r *http.Request) {
	h.change(w, r, h.skills.AddSkill)
}

// HandleRemove drops a claimed skill.
//
// HTTP: POST /remove-skill/{skillID}
// Auth: Required
func (h *SkillHandler) HandleRemove(w http.ResponseWriter, r *http.Request) {
	h.change(w, r, h.skills.RemoveSkill)
}

type skillChange func(ctx context.Context, sess *auth.Session, skillID string) (*model.Skill, error)

func (h *SkillHandler) change(w http.ResponseWriter, r *http.Request, apply skillChange) {
	skill, err := apply(r.Context(), sessionFrom(r), chi.URLParam(r, "skillID"))
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	if auth.WantsJSON(r) {
		writeJSON(w, http.StatusOK, skill)
		return
	}
	redirect(w, r, "/skill/"+url.PathEscape(skill.Name))
}
