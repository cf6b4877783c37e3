package service

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/sakif/skillbarter/internal/apperror"
	"github.com/sakif/skillbarter/internal/auth"
	"github.com/sakif/skillbarter/internal/model"
	"github.com/sakif/skillbarter/internal/repository"
)

// skillIDPattern matches the ids the stores generate (xid) as well as the
// hex ObjectIDs of documents imported from an older database.
var skillIDPattern = regexp.MustCompile(`^[0-9a-zA-Z]{20,24}$`)

// SkillService serves the skill catalogue and manages which skills a user
// claims.
type SkillService struct {
	users  repository.UserRepository
	skills repository.SkillRepository
	logger *slog.Logger
}

func NewSkillService(users repository.UserRepository, skills repository.SkillRepository, logger *slog.Logger) *SkillService {
	return &SkillService{users: users, skills: skills, logger: logger}
}

// Categories lists every category for the landing page.
func (s *SkillService) Categories(ctx context.Context) ([]model.SkillCategory, error) {
	cats, err := s.skills.ListCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing categories: %w", err)
	}
	if cats == nil {
		cats = []model.SkillCategory{}
	}
	return cats, nil
}

// CategoryView is a category with its skills resolved.
type CategoryView struct {
	Category *model.SkillCategory `json:"category"`
	Skills   []model.Skill        `json:"skills"`
}

func (s *SkillService) Category(ctx context.Context, name string) (*CategoryView, error) {
	cat, err := s.skills.GetCategoryByName(ctx, strings.TrimSpace(name))
	if err != nil {
		return nil, err
	}
	skills, err := s.skills.GetSkillsByIDs(ctx, cat.Skills)
	if err != nil {
		return nil, fmt.Errorf("loading skills of %s: %w", cat.Name, err)
	}
	if skills == nil {
		skills = []model.Skill{}
	}
	return &CategoryView{Category: cat, Skills: skills}, nil
}

// SkillView is a skill with the people who offer it.
type SkillView struct {
	Skill    *model.Skill `json:"skill"`
	Users    []model.Card `json:"users"`
	HasSkill bool         `json:"hasSkill"`
}

// Skill loads the skill called name and a card for every user claiming it.
// HasSkill tells whether the caller is one of them.
func (s *SkillService) Skill(ctx context.Context, sess *auth.Session, name string) (*SkillView, error) {
	skill, err := s.skills.GetSkillByName(ctx, strings.TrimSpace(name))
	if err != nil {
		return nil, err
	}

	users, err := s.users.ListUsersWithSkill(ctx, skill.ID)
	if err != nil {
		return nil, fmt.Errorf("listing users with %s: %w", skill.Name, err)
	}
	cards, err := cardsFor(ctx, s.skills, users)
	if err != nil {
		return nil, err
	}

	view := &SkillView{Skill: skill, Users: cards}
	if sess != nil {
		for _, u := range users {
			if u.ID == sess.UserID {
				view.HasSkill = true
				break
			}
		}
	}
	return view, nil
}

// AddSkill adds skillID to the caller's skills. Adding a skill twice is
// harmless.
func (s *SkillService) AddSkill(ctx context.Context, sess *auth.Session, skillID string) (*model.Skill, error) {
	sess, skill, err := s.claimable(ctx, sess, skillID)
	if err != nil {
		return nil, err
	}
	if err := s.users.AddUserSkill(ctx, sess.UserID, skill.ID); err != nil {
		return nil, fmt.Errorf("adding skill: %w", err)
	}
	s.logger.Info("skill added", slog.String("userID", sess.UserID), slog.String("skill", skill.Name))
	return skill, nil
}

// RemoveSkill removes skillID from the caller's skills. The portfolio entry
// for it, if any, is kept.
func (s *SkillService) RemoveSkill(ctx context.Context, sess *auth.Session, skillID string) (*model.Skill, error) {
	sess, skill, err := s.claimable(ctx, sess, skillID)
	if err != nil {
		return nil, err
	}
	if err := s.users.RemoveUserSkill(ctx, sess.UserID, skill.ID); err != nil {
		return nil, fmt.Errorf("removing skill: %w", err)
	}
	s.logger.Info("skill removed", slog.String("userID", sess.UserID), slog.String("skill", skill.Name))
	return skill, nil
}

func (s *SkillService) claimable(ctx context.Context, sess *auth.Session, skillID string) (*auth.Session, *model.Skill, error) {
	sess, err := requireSession(sess)
	if err != nil {
		return nil, nil, err
	}
	if !skillIDPattern.MatchString(skillID) {
		return nil, nil, apperror.ValidationFailed("skillID", "invalid skill id")
	}
	skill, err := s.skills.GetSkillByID(ctx, model.SkillID(skillID))
	if err != nil {
		return nil, nil, err
	}
	return sess, skill, nil
}
