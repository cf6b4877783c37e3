package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/sakif/skillbarter/internal/apperror"
	"github.com/sakif/skillbarter/internal/auth"
	"github.com/sakif/skillbarter/internal/imagehost"
	"github.com/sakif/skillbarter/internal/model"
	"github.com/sakif/skillbarter/internal/repository"
)

// MaxPortfolioDescription bounds an entry's description.
const MaxPortfolioDescription = 2000

// PortfolioService manages the per-skill galleries on a profile.
type PortfolioService struct {
	users     repository.UserRepository
	portfolio repository.PortfolioRepository
	skills    repository.SkillRepository
	images    imagehost.Host
	logger    *slog.Logger
}

func NewPortfolioService(
	users repository.UserRepository,
	portfolio repository.PortfolioRepository,
	skills repository.SkillRepository,
	images imagehost.Host,
	logger *slog.Logger,
) *PortfolioService {
	return &PortfolioService{
		users:     users,
		portfolio: portfolio,
		skills:    skills,
		images:    images,
		logger:    logger,
	}
}

// Update sets the description of the caller's portfolio entry for skillName
// and adds image to it, creating the entry on first use.
//
// The skill lookup, the user lookup and the upload run concurrently; any
// failure among them aborts before the store is touched. Creating the entry
// and updating it are two separate writes. The create is a no-op when the
// entry already exists, so two first edits racing still leave one entry.
func (s *PortfolioService) Update(ctx context.Context, sess *auth.Session, skillName, description string, image *Upload) error {
	sess, err := requireSession(sess)
	if err != nil {
		return err
	}
	skillName = strings.TrimSpace(skillName)
	if skillName == "" {
		return apperror.ValidationFailed("skill", "skill is required")
	}
	description = strings.TrimSpace(description)
	if len(description) > MaxPortfolioDescription {
		return apperror.ValidationFailed("description",
			fmt.Sprintf("description must be %d characters or less", MaxPortfolioDescription))
	}

	var (
		skill *model.Skill
		user  *model.User
		ref   string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		skill, err = s.skills.GetSkillByName(gctx, skillName)
		return err
	})
	g.Go(func() error {
		var err error
		user, err = s.users.GetUserByID(gctx, sess.UserID)
		return err
	})
	if image != nil {
		g.Go(func() error {
			var err error
			ref, err = s.images.Upload(gctx, image.File, image.Filename)
			if err != nil {
				return apperror.ImageUploadFailed(err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if errors.Is(err, apperror.ErrImageUpload) {
			s.logger.Error("portfolio image upload failed",
				slog.String("userID", sess.UserID),
				slog.String("error", err.Error()),
			)
		}
		return err
	}

	if _, found := user.PortfolioEntry(skill.ID); !found {
		entry := model.PortfolioEntry{Title: skill.ID, Description: description, Images: []string{}}
		if err := s.portfolio.AppendPortfolioEntry(ctx, user.ID, entry); err != nil {
			s.logger.Error("failed to create portfolio entry",
				slog.String("userID", user.ID),
				slog.String("skill", skill.ID.String()),
				slog.String("error", err.Error()),
			)
			return fmt.Errorf("creating portfolio entry: %w", err)
		}
	}

	if err := s.portfolio.UpdatePortfolioEntry(ctx, user.ID, skill.ID, description, ref); err != nil {
		if !errors.Is(err, apperror.ErrNotFound) {
			s.logger.Error("failed to update portfolio entry",
				slog.String("userID", user.ID),
				slog.String("skill", skill.ID.String()),
				slog.String("error", err.Error()),
			)
		}
		return fmt.Errorf("updating portfolio entry: %w", err)
	}

	s.logger.Info("portfolio updated",
		slog.String("userID", user.ID),
		slog.String("skill", skill.Name),
		slog.Bool("image", ref != ""),
	)
	return nil
}

// Gallery is a single portfolio entry as the portfolio page shows it.
type Gallery struct {
	Username    string   `json:"username"`
	SkillName   string   `json:"skillName"`
	SkillImage  string   `json:"skillImage"`
	Description string   `json:"description"`
	Images      []string `json:"images"`
	IsOwner     bool     `json:"isOwner"`
}

// Get returns username's gallery for skillName. An empty username means the
// caller's own portfolio.
func (s *PortfolioService) Get(ctx context.Context, sess *auth.Session, username, skillName string) (*Gallery, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		if _, err := requireSession(sess); err != nil {
			return nil, err
		}
		username = sess.Username
	}

	user, err := s.users.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	skill, err := s.skills.GetSkillByName(ctx, strings.TrimSpace(skillName))
	if err != nil {
		return nil, err
	}
	entry, ok := user.PortfolioEntry(skill.ID)
	if !ok {
		return nil, apperror.NotFound("portfolio", username+"/"+skill.Name)
	}

	images := entry.Images
	if images == nil {
		images = []string{}
	}
	return &Gallery{
		Username:    user.Username,
		SkillName:   skill.Name,
		SkillImage:  skill.Image,
		Description: entry.Description,
		Images:      images,
		IsOwner:     sess != nil && sess.UserID == user.ID,
	}, nil
}

// CheckOwner returns Forbidden unless the caller is username. The edit form
// names the profile it was opened from; editing always targets the caller.
func (s *PortfolioService) CheckOwner(sess *auth.Session, username string) error {
	sess, err := requireSession(sess)
	if err != nil {
		return err
	}
	if username = strings.TrimSpace(username); username != "" && username != sess.Username {
		return apperror.Forbidden("you can only edit your own portfolio")
	}
	return nil
}
