package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/sakif/skillbarter/internal/apperror"
	"github.com/sakif/skillbarter/internal/auth"
	"github.com/sakif/skillbarter/internal/geo"
	"github.com/sakif/skillbarter/internal/imagehost"
	"github.com/sakif/skillbarter/internal/model"
	"github.com/sakif/skillbarter/internal/repository"
	"github.com/sakif/skillbarter/internal/validation"
)

// protectedKeys can never be set through the edit-profile form. They are
// owned by other operations (sign-up, skills, portfolio, ratings, history)
// or derived by this one (userIcon, userLocation).
var protectedKeys = map[string]bool{
	"_id":          true,
	"id":           true,
	"username":     true,
	"password":     true,
	"userSkills":   true,
	"portfolio":    true,
	"history":      true,
	"rateValue":    true,
	"rateCount":    true,
	"isAdmin":      true,
	"userIcon":     true,
	"userLocation": true,
	"resetToken":   true,
	"githubId":     true,
}

func isProtected(key string) bool {
	root, _, _ := strings.Cut(key, ".")
	return protectedKeys[root]
}

// ProfileService edits and displays user profiles.
type ProfileService struct {
	users     repository.UserRepository
	skills    repository.SkillRepository
	validator *validation.Validator
	geo       geo.Resolver
	images    imagehost.Host
	history   *HistoryService
	logger    *slog.Logger
}

func NewProfileService(
	users repository.UserRepository,
	skills repository.SkillRepository,
	validator *validation.Validator,
	resolver geo.Resolver,
	images imagehost.Host,
	history *HistoryService,
	logger *slog.Logger,
) *ProfileService {
	return &ProfileService{
		users:     users,
		skills:    skills,
		validator: validator,
		geo:       resolver,
		images:    images,
		history:   history,
		logger:    logger,
	}
}

// Update applies an edit-profile submission for the signed-in user.
//
// changes are the raw form fields. icon is the optional new profile picture.
// The whole change-set is validated, geocoded and uploaded before anything
// is written, and then written with one atomic store update. On success the
// session's cached email and icon are refreshed from what was committed.
func (s *ProfileService) Update(ctx context.Context, sess *auth.Session, changes map[string]string, icon *Upload) error {
	sess, err := requireSession(sess)
	if err != nil {
		return err
	}
	if _, err := s.users.GetUserByID(ctx, sess.UserID); err != nil {
		return err
	}

	clean := sanitize(changes)
	for key := range clean {
		if isProtected(key) {
			return apperror.ValidationFailed(key, fmt.Sprintf("%s cannot be changed here", key))
		}
	}
	if err := s.validator.ProfileChanges(ctx, clean); err != nil {
		return err
	}

	var update repository.ProfileUpdate
	committed := make(map[string]string)

	loc, err := s.resolveLocation(ctx, clean)
	if err != nil {
		return err
	}
	update.Location = loc
	delete(clean, "longitude")
	delete(clean, "latitude")

	if email, ok := clean["email"]; ok {
		update.Email = &email
		committed["email"] = email
		delete(clean, "email")
	}

	if icon != nil {
		ref, err := s.images.Upload(ctx, icon.File, icon.Filename)
		if err != nil {
			s.logger.Error("profile icon upload failed",
				slog.String("userID", sess.UserID),
				slog.String("error", err.Error()),
			)
			return apperror.ImageUploadFailed(err)
		}
		update.UserIcon = &ref
		committed["userIcon"] = ref
	}

	if len(clean) > 0 {
		update.Attributes = clean
	}
	if update.IsEmpty() {
		return nil
	}

	if err := s.users.ApplyProfileUpdate(ctx, sess.UserID, update); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			return err
		}
		s.logger.Error("failed to apply profile update",
			slog.String("userID", sess.UserID),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("updating profile: %w", err)
	}

	sess.Patch(committed)
	s.logger.Info("profile updated",
		slog.String("userID", sess.UserID),
		slog.Int("attributes", len(update.Attributes)),
		slog.Bool("location", update.Location != nil),
		slog.Bool("icon", update.UserIcon != nil),
	)
	return nil
}

// sanitize trims every value and drops the keys left empty.
func sanitize(changes map[string]string) map[string]string {
	out := make(map[string]string, len(changes))
	for k, v := range changes {
		k = strings.TrimSpace(k)
		v = strings.TrimSpace(v)
		if k == "" || v == "" {
			continue
		}
		out[k] = v
	}
	return out
}

// resolveLocation turns the longitude/latitude pair into a Location with a
// place name. It returns nil when neither coordinate was submitted.
func (s *ProfileService) resolveLocation(ctx context.Context, changes map[string]string) (*model.Location, error) {
	rawLon, hasLon := changes["longitude"]
	rawLat, hasLat := changes["latitude"]
	switch {
	case !hasLon && !hasLat:
		return nil, nil
	case !hasLat:
		return nil, apperror.ValidationFailed("latitude", "latitude is required with longitude")
	case !hasLon:
		return nil, apperror.ValidationFailed("longitude", "longitude is required with latitude")
	}

	lon, err := strconv.ParseFloat(rawLon, 64)
	if err != nil || lon < -180 || lon > 180 {
		return nil, apperror.ValidationFailed("longitude", "longitude must be a number between -180 and 180")
	}
	lat, err := strconv.ParseFloat(rawLat, 64)
	if err != nil || lat < -90 || lat > 90 {
		return nil, apperror.ValidationFailed("latitude", "latitude must be a number between -90 and 90")
	}

	place, err := s.geo.PlaceName(ctx, lon, lat)
	if err != nil {
		s.logger.Warn("reverse geocoding failed",
			slog.Float64("longitude", lon),
			slog.Float64("latitude", lat),
			slog.String("error", err.Error()),
		)
		return nil, apperror.GeoResolutionFailed(err)
	}

	return &model.Location{
		Geo:       model.GeoPoint{Longitude: lon, Latitude: lat},
		PlaceName: place,
	}, nil
}

// PortfolioView is one portfolio entry with its skill resolved.
type PortfolioView struct {
	Skill       model.Skill `json:"skill"`
	Description string      `json:"description"`
	Images      []string    `json:"images"`
}

// ProfileView is everything the profile page shows.
type ProfileView struct {
	User      *model.User     `json:"user"`
	Skills    []model.Skill   `json:"skills"`
	Portfolio []PortfolioView `json:"portfolio"`
	IsOwner   bool            `json:"isOwner"`
}

// View loads username's profile. An empty username means the caller's own
// profile. A signed-in viewer looking at someone else has the visit recorded
// in the background.
func (s *ProfileService) View(ctx context.Context, sess *auth.Session, username string) (*ProfileView, error) {
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

	skills, err := s.skills.GetSkillsByIDs(ctx, user.UserSkills)
	if err != nil {
		return nil, fmt.Errorf("loading skills of %s: %w", username, err)
	}
	if skills == nil {
		skills = []model.Skill{}
	}

	portfolio, err := s.portfolioViews(ctx, user.Portfolio)
	if err != nil {
		return nil, err
	}

	view := &ProfileView{User: user, Skills: skills, Portfolio: portfolio}
	if sess != nil && sess.UserID != "" {
		view.IsOwner = sess.UserID == user.ID
		s.history.RecordVisit(ctx, sess.UserID, user.ID)
	}
	return view, nil
}

func (s *ProfileService) portfolioViews(ctx context.Context, entries []model.PortfolioEntry) ([]PortfolioView, error) {
	views := make([]PortfolioView, 0, len(entries))
	if len(entries) == 0 {
		return views, nil
	}

	ids := make([]model.SkillID, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.Title)
	}
	skills, err := s.skills.GetSkillsByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("loading portfolio skills: %w", err)
	}
	byID := make(map[model.SkillID]model.Skill, len(skills))
	for _, sk := range skills {
		byID[sk.ID] = sk
	}

	for _, e := range entries {
		sk, ok := byID[e.Title]
		if !ok {
			continue
		}
		images := e.Images
		if images == nil {
			images = []string{}
		}
		views = append(views, PortfolioView{Skill: sk, Description: e.Description, Images: images})
	}
	return views, nil
}
