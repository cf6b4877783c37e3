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
	"github.com/sakif/skillbarter/internal/model"
	"github.com/sakif/skillbarter/internal/repository"
	"github.com/sakif/skillbarter/internal/validation"
)

// errBadCredentials is deliberately vague: it must not reveal whether the
// email or the password was wrong.
const errBadCredentials = "incorrect email or password"

// AccountService signs users up and in.
type AccountService struct {
	users     repository.UserRepository
	hasher    *auth.Hasher
	validator *validation.Validator
	geo       geo.Resolver
	logger    *slog.Logger
}

func NewAccountService(
	users repository.UserRepository,
	hasher *auth.Hasher,
	validator *validation.Validator,
	resolver geo.Resolver,
	logger *slog.Logger,
) *AccountService {
	return &AccountService{
		users:     users,
		hasher:    hasher,
		validator: validator,
		geo:       resolver,
		logger:    logger,
	}
}

// SignUpRequest is the sign-up form. Longitude and Latitude are optional
// but must come together.
type SignUpRequest struct {
	Username  string
	Email     string
	Password  string
	Longitude string
	Latitude  string
}

// SignUp creates an account and returns its session.
func (s *AccountService) SignUp(ctx context.Context, req SignUpRequest) (auth.Session, error) {
	username := strings.TrimSpace(req.Username)
	email := strings.ToLower(strings.TrimSpace(req.Email))

	if username == "" {
		return auth.Session{}, apperror.ValidationFailed("username", "username is required")
	}
	if email == "" {
		return auth.Session{}, apperror.ValidationFailed("email", "email is required")
	}
	if req.Password == "" {
		return auth.Session{}, apperror.ValidationFailed("password", "password is required")
	}
	if err := s.validator.Account(ctx, username, email, req.Password); err != nil {
		return auth.Session{}, err
	}

	loc, err := s.initialLocation(ctx, req.Longitude, req.Latitude)
	if err != nil {
		return auth.Session{}, err
	}

	if _, err := s.users.GetUserByUsername(ctx, username); err == nil {
		return auth.Session{}, apperror.Duplicate("username")
	} else if !errors.Is(err, apperror.ErrNotFound) {
		return auth.Session{}, fmt.Errorf("checking username: %w", err)
	}
	if _, err := s.users.GetUserByEmail(ctx, email); err == nil {
		return auth.Session{}, apperror.Duplicate("email")
	} else if !errors.Is(err, apperror.ErrNotFound) {
		return auth.Session{}, fmt.Errorf("checking email: %w", err)
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return auth.Session{}, apperror.ValidationFailed("password", err.Error())
	}

	user := &model.User{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		UserIcon:     model.DefaultUserIcon,
		Location:     loc,
		UserSkills:   []model.SkillID{},
		Portfolio:    []model.PortfolioEntry{},
		History:      model.History{Visited: []string{}},
	}
	// The store's unique indexes catch a sign-up racing this one.
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			return auth.Session{}, err
		}
		s.logger.Error("failed to create user",
			slog.String("username", username),
			slog.String("error", err.Error()),
		)
		return auth.Session{}, fmt.Errorf("creating user: %w", err)
	}

	s.logger.Info("user signed up", slog.String("userID", user.ID), slog.String("username", username))
	return auth.NewSession(user), nil
}

// initialLocation parses the optional sign-up coordinates. The place name
// is best effort here: a geocoder failure must not block sign-up.
func (s *AccountService) initialLocation(ctx context.Context, rawLon, rawLat string) (*model.Location, error) {
	rawLon, rawLat = strings.TrimSpace(rawLon), strings.TrimSpace(rawLat)
	if rawLon == "" && rawLat == "" {
		return nil, nil
	}
	lon, err := strconv.ParseFloat(rawLon, 64)
	if err != nil || lon < -180 || lon > 180 {
		return nil, apperror.ValidationFailed("longitude", "longitude must be a number between -180 and 180")
	}
	lat, err := strconv.ParseFloat(rawLat, 64)
	if err != nil || lat < -90 || lat > 90 {
		return nil, apperror.ValidationFailed("latitude", "latitude must be a number between -90 and 90")
	}

	loc := &model.Location{Geo: model.GeoPoint{Longitude: lon, Latitude: lat}}
	if place, err := s.geo.PlaceName(ctx, lon, lat); err == nil {
		loc.PlaceName = place
	} else {
		s.logger.Warn("sign-up geocoding failed", slog.String("error", err.Error()))
	}
	return loc, nil
}

// LogIn checks an email and password pair.
func (s *AccountService) LogIn(ctx context.Context, email, password string) (auth.Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return auth.Session{}, apperror.Unauthenticated(errBadCredentials)
	}

	user, err := s.users.GetUserByEmail(ctx, email)
	if errors.Is(err, apperror.ErrNotFound) {
		return auth.Session{}, apperror.Unauthenticated(errBadCredentials)
	}
	if err != nil {
		return auth.Session{}, fmt.Errorf("loading user: %w", err)
	}
	// GitHub-only accounts have no password to match.
	if user.PasswordHash == "" {
		return auth.Session{}, apperror.Unauthenticated(errBadCredentials)
	}

	if err := s.hasher.Verify(user.PasswordHash, password); err != nil {
		if !errors.Is(err, auth.ErrPasswordMismatch) {
			s.logger.Error("password check failed",
				slog.String("userID", user.ID),
				slog.String("error", err.Error()),
			)
		}
		return auth.Session{}, apperror.Unauthenticated(errBadCredentials)
	}

	s.logger.Info("user logged in", slog.String("userID", user.ID))
	return auth.NewSession(user), nil
}

// LogInWithGitHub signs in the account linked to gh, creating it on the
// first visit. Later sign-ins leave the profile as the user edited it.
func (s *AccountService) LogInWithGitHub(ctx context.Context, gh *auth.GitHubUser) (auth.Session, error) {
	if gh == nil || gh.ID == 0 {
		return auth.Session{}, apperror.ValidationFailed("github", "GitHub user is required")
	}

	email := strings.ToLower(strings.TrimSpace(gh.Email))
	if email == "" {
		// GitHub's own no-reply form keeps the unique email index satisfied.
		email = fmt.Sprintf("%d+%s@users.noreply.github.com", gh.ID, strings.ToLower(gh.Login))
	}
	icon := gh.AvatarURL
	if icon == "" {
		icon = model.DefaultUserIcon
	}

	user := &model.User{
		Username:   gh.Login,
		Email:      email,
		UserIcon:   icon,
		GitHubID:   gh.ID,
		UserSkills: []model.SkillID{},
		Portfolio:  []model.PortfolioEntry{},
		History:    model.History{Visited: []string{}},
	}
	if err := s.users.UpsertGitHubUser(ctx, user); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			return auth.Session{}, err
		}
		s.logger.Error("GitHub sign-in failed",
			slog.Int64("githubID", gh.ID),
			slog.String("error", err.Error()),
		)
		return auth.Session{}, fmt.Errorf("signing in with GitHub: %w", err)
	}

	s.logger.Info("user logged in with GitHub", slog.String("userID", user.ID), slog.String("login", gh.Login))
	return auth.NewSession(user), nil
}

// Me returns the signed-in user's document.
func (s *AccountService) Me(ctx context.Context, sess *auth.Session) (*model.User, error) {
	sess, err := requireSession(sess)
	if err != nil {
		return nil, err
	}
	return s.users.GetUserByID(ctx, sess.UserID)
}
