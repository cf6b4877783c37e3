package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sakif/skillbarter/internal/apperror"
	"github.com/sakif/skillbarter/internal/auth"
	"github.com/sakif/skillbarter/internal/model"
	"github.com/sakif/skillbarter/internal/repository"
	"github.com/sakif/skillbarter/internal/validation"
)

// RatingService records ratings between users.
type RatingService struct {
	users     repository.UserRepository
	ratings   repository.RatingRepository
	validator *validation.Validator
	logger    *slog.Logger
}

func NewRatingService(users repository.UserRepository, ratings repository.RatingRepository, validator *validation.Validator, logger *slog.Logger) *RatingService {
	return &RatingService{users: users, ratings: ratings, validator: validator, logger: logger}
}

// Add records the caller's rating of rateeUsername.
//
// value must be an integer from 1 to 5. Each rater rates each ratee at most
// once; a second attempt is a Conflict and changes nothing. The ratee's
// rateCount and rateValue move together with the insert.
func (s *RatingService) Add(ctx context.Context, sess *auth.Session, rateeUsername, value string) (*model.Rating, error) {
	sess, err := requireSession(sess)
	if err != nil {
		return nil, err
	}

	n, err := s.validator.Rating(ctx, value)
	if err != nil {
		return nil, err
	}

	ratee, err := s.users.GetUserByUsername(ctx, strings.TrimSpace(rateeUsername))
	if err != nil {
		return nil, err
	}
	if ratee.ID == sess.UserID {
		return nil, apperror.ValidationFailed("ratee", "you cannot rate yourself")
	}

	_, err = s.ratings.FindRating(ctx, sess.UserID, ratee.ID)
	switch {
	case err == nil:
		return nil, apperror.Conflict("rating", ratee.Username)
	case !errors.Is(err, apperror.ErrNotFound):
		return nil, fmt.Errorf("checking existing rating: %w", err)
	}

	rating := &model.Rating{
		RaterID:   sess.UserID,
		RateeID:   ratee.ID,
		Value:     n,
		CreatedAt: time.Now(),
	}
	if err := s.ratings.CreateRating(ctx, rating); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			return nil, err
		}
		s.logger.Error("failed to create rating",
			slog.String("raterID", sess.UserID),
			slog.String("rateeID", ratee.ID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("creating rating: %w", err)
	}

	s.logger.Info("rating added",
		slog.String("raterID", sess.UserID),
		slog.String("rateeID", ratee.ID),
		slog.Int("value", n),
	)
	return rating, nil
}
