package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sakif/skillbarter/internal/apperror"
	"github.com/sakif/skillbarter/internal/auth"
	"github.com/sakif/skillbarter/internal/mailer"
	"github.com/sakif/skillbarter/internal/model"
	"github.com/sakif/skillbarter/internal/repository"
	"github.com/sakif/skillbarter/internal/validation"
)

// ResetTokenTTL is how long a password-reset link stays valid.
const ResetTokenTTL = 5 * time.Minute

// PasswordService runs the forgotten-password flow.
type PasswordService struct {
	users     repository.UserRepository
	hasher    *auth.Hasher
	validator *validation.Validator
	mail      mailer.Sender
	tasks     Submitter
	baseURL   string
	now       func() time.Time
	logger    *slog.Logger
}

func NewPasswordService(
	users repository.UserRepository,
	hasher *auth.Hasher,
	validator *validation.Validator,
	mail mailer.Sender,
	tasks Submitter,
	baseURL string,
	logger *slog.Logger,
) *PasswordService {
	return &PasswordService{
		users:     users,
		hasher:    hasher,
		validator: validator,
		mail:      mail,
		tasks:     tasks,
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		now:       time.Now,
		logger:    logger,
	}
}

// RequestReset stores a fresh token on the account registered to email and
// mails a link to it. An unknown email gets the same silent success, so the
// form can't be used to probe for accounts. The mail is sent in the
// background.
func (s *PasswordService) RequestReset(ctx context.Context, email string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return apperror.ValidationFailed("email", "email is required")
	}

	user, err := s.users.GetUserByEmail(ctx, email)
	if errors.Is(err, apperror.ErrNotFound) {
		s.logger.Info("password reset requested for unknown email")
		return nil
	}
	if err != nil {
		return fmt.Errorf("loading user: %w", err)
	}

	token := uuid.NewString()
	if err := s.users.SetResetToken(ctx, user.ID, token, s.now()); err != nil {
		s.logger.Error("failed to store reset token",
			slog.String("userID", user.ID),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("storing reset token: %w", err)
	}

	link := s.baseURL + "/passwordReset/" + token
	body := fmt.Sprintf("Hi %s,\n\nFollow this link within %d minutes to choose a new password:\n\n%s\n\nIf you didn't ask for this, ignore this email.\n",
		user.Username, int(ResetTokenTTL.Minutes()), link)
	to := user.Email

	if err := s.tasks.Submit("reset-mail", func(ctx context.Context) error {
		return s.mail.Send(ctx, to, "Password Reset", body)
	}); err != nil {
		return fmt.Errorf("queueing reset mail: %w", err)
	}

	s.logger.Info("password reset requested", slog.String("userID", user.ID))
	return nil
}

// CheckToken reports whether token may still be used. An expired token is
// cleared so it can't be tried again.
func (s *PasswordService) CheckToken(ctx context.Context, token string) error {
	_, err := s.activeTokenUser(ctx, token)
	return err
}

// Reset sets a new password for the account holding token.
func (s *PasswordService) Reset(ctx context.Context, token, password, confirm string) error {
	user, err := s.activeTokenUser(ctx, token)
	if err != nil {
		return err
	}

	if password == "" {
		return apperror.ValidationFailed("password", "password is required")
	}
	if password != confirm {
		return apperror.ValidationFailed("confirm", "passwords do not match")
	}
	if err := s.validator.Account(ctx, "", "", password); err != nil {
		return err
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return apperror.ValidationFailed("password", err.Error())
	}
	if err := s.users.SetPassword(ctx, user.ID, hash); err != nil {
		return fmt.Errorf("setting password: %w", err)
	}
	if err := s.users.ClearResetToken(ctx, user.ID); err != nil {
		return fmt.Errorf("clearing reset token: %w", err)
	}

	s.logger.Info("password reset", slog.String("userID", user.ID))
	return nil
}

func (s *PasswordService) activeTokenUser(ctx context.Context, token string) (*model.User, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, apperror.NotFound("reset token", "")
	}

	user, err := s.users.GetUserByResetToken(ctx, token)
	if err != nil {
		return nil, err
	}

	if s.now().Sub(user.ResetTokenAt) > ResetTokenTTL {
		if err := s.users.ClearResetToken(ctx, user.ID); err != nil {
			s.logger.Error("failed to clear expired reset token",
				slog.String("userID", user.ID),
				slog.String("error", err.Error()),
			)
		}
		return nil, apperror.ValidationFailed("token", "this reset link has expired")
	}
	return user, nil
}
