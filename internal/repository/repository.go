// Package repository defines the storage contracts the services depend on.
//
// Services only ever see these interfaces. The sqlite and mongo packages each
// provide one implementation, and tests swap in hand-written fakes.
package repository

import (
	"context"
	"time"

	"github.com/sakif/skillbarter/internal/model"
)

// ProfileUpdate is a committed profile change-set. Only non-nil fields are
// written; Attributes are merged key by key into the stored map.
type ProfileUpdate struct {
	Email      *string
	UserIcon   *string
	Location   *model.Location
	Attributes map[string]string
}

// IsEmpty reports whether applying u would write nothing.
func (u ProfileUpdate) IsEmpty() bool {
	return u.Email == nil && u.UserIcon == nil && u.Location == nil && len(u.Attributes) == 0
}

// UserRepository stores user documents.
//
// Every method that names a user by id returns apperror.ErrNotFound when the
// user does not exist. CreateUser returns apperror.ErrConflict (with Field set
// to "username" or "email") on a duplicate.
type UserRepository interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByUsername(ctx context.Context, username string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	// GetUsersByIDs returns the users in the order of ids, skipping ids
	// that no longer exist.
	GetUsersByIDs(ctx context.Context, ids []string) ([]model.User, error)
	ListUsersWithSkill(ctx context.Context, skill model.SkillID) ([]model.User, error)

	ApplyProfileUpdate(ctx context.Context, userID string, update ProfileUpdate) error
	SetVisited(ctx context.Context, userID string, visited []string) error
	AddUserSkill(ctx context.Context, userID string, skill model.SkillID) error
	RemoveUserSkill(ctx context.Context, userID string, skill model.SkillID) error

	SetResetToken(ctx context.Context, userID, token string, at time.Time) error
	GetUserByResetToken(ctx context.Context, token string) (*model.User, error)
	ClearResetToken(ctx context.Context, userID string) error
	SetPassword(ctx context.Context, userID, passwordHash string) error

	// UpsertGitHubUser creates the user on first GitHub sign-in, or loads the
	// existing account with the same GitHubID into user.
	UpsertGitHubUser(ctx context.Context, user *model.User) error
}

// PortfolioRepository edits the per-skill galleries embedded in a user.
type PortfolioRepository interface {
	// AppendPortfolioEntry adds entry to the user's portfolio unless an entry
	// with the same Title already exists, in which case it does nothing.
	AppendPortfolioEntry(ctx context.Context, userID string, entry model.PortfolioEntry) error
	// UpdatePortfolioEntry sets the description of the entry titled skill and
	// appends image to its images when image is not empty. It returns
	// apperror.ErrNotFound when the user has no such entry.
	UpdatePortfolioEntry(ctx context.Context, userID string, skill model.SkillID, description, image string) error
}

// SkillRepository reads skills and categories. The Upsert methods are used by
// the seed command only.
type SkillRepository interface {
	GetSkillByID(ctx context.Context, id model.SkillID) (*model.Skill, error)
	GetSkillByName(ctx context.Context, name string) (*model.Skill, error)
	// GetSkillsByIDs returns the skills in the order of ids, skipping unknown ids.
	GetSkillsByIDs(ctx context.Context, ids []model.SkillID) ([]model.Skill, error)
	ListCategories(ctx context.Context) ([]model.SkillCategory, error)
	GetCategoryByName(ctx context.Context, name string) (*model.SkillCategory, error)
	UpsertSkill(ctx context.Context, skill *model.Skill) error
	UpsertCategory(ctx context.Context, category *model.SkillCategory) error
}

// RatingRepository stores ratings and maintains the ratee's aggregates.
type RatingRepository interface {
	// FindRating returns apperror.ErrNotFound when rater has not rated ratee.
	FindRating(ctx context.Context, raterID, rateeID string) (*model.Rating, error)
	// CreateRating inserts the rating and adds it to the ratee's rateCount and
	// rateValue. A second rating for the same pair returns
	// apperror.ErrConflict and leaves the aggregates untouched.
	CreateRating(ctx context.Context, rating *model.Rating) error
}

// Store is everything a backend provides.
type Store interface {
	UserRepository
	PortfolioRepository
	SkillRepository
	RatingRepository
	Close() error
}
