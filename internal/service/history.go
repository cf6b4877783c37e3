package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sakif/skillbarter/internal/apperror"
	"github.com/sakif/skillbarter/internal/auth"
	"github.com/sakif/skillbarter/internal/model"
	"github.com/sakif/skillbarter/internal/repository"
)

// HistoryService records and lists the profiles a user has visited.
type HistoryService struct {
	users  repository.UserRepository
	skills repository.SkillRepository
	tasks  Submitter
	logger *slog.Logger
}

func NewHistoryService(users repository.UserRepository, skills repository.SkillRepository, tasks Submitter, logger *slog.Logger) *HistoryService {
	return &HistoryService{users: users, skills: skills, tasks: tasks, logger: logger}
}

// RecordVisit moves vieweeID to the front of viewerID's visited list in the
// background. Viewing your own profile records nothing.
//
// The page render never waits for this and never sees its errors: history
// is advisory, so a failed or dropped write is only logged. Two visits
// racing can lose one entry.
func (s *HistoryService) RecordVisit(_ context.Context, viewerID, vieweeID string) {
	if viewerID == "" || viewerID == vieweeID {
		return
	}

	err := s.tasks.Submit("record-visit", func(ctx context.Context) error {
		viewer, err := s.users.GetUserByID(ctx, viewerID)
		if err != nil {
			return fmt.Errorf("loading viewer %s: %w", viewerID, err)
		}
		visited := model.PushVisited(viewer.History.Visited, vieweeID, model.MaxVisited)
		if err := s.users.SetVisited(ctx, viewerID, visited); err != nil {
			return fmt.Errorf("saving history of %s: %w", viewerID, err)
		}
		return nil
	})
	if err != nil {
		s.logger.Warn("visit not recorded",
			slog.String("viewerID", viewerID),
			slog.String("error", err.Error()),
		)
	}
}

// List returns cards for the users in the caller's history, most recent
// first. "visited" is the only filter.
func (s *HistoryService) List(ctx context.Context, sess *auth.Session, filter string) ([]model.Card, error) {
	sess, err := requireSession(sess)
	if err != nil {
		return nil, err
	}
	if filter != model.HistoryVisited {
		return nil, apperror.NotFound("history", filter)
	}

	user, err := s.users.GetUserByID(ctx, sess.UserID)
	if err != nil {
		return nil, err
	}
	if len(user.History.Visited) == 0 {
		return []model.Card{}, nil
	}

	visited, err := s.users.GetUsersByIDs(ctx, user.History.Visited)
	if err != nil {
		return nil, fmt.Errorf("loading visited users: %w", err)
	}
	return cardsFor(ctx, s.skills, visited)
}
