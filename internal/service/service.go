// Package service contains the business rules of skillbarter.
//
// Handlers parse HTTP and render; repositories read and write documents.
// Everything in between lives here: which fields a profile edit may touch,
// how a portfolio entry is created, when a rating is accepted. Services take
// plain values and repository interfaces, so tests drive them with in-memory
// fakes and no HTTP at all.
//
// Errors leave this package as *apperror.AppError values (or wrap one), and
// the handler layer turns the sentinel into a status code or redirect.
package service

import (
	"context"
	"fmt"
	"io"

	"github.com/sakif/skillbarter/internal/apperror"
	"github.com/sakif/skillbarter/internal/auth"
	"github.com/sakif/skillbarter/internal/model"
	"github.com/sakif/skillbarter/internal/repository"
	"github.com/sakif/skillbarter/internal/worker"
)

// Upload is a file received from a multipart form.
type Upload struct {
	Filename string
	File     io.Reader
}

// Submitter queues background work. *worker.Pool implements it.
type Submitter interface {
	Submit(name string, fn worker.Task) error
}

// requireSession returns the caller's session or an Unauthenticated error.
func requireSession(sess *auth.Session) (*auth.Session, error) {
	if sess == nil || sess.UserID == "" {
		return nil, apperror.Unauthenticated("you must be signed in")
	}
	return sess, nil
}

// cardsFor turns users into cards, resolving each user's skill ids.
// Skills shared between users are fetched once.
func cardsFor(ctx context.Context, skills repository.SkillRepository, users []model.User) ([]model.Card, error) {
	seen := make(map[model.SkillID]bool)
	var ids []model.SkillID
	for _, u := range users {
		for _, id := range u.UserSkills {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}

	byID := make(map[model.SkillID]model.Skill, len(ids))
	if len(ids) > 0 {
		found, err := skills.GetSkillsByIDs(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("loading skills: %w", err)
		}
		for _, s := range found {
			byID[s.ID] = s
		}
	}

	cards := make([]model.Card, 0, len(users))
	for i := range users {
		var userSkills []model.Skill
		for _, id := range users[i].UserSkills {
			if s, ok := byID[id]; ok {
				userSkills = append(userSkills, s)
			}
		}
		cards = append(cards, model.CardFor(&users[i], userSkills))
	}
	return cards, nil
}
