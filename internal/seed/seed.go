// Package seed loads the skill catalogue from YAML and can fill a fresh
// store with demo users.
package seed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/jaswdr/faker"
	"gopkg.in/yaml.v3"

	"github.com/sakif/skillbarter/internal/apperror"
	"github.com/sakif/skillbarter/internal/auth"
	"github.com/sakif/skillbarter/internal/model"
	"github.com/sakif/skillbarter/internal/repository"
)

// DemoPassword is the password every demo user gets.
const DemoPassword = "barter123"

// Catalogue is the seed file.
type Catalogue struct {
	Categories []Category `yaml:"categories"`
}

type Category struct {
	Name   string  `yaml:"name"`
	Image  string  `yaml:"image"`
	Skills []Skill `yaml:"skills"`
}

type Skill struct {
	Name  string `yaml:"name"`
	Image string `yaml:"image"`
}

// Load reads and checks a seed file.
func Load(path string) (*Catalogue, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("seed: opening %s: %w", path, err)
	}
	defer f.Close()

	var cat Catalogue
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cat); err != nil {
		return nil, fmt.Errorf("seed: decoding %s: %w", path, err)
	}

	for _, c := range cat.Categories {
		if strings.TrimSpace(c.Name) == "" {
			return nil, fmt.Errorf("seed: %s: category without a name", path)
		}
		for _, s := range c.Skills {
			if strings.TrimSpace(s.Name) == "" {
				return nil, fmt.Errorf("seed: %s: skill without a name in category %s", path, c.Name)
			}
		}
	}
	return &cat, nil
}

// Apply upserts every skill and category. Running it twice changes nothing
// the second time. It returns the skills in file order.
func Apply(ctx context.Context, skills repository.SkillRepository, cat *Catalogue, logger *slog.Logger) ([]model.Skill, error) {
	var all []model.Skill
	for _, c := range cat.Categories {
		category := &model.SkillCategory{Name: c.Name, Image: c.Image}
		for _, s := range c.Skills {
			skill := &model.Skill{Name: s.Name, Image: s.Image}
			if err := skills.UpsertSkill(ctx, skill); err != nil {
				return nil, err
			}
			category.Skills = append(category.Skills, skill.ID)
			all = append(all, *skill)
		}
		if err := skills.UpsertCategory(ctx, category); err != nil {
			return nil, err
		}
		logger.Info("seeded category",
			slog.String("category", c.Name),
			slog.Int("skills", len(c.Skills)),
		)
	}
	return all, nil
}

var nonAlnum = regexp.MustCompile(`[^A-Za-z0-9]`)

var abouts = []string{
	"Happy to trade %s lessons",
	"Been doing %s for years",
	"Looking for someone to swap %s with",
	"Weekend %s enthusiast",
	"Can teach the basics of %s",
}

// DemoUsers creates n users with faker names, a location, an about line and
// up to three of the given skills. They all share DemoPassword.
func DemoUsers(ctx context.Context, users repository.UserRepository, hasher *auth.Hasher, skills []model.Skill, n int, logger *slog.Logger) ([]model.User, error) {
	fake := faker.New()

	hash, err := hasher.Hash(DemoPassword)
	if err != nil {
		return nil, fmt.Errorf("seed: hashing demo password: %w", err)
	}

	created := make([]model.User, 0, n)
	for i := 0; i < n; i++ {
		u := &model.User{
			Username:     demoUsername(fake.Person().FirstName(), i),
			PasswordHash: hash,
			UserIcon:     model.DefaultUserIcon,
			Location: &model.Location{
				Geo: model.GeoPoint{
					Longitude: fake.Address().Longitude(),
					Latitude:  fake.Address().Latitude(),
				},
				PlaceName: fake.Address().City(),
			},
		}
		u.Email = strings.ToLower(u.Username) + "@demo.skillbarter.local"

		var claimed []model.Skill
		if len(skills) > 0 {
			for j := 0; j < fake.IntBetween(1, 3); j++ {
				claimed = append(claimed, skills[fake.IntBetween(0, len(skills)-1)])
			}
			u.Attributes = map[string]string{
				"about": fmt.Sprintf(abouts[fake.IntBetween(0, len(abouts)-1)], claimed[0].Name),
			}
		}

		if err := users.CreateUser(ctx, u); err != nil {
			if errors.Is(err, apperror.ErrConflict) {
				logger.Warn("demo user already exists, skipping", slog.String("username", u.Username))
				continue
			}
			return created, fmt.Errorf("seed: creating demo user %s: %w", u.Username, err)
		}
		for _, s := range claimed {
			if err := users.AddUserSkill(ctx, u.ID, s.ID); err != nil {
				return created, err
			}
			u.UserSkills = appendUnique(u.UserSkills, s.ID)
		}
		created = append(created, *u)
	}

	logger.Info("created demo users", slog.Int("count", len(created)))
	return created, nil
}

// demoUsername makes an alphanumeric name of at most 20 characters that is
// unique within one run.
func demoUsername(first string, i int) string {
	suffix := strconv.Itoa(i + 1)
	base := nonAlnum.ReplaceAllString(first, "")
	if base == "" {
		base = "user"
	}
	if max := 20 - len(suffix); len(base) > max {
		base = base[:max]
	}
	return base + suffix
}

func appendUnique(ids []model.SkillID, id model.SkillID) []model.SkillID {
	for _, have := range ids {
		if have == id {
			return ids
		}
	}
	return append(ids, id)
}
