package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/rs/xid"
	"github.com/stretchr/testify/require"

	"github.com/sakif/skillbarter/internal/apperror"
	"github.com/sakif/skillbarter/internal/auth"
	"github.com/sakif/skillbarter/internal/model"
	"github.com/sakif/skillbarter/internal/repository"
	"github.com/sakif/skillbarter/internal/validation"
	"github.com/sakif/skillbarter/internal/worker"
)

// =========================================================================
// FAKE STORE
// =========================================================================
//
// fakeStore keeps every document in maps and implements repository.Store.
// It copies on the way in and out, so a test can't mutate stored state by
// accident, and counts writes so "no mutation" can be asserted directly.

type fakeStore struct {
	mu         sync.Mutex
	users      map[string]*model.User
	skills     map[model.SkillID]*model.Skill
	categories map[string]*model.SkillCategory
	ratings    map[[2]string]*model.Rating
	writes     int
	// failApply makes ApplyProfileUpdate return this error.
	failApply error
}

var _ repository.Store = (*fakeStore)(nil)

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:      make(map[string]*model.User),
		skills:     make(map[model.SkillID]*model.Skill),
		categories: make(map[string]*model.SkillCategory),
		ratings:    make(map[[2]string]*model.Rating),
	}
}

func cloneUser(u *model.User) *model.User {
	c := *u
	c.UserSkills = append([]model.SkillID{}, u.UserSkills...)
	c.History.Visited = append([]string{}, u.History.Visited...)
	c.Portfolio = make([]model.PortfolioEntry, len(u.Portfolio))
	for i, e := range u.Portfolio {
		e.Images = append([]string{}, e.Images...)
		c.Portfolio[i] = e
	}
	if u.Attributes != nil {
		c.Attributes = make(map[string]string, len(u.Attributes))
		for k, v := range u.Attributes {
			c.Attributes[k] = v
		}
	}
	if u.Location != nil {
		loc := *u.Location
		c.Location = &loc
	}
	return &c
}

func (f *fakeStore) user(id string) (*model.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	return u, nil
}

func (f *fakeStore) findUser(match func(*model.User) bool, key string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if match(u) {
			return cloneUser(u), nil
		}
	}
	return nil, apperror.NotFound("user", key)
}

func (f *fakeStore) CreateUser(_ context.Context, user *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Username == user.Username {
			return apperror.Duplicate("username")
		}
		if u.Email == user.Email {
			return apperror.Duplicate("email")
		}
	}
	if user.ID == "" {
		user.ID = xid.New().String()
	}
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	f.users[user.ID] = cloneUser(user)
	f.writes++
	return nil
}

func (f *fakeStore) GetUserByID(_ context.Context, id string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, err := f.user(id)
	if err != nil {
		return nil, err
	}
	return cloneUser(u), nil
}

func (f *fakeStore) GetUserByUsername(_ context.Context, username string) (*model.User, error) {
	return f.findUser(func(u *model.User) bool { return u.Username == username }, username)
}

func (f *fakeStore) GetUserByEmail(_ context.Context, email string) (*model.User, error) {
	return f.findUser(func(u *model.User) bool { return u.Email == email }, email)
}

func (f *fakeStore) GetUserByResetToken(_ context.Context, token string) (*model.User, error) {
	return f.findUser(func(u *model.User) bool { return u.ResetToken != "" && u.ResetToken == token }, token)
}

func (f *fakeStore) GetUsersByIDs(_ context.Context, ids []string) ([]model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []model.User{}
	for _, id := range ids {
		if u, ok := f.users[id]; ok {
			out = append(out, *cloneUser(u))
		}
	}
	return out, nil
}

func (f *fakeStore) ListUsersWithSkill(_ context.Context, skill model.SkillID) ([]model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []model.User{}
	for _, u := range f.users {
		if u.HasSkill(skill) {
			out = append(out, *cloneUser(u))
		}
	}
	return out, nil
}

func (f *fakeStore) ApplyProfileUpdate(_ context.Context, userID string, update repository.ProfileUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failApply != nil {
		return f.failApply
	}
	u, err := f.user(userID)
	if err != nil {
		return err
	}
	if update.Email != nil {
		u.Email = *update.Email
	}
	if update.UserIcon != nil {
		u.UserIcon = *update.UserIcon
	}
	if update.Location != nil {
		loc := *update.Location
		u.Location = &loc
	}
	if len(update.Attributes) > 0 && u.Attributes == nil {
		u.Attributes = make(map[string]string)
	}
	for k, v := range update.Attributes {
		u.Attributes[k] = v
	}
	f.writes++
	return nil
}

func (f *fakeStore) SetVisited(_ context.Context, userID string, visited []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, err := f.user(userID)
	if err != nil {
		return err
	}
	u.History.Visited = append([]string{}, visited...)
	f.writes++
	return nil
}

func (f *fakeStore) AddUserSkill(_ context.Context, userID string, skill model.SkillID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, err := f.user(userID)
	if err != nil {
		return err
	}
	if !u.HasSkill(skill) {
		u.UserSkills = append(u.UserSkills, skill)
	}
	f.writes++
	return nil
}

func (f *fakeStore) RemoveUserSkill(_ context.Context, userID string, skill model.SkillID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, err := f.user(userID)
	if err != nil {
		return err
	}
	kept := u.UserSkills[:0]
	for _, s := range u.UserSkills {
		if s != skill {
			kept = append(kept, s)
		}
	}
	u.UserSkills = kept
	f.writes++
	return nil
}

func (f *fakeStore) SetResetToken(_ context.Context, userID, token string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, err := f.user(userID)
	if err != nil {
		return err
	}
	u.ResetToken, u.ResetTokenAt = token, at
	f.writes++
	return nil
}

func (f *fakeStore) ClearResetToken(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, err := f.user(userID)
	if err != nil {
		return err
	}
	u.ResetToken, u.ResetTokenAt = "", time.Time{}
	f.writes++
	return nil
}

func (f *fakeStore) SetPassword(_ context.Context, userID, passwordHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, err := f.user(userID)
	if err != nil {
		return err
	}
	u.PasswordHash = passwordHash
	f.writes++
	return nil
}

func (f *fakeStore) UpsertGitHubUser(ctx context.Context, user *model.User) error {
	f.mu.Lock()
	for _, u := range f.users {
		if u.GitHubID == user.GitHubID {
			*user = *cloneUser(u)
			f.mu.Unlock()
			return nil
		}
	}
	f.mu.Unlock()
	return f.CreateUser(ctx, user)
}

func (f *fakeStore) AppendPortfolioEntry(_ context.Context, userID string, entry model.PortfolioEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, err := f.user(userID)
	if err != nil {
		return err
	}
	if _, ok := u.PortfolioEntry(entry.Title); ok {
		return nil
	}
	entry.Images = append([]string{}, entry.Images...)
	u.Portfolio = append(u.Portfolio, entry)
	f.writes++
	return nil
}

func (f *fakeStore) UpdatePortfolioEntry(_ context.Context, userID string, skill model.SkillID, description, image string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, err := f.user(userID)
	if err != nil {
		return err
	}
	e, ok := u.PortfolioEntry(skill)
	if !ok {
		return apperror.NotFound("portfolio entry", skill.String())
	}
	e.Description = description
	if image != "" {
		e.Images = append(e.Images, image)
	}
	f.writes++
	return nil
}

func (f *fakeStore) GetSkillByID(_ context.Context, id model.SkillID) (*model.Skill, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.skills[id]
	if !ok {
		return nil, apperror.NotFound("skill", id.String())
	}
	c := *s
	return &c, nil
}

func (f *fakeStore) GetSkillByName(_ context.Context, name string) (*model.Skill, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.skills {
		if s.Name == name {
			c := *s
			return &c, nil
		}
	}
	return nil, apperror.NotFound("skill", name)
}

func (f *fakeStore) GetSkillsByIDs(_ context.Context, ids []model.SkillID) ([]model.Skill, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []model.Skill{}
	for _, id := range ids {
		if s, ok := f.skills[id]; ok {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (f *fakeStore) ListCategories(_ context.Context) ([]model.SkillCategory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []model.SkillCategory{}
	for _, c := range f.categories {
		out = append(out, *c)
	}
	return out, nil
}

func (f *fakeStore) GetCategoryByName(_ context.Context, name string) (*model.SkillCategory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.categories {
		if c.Name == name {
			cc := *c
			return &cc, nil
		}
	}
	return nil, apperror.NotFound("category", name)
}

func (f *fakeStore) UpsertSkill(_ context.Context, skill *model.Skill) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.skills {
		if s.Name == skill.Name {
			skill.ID = s.ID
		}
	}
	if skill.ID == "" {
		skill.ID = model.SkillID(xid.New().String())
	}
	c := *skill
	f.skills[skill.ID] = &c
	return nil
}

func (f *fakeStore) UpsertCategory(_ context.Context, category *model.SkillCategory) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if category.ID == "" {
		category.ID = xid.New().String()
	}
	c := *category
	f.categories[category.ID] = &c
	return nil
}

func (f *fakeStore) FindRating(_ context.Context, raterID, rateeID string) (*model.Rating, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.ratings[[2]string{raterID, rateeID}]
	if !ok {
		return nil, apperror.NotFound("rating", raterID+"/"+rateeID)
	}
	c := *r
	return &c, nil
}

func (f *fakeStore) CreateRating(_ context.Context, rating *model.Rating) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := [2]string{rating.RaterID, rating.RateeID}
	if _, ok := f.ratings[key]; ok {
		return apperror.Conflict("rating", rating.RateeID)
	}
	ratee, err := f.user(rating.RateeID)
	if err != nil {
		return err
	}
	if rating.ID == "" {
		rating.ID = xid.New().String()
	}
	c := *rating
	f.ratings[key] = &c
	ratee.RateCount++
	ratee.RateValue += rating.Value
	f.writes++
	return nil
}

func (f *fakeStore) Close() error { return nil }

func (f *fakeStore) writeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writes
}

// =========================================================================
// FAKE COLLABORATORS
// =========================================================================

// inlineTasks runs submitted tasks immediately, so background writes are
// visible as soon as the service call returns.
type inlineTasks struct {
	err error
}

func (t *inlineTasks) Submit(_ string, fn worker.Task) error {
	if t.err != nil {
		return t.err
	}
	return fn(context.Background())
}

type fakeGeo struct {
	place string
	err   error
	calls int
}

func (g *fakeGeo) PlaceName(_ context.Context, _, _ float64) (string, error) {
	g.calls++
	return g.place, g.err
}

type fakeImages struct {
	mu      sync.Mutex
	err     error
	uploads []string
}

func (h *fakeImages) Upload(_ context.Context, file io.Reader, filename string) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.err != nil {
		return "", h.err
	}
	if _, err := io.ReadAll(file); err != nil {
		return "", err
	}
	h.uploads = append(h.uploads, filename)
	return "v1/skillbarter/" + filename, nil
}

func (h *fakeImages) URL(ref string) string { return "https://img.example/" + ref }

type sentMail struct{ to, subject, body string }

type fakeMailer struct {
	mu   sync.Mutex
	sent []sentMail
}

func (m *fakeMailer) Send(_ context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMail{to, subject, body})
	return nil
}

var errStoreDown = errors.New("store unavailable")

// =========================================================================
// HELPERS
// =========================================================================

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testValidator(t *testing.T) *validation.Validator {
	t.Helper()
	v, err := validation.New()
	require.NoError(t, err)
	return v
}

// addUser stores a user with the given username and returns its session.
func addUser(t *testing.T, store *fakeStore, username string) *auth.Session {
	t.Helper()
	u := &model.User{
		Username:   username,
		Email:      username + "@example.com",
		UserIcon:   model.DefaultUserIcon,
		UserSkills: []model.SkillID{},
		Portfolio:  []model.PortfolioEntry{},
	}
	require.NoError(t, store.CreateUser(context.Background(), u))
	sess := auth.NewSession(u)
	return &sess
}

func addSkill(t *testing.T, store *fakeStore, name string) *model.Skill {
	t.Helper()
	s := &model.Skill{Name: name, Image: name + ".png"}
	require.NoError(t, store.UpsertSkill(context.Background(), s))
	return s
}

func storedUser(t *testing.T, store *fakeStore, id string) *model.User {
	t.Helper()
	u, err := store.GetUserByID(context.Background(), id)
	require.NoError(t, err)
	return u
}
