package seed

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/sakif/skillbarter/internal/auth"
	sqliteRepo "github.com/sakif/skillbarter/internal/repository/sqlite"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore(t *testing.T) *sqliteRepo.DB {
	t.Helper()
	db, err := sqliteRepo.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestLoad_ShippedCatalogue(t *testing.T) {
	cat, err := Load("../../configs/seed.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, cat.Categories)
	for _, c := range cat.Categories {
		assert.NotEmpty(t, c.Skills, c.Name)
	}
}

func TestLoad_Rejects(t *testing.T) {
	tests := map[string]string{
		"unknown key":       "categories:\n  - name: A\n    colour: red\n",
		"nameless skill":    "categories:\n  - name: A\n    skills:\n      - image: x.png\n",
		"nameless category": "categories:\n  - image: x.png\n",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "seed.yaml")
			require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
			_, err := Load(path)
			assert.Error(t, err)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestApply_Idempotent(t *testing.T) {
	ctx := context.Background()
	db := newTestStore(t)
	cat := &Catalogue{Categories: []Category{
		{Name: "Cooking", Image: "cooking.png", Skills: []Skill{{Name: "Baking"}, {Name: "Grilling"}}},
		{Name: "Music", Skills: []Skill{{Name: "Guitar"}}},
	}}

	first, err := Apply(ctx, db, cat, testLogger())
	require.NoError(t, err)
	require.Len(t, first, 3)

	second, err := Apply(ctx, db, cat, testLogger())
	require.NoError(t, err)
	assert.Equal(t, first, second, "re-seeding keeps ids")

	cats, err := db.ListCategories(ctx)
	require.NoError(t, err)
	assert.Len(t, cats, 2)

	cooking, err := db.GetCategoryByName(ctx, "Cooking")
	require.NoError(t, err)
	assert.Equal(t, []string{first[0].ID.String(), first[1].ID.String()},
		[]string{cooking.Skills[0].String(), cooking.Skills[1].String()})
}

func TestDemoUsers(t *testing.T) {
	ctx := context.Background()
	db := newTestStore(t)
	skills, err := Apply(ctx, db, &Catalogue{Categories: []Category{
		{Name: "Cooking", Skills: []Skill{{Name: "Baking"}, {Name: "Grilling"}}},
	}}, testLogger())
	require.NoError(t, err)

	hasher := auth.NewHasherWithCost(bcrypt.MinCost)
	users, err := DemoUsers(ctx, db, hasher, skills, 5, testLogger())
	require.NoError(t, err)
	require.Len(t, users, 5)

	valid := regexp.MustCompile(`^[A-Za-z0-9]{1,20}$`)
	for _, u := range users {
		assert.Regexp(t, valid, u.Username)

		stored, err := db.GetUserByUsername(ctx, u.Username)
		require.NoError(t, err)
		assert.NoError(t, hasher.Verify(stored.PasswordHash, DemoPassword))
		assert.NotEmpty(t, stored.UserSkills)
		assert.NotEmpty(t, stored.Attributes["about"])
		require.NotNil(t, stored.Location)
	}
}

func TestDemoUsername(t *testing.T) {
	assert.Equal(t, "Anne1", demoUsername("Anne", 0))
	assert.Equal(t, "MaryJane12", demoUsername("Mary-Jane", 11))
	assert.Equal(t, "user3", demoUsername("!!", 2))
	assert.Len(t, demoUsername("Bartholomewvanderberghe", 99), 20)
}
