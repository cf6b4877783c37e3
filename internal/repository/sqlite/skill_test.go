package sqlite

import (
	"context"
	"testing"

	"github.com/sakif/skillbarter/internal/apperror"
	"github.com/sakif/skillbarter/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpsertSkill_KeyedOnName(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	first := createTestSkill(t, db, "Baking")

	again := &model.Skill{Name: "Baking", Image: "new.png"}
	require.NoError(t, db.UpsertSkill(ctx, again))
	assert.Equal(t, first.ID, again.ID, "upsert by name must keep the original id")

	found, err := db.GetSkillByName(ctx, "Baking")
	require.NoError(t, err)
	assert.Equal(t, "new.png", found.Image)

	byID, err := db.GetSkillByID(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "Baking", byID.Name)
}

func TestGetSkill_NotFound(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	_, err := db.GetSkillByName(ctx, "Juggling")
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	_, err = db.GetSkillByID(ctx, "nope")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestGetSkillsByIDs_Order(t *testing.T) {
	db := newTestDB(t)
	a := createTestSkill(t, db, "A")
	b := createTestSkill(t, db, "B")

	skills, err := db.GetSkillsByIDs(context.Background(), []model.SkillID{b.ID, "unknown", a.ID})
	require.NoError(t, err)
	require.Len(t, skills, 2)
	assert.Equal(t, "B", skills[0].Name)
	assert.Equal(t, "A", skills[1].Name)

	empty, err := db.GetSkillsByIDs(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestCategories(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	bake := createTestSkill(t, db, "Baking")
	grill := createTestSkill(t, db, "Grilling")

	cooking := &model.SkillCategory{Name: "Cooking", Image: "cook.png", Skills: []model.SkillID{grill.ID, bake.ID}}
	require.NoError(t, db.UpsertCategory(ctx, cooking))
	require.NoError(t, db.UpsertCategory(ctx, &model.SkillCategory{Name: "Art", Image: "art.png"}))

	all, err := db.ListCategories(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "Art", all[0].Name)
	assert.Equal(t, "Cooking", all[1].Name)
	assert.Equal(t, []model.SkillID{grill.ID, bake.ID}, all[1].Skills)

	// Re-seeding replaces the skill list and keeps the id.
	reseed := &model.SkillCategory{Name: "Cooking", Image: "cook2.png", Skills: []model.SkillID{bake.ID}}
	require.NoError(t, db.UpsertCategory(ctx, reseed))
	assert.Equal(t, cooking.ID, reseed.ID)

	found, err := db.GetCategoryByName(ctx, "Cooking")
	require.NoError(t, err)
	assert.Equal(t, "cook2.png", found.Image)
	assert.Equal(t, []model.SkillID{bake.ID}, found.Skills)

	_, err = db.GetCategoryByName(ctx, "Sports")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}
