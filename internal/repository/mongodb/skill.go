package mongodb

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/xid"
	"github.com/sakif/skillbarter/internal/apperror"
	"github.com/sakif/skillbarter/internal/model"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func (db *DB) GetSkillByID(ctx context.Context, id model.SkillID) (*model.Skill, error) {
	return db.findSkill(ctx, bson.M{"_id": id.String()}, id.String())
}

func (db *DB) GetSkillByName(ctx context.Context, name string) (*model.Skill, error) {
	return db.findSkill(ctx, bson.M{"name": name}, name)
}

func (db *DB) findSkill(ctx context.Context, filter bson.M, key string) (*model.Skill, error) {
	var s model.Skill
	err := db.skills.FindOne(ctx, filter).Decode(&s)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperror.NotFound("skill", key)
	}
	if err != nil {
		return nil, fmt.Errorf("mongodb: finding skill %s: %w", key, err)
	}
	return &s, nil
}

func (db *DB) GetSkillsByIDs(ctx context.Context, ids []model.SkillID) ([]model.Skill, error) {
	if len(ids) == 0 {
		return []model.Skill{}, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = id.String()
	}

	cur, err := db.skills.Find(ctx, bson.M{"_id": bson.M{"$in": keys}})
	if err != nil {
		return nil, fmt.Errorf("mongodb: finding skills: %w", err)
	}
	var found []model.Skill
	if err := cur.All(ctx, &found); err != nil {
		return nil, fmt.Errorf("mongodb: decoding skills: %w", err)
	}

	byID := make(map[model.SkillID]model.Skill, len(found))
	for _, s := range found {
		byID[s.ID] = s
	}
	skills := make([]model.Skill, 0, len(ids))
	for _, id := range ids {
		if s, ok := byID[id]; ok {
			skills = append(skills, s)
		}
	}
	return skills, nil
}

func (db *DB) ListCategories(ctx context.Context) ([]model.SkillCategory, error) {
	cur, err := db.categories.Find(ctx, bson.M{},
		options.Find().SetSort(bson.D{{Key: "name", Value: 1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("mongodb: listing categories: %w", err)
	}
	categories := []model.SkillCategory{}
	if err := cur.All(ctx, &categories); err != nil {
		return nil, fmt.Errorf("mongodb: decoding categories: %w", err)
	}
	for i := range categories {
		if categories[i].Skills == nil {
			categories[i].Skills = []model.SkillID{}
		}
	}
	return categories, nil
}

func (db *DB) GetCategoryByName(ctx context.Context, name string) (*model.SkillCategory, error) {
	var c model.SkillCategory
	err := db.categories.FindOne(ctx, bson.M{"name": name}).Decode(&c)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperror.NotFound("category", name)
	}
	if err != nil {
		return nil, fmt.Errorf("mongodb: finding category %s: %w", name, err)
	}
	if c.Skills == nil {
		c.Skills = []model.SkillID{}
	}
	return &c, nil
}

// UpsertSkill is keyed on name; $setOnInsert keeps the id of an existing skill.
func (db *DB) UpsertSkill(ctx context.Context, skill *model.Skill) error {
	if skill.ID == "" {
		skill.ID = model.SkillID(xid.New().String())
	}
	err := db.skills.FindOneAndUpdate(ctx,
		bson.M{"name": skill.Name},
		bson.M{
			"$set":         bson.M{"image": skill.Image},
			"$setOnInsert": bson.M{"_id": skill.ID.String()},
		},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(skill)
	if err != nil {
		return fmt.Errorf("mongodb: upserting skill %s: %w", skill.Name, err)
	}
	return nil
}

// UpsertCategory is keyed on name and replaces the category's skill list.
func (db *DB) UpsertCategory(ctx context.Context, category *model.SkillCategory) error {
	if category.ID == "" {
		category.ID = xid.New().String()
	}
	skills := make([]string, len(category.Skills))
	for i, s := range category.Skills {
		skills[i] = s.String()
	}

	err := db.categories.FindOneAndUpdate(ctx,
		bson.M{"name": category.Name},
		bson.M{
			"$set":         bson.M{"image": category.Image, "catSkills": skills},
			"$setOnInsert": bson.M{"_id": category.ID},
		},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(category)
	if err != nil {
		return fmt.Errorf("mongodb: upserting category %s: %w", category.Name, err)
	}
	return nil
}
