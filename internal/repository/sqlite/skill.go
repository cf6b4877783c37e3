package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/xid"
	"github.com/sakif/skillbarter/internal/apperror"
	"github.com/sakif/skillbarter/internal/model"
)

func (db *DB) GetSkillByID(ctx context.Context, id model.SkillID) (*model.Skill, error) {
	return db.getSkill(ctx, "id", id.String())
}

func (db *DB) GetSkillByName(ctx context.Context, name string) (*model.Skill, error) {
	return db.getSkill(ctx, "name", name)
}

func (db *DB) getSkill(ctx context.Context, column, value string) (*model.Skill, error) {
	var s model.Skill
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, name, image FROM skills WHERE `+column+` = ?`, value,
	).Scan(&s.ID, &s.Name, &s.Image)
	if err == sql.ErrNoRows {
		return nil, apperror.NotFound("skill", value)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: getting skill by %s: %w", column, err)
	}
	return &s, nil
}

// GetSkillsByIDs runs one IN query and then puts the rows back in the order
// the ids were given.
func (db *DB) GetSkillsByIDs(ctx context.Context, ids []model.SkillID) ([]model.Skill, error) {
	if len(ids) == 0 {
		return []model.Skill{}, nil
	}

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id.String()
	}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, name, image FROM skills WHERE id IN (`+placeholders(len(ids))+`)`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: getting skills: %w", err)
	}
	defer rows.Close()

	byID := make(map[model.SkillID]model.Skill, len(ids))
	for rows.Next() {
		var s model.Skill
		if err := rows.Scan(&s.ID, &s.Name, &s.Image); err != nil {
			return nil, fmt.Errorf("sqlite: scanning skill: %w", err)
		}
		byID[s.ID] = s
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating skills: %w", err)
	}

	skills := make([]model.Skill, 0, len(ids))
	for _, id := range ids {
		if s, ok := byID[id]; ok {
			skills = append(skills, s)
		}
	}
	return skills, nil
}

// ListCategories returns every category with its skill ids, sorted by name.
func (db *DB) ListCategories(ctx context.Context) ([]model.SkillCategory, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, name, image FROM skill_categories ORDER BY name`,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing categories: %w", err)
	}

	categories := []model.SkillCategory{}
	for rows.Next() {
		var c model.SkillCategory
		if err := rows.Scan(&c.ID, &c.Name, &c.Image); err != nil {
			rows.Close()
			return nil, fmt.Errorf("sqlite: scanning category: %w", err)
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("sqlite: iterating categories: %w", err)
	}
	rows.Close()

	for i := range categories {
		skills, err := db.categorySkills(ctx, categories[i].ID)
		if err != nil {
			return nil, err
		}
		categories[i].Skills = skills
	}
	return categories, nil
}

func (db *DB) GetCategoryByName(ctx context.Context, name string) (*model.SkillCategory, error) {
	var c model.SkillCategory
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, name, image FROM skill_categories WHERE name = ?`, name,
	).Scan(&c.ID, &c.Name, &c.Image)
	if err == sql.ErrNoRows {
		return nil, apperror.NotFound("category", name)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: getting category %s: %w", name, err)
	}

	skills, err := db.categorySkills(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	c.Skills = skills
	return &c, nil
}

func (db *DB) categorySkills(ctx context.Context, categoryID string) ([]model.SkillID, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT skill_id FROM category_skills WHERE category_id = ? ORDER BY position`,
		categoryID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: loading skills of category %s: %w", categoryID, err)
	}
	ids, err := scanStrings(rows)
	if err != nil {
		return nil, fmt.Errorf("sqlite: loading skills of category %s: %w", categoryID, err)
	}

	skills := make([]model.SkillID, 0, len(ids))
	for _, id := range ids {
		skills = append(skills, model.SkillID(id))
	}
	return skills, nil
}

// UpsertSkill is keyed on the skill name. A new skill gets an xid; an existing
// one keeps its id and has its image refreshed. skill.ID is set either way.
func (db *DB) UpsertSkill(ctx context.Context, skill *model.Skill) error {
	if skill.ID == "" {
		skill.ID = model.SkillID(xid.New().String())
	}
	err := db.conn.QueryRowContext(ctx,
		`INSERT INTO skills (id, name, image) VALUES (?, ?, ?)
		 ON CONFLICT (name) DO UPDATE SET image = excluded.image
		 RETURNING id`,
		skill.ID.String(), skill.Name, skill.Image,
	).Scan(&skill.ID)
	if err != nil {
		return fmt.Errorf("sqlite: upserting skill %s: %w", skill.Name, err)
	}
	return nil
}

// UpsertCategory is keyed on the category name and replaces its skill list.
func (db *DB) UpsertCategory(ctx context.Context, category *model.SkillCategory) error {
	if category.ID == "" {
		category.ID = xid.New().String()
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: upserting category: %w", err)
	}
	defer rollback(tx)

	err = tx.QueryRowContext(ctx,
		`INSERT INTO skill_categories (id, name, image) VALUES (?, ?, ?)
		 ON CONFLICT (name) DO UPDATE SET image = excluded.image
		 RETURNING id`,
		category.ID, category.Name, category.Image,
	).Scan(&category.ID)
	if err != nil {
		return fmt.Errorf("sqlite: upserting category %s: %w", category.Name, err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM category_skills WHERE category_id = ?`, category.ID,
	); err != nil {
		return fmt.Errorf("sqlite: clearing skills of category %s: %w", category.Name, err)
	}
	for i, skill := range category.Skills {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO category_skills (category_id, skill_id, position) VALUES (?, ?, ?)`,
			category.ID, skill.String(), i,
		); err != nil {
			return fmt.Errorf("sqlite: adding skill %s to category %s: %w", skill, category.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing category %s: %w", category.Name, err)
	}
	return nil
}
