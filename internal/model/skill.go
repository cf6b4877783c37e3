package model

// SkillID identifies a skill. It is a distinct type so a portfolio title can't
// be confused with a display label; it turns into a plain string only where a
// store writes it.
type SkillID string

// String returns the stored form of the id.
func (id SkillID) String() string { return string(id) }

// Skill is a nameable ability. Read-mostly: only the seed command writes skills.
type Skill struct {
	ID    SkillID `json:"id"    bson:"_id"`
	Name  string  `json:"name"  bson:"name"`
	Image string  `json:"image" bson:"image"`
}

// SkillCategory groups skills under a named, imaged heading.
type SkillCategory struct {
	ID     string    `json:"id"        bson:"_id"`
	Name   string    `json:"name"      bson:"name"`
	Image  string    `json:"image"     bson:"image"`
	Skills []SkillID `json:"catSkills" bson:"catSkills"`
}
