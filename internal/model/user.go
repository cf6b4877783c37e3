// Package model defines the data structures used throughout the application.
package model

import "time"

// DefaultUserIcon is the icon reference given to every new account until the
// user uploads their own.
const DefaultUserIcon = "v1/skillbarter/default-profile.png"

// User represents a registered person.
//
// The struct mirrors the "users" document: scalar profile fields, the set of
// claimed skills, the per-skill portfolio, the visit history and the rating
// aggregates. Both store implementations load and save this shape, so the
// bson and json tags use the document's field names.
//
// WHY Attributes map[string]string?
// The edit-profile form may carry free-form fields (bio, phone, website...).
// Rather than growing a column per field, those land in one map and are
// merged key by key on update, so an edit never clobbers keys it didn't name.
type User struct {
	ID           string            `json:"id"                   bson:"_id"`
	Username     string            `json:"username"             bson:"username"`
	Email        string            `json:"email"                bson:"email"`
	PasswordHash string            `json:"-"                    bson:"password"`
	IsAdmin      bool              `json:"isAdmin"              bson:"isAdmin"`
	UserIcon     string            `json:"userIcon"             bson:"userIcon"`
	Location     *Location         `json:"userLocation"         bson:"userLocation,omitempty"`
	Attributes   map[string]string `json:"attributes,omitempty" bson:"attributes,omitempty"`
	UserSkills   []SkillID         `json:"userSkills"           bson:"userSkills"`
	Portfolio    []PortfolioEntry  `json:"portfolio"            bson:"portfolio"`
	History      History           `json:"history"              bson:"history"`
	RateValue    int               `json:"rateValue"            bson:"rateValue"`
	RateCount    int               `json:"rateCount"            bson:"rateCount"`
	GitHubID     int64             `json:"-"                    bson:"githubId,omitempty"`
	ResetToken   string            `json:"-"                    bson:"resetToken,omitempty"`
	ResetTokenAt time.Time         `json:"-"                    bson:"resetTokenTimestamp,omitempty"`
	CreatedAt    time.Time         `json:"createdAt"            bson:"createdAt"`
	UpdatedAt    time.Time         `json:"updatedAt"            bson:"updatedAt"`
}

// Location is where the user said they are.
type Location struct {
	Geo       GeoPoint `json:"geo"       bson:"geo"`
	PlaceName string   `json:"placeName" bson:"placeName,omitempty"`
}

// GeoPoint is a longitude/latitude pair in decimal degrees.
type GeoPoint struct {
	Longitude float64 `json:"longitude" bson:"longitude"`
	Latitude  float64 `json:"latitude"  bson:"latitude"`
}

// PortfolioEntry is one skill-specific gallery on a user's profile.
// Title holds the skill's identifier, never a free label.
type PortfolioEntry struct {
	Title       SkillID  `json:"title"       bson:"title"`
	Description string   `json:"description" bson:"description"`
	Images      []string `json:"images"      bson:"images"`
}

// PortfolioEntry returns the entry for the given skill, or false.
// First match wins; the store keeps at most one entry per skill.
func (u *User) PortfolioEntry(skill SkillID) (*PortfolioEntry, bool) {
	for i := range u.Portfolio {
		if u.Portfolio[i].Title == skill {
			return &u.Portfolio[i], true
		}
	}
	return nil, false
}

// HasSkill reports whether the user claims the skill.
func (u *User) HasSkill(skill SkillID) bool {
	for _, s := range u.UserSkills {
		if s == skill {
			return true
		}
	}
	return false
}

// AverageRating is rateValue/rateCount, or 0 for an unrated user.
func (u *User) AverageRating() float64 {
	if u.RateCount == 0 {
		return 0
	}
	return float64(u.RateValue) / float64(u.RateCount)
}

// Card is the summary shown in skill listings and the history page.
type Card struct {
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	UserIcon  string    `json:"userIcon"`
	Location  *Location `json:"userLocation,omitempty"`
	Skills    []Skill   `json:"userSkills"`
	RateValue int       `json:"rateValue"`
	RateCount int       `json:"rateCount"`
}

// CardFor builds a Card for u with the given resolved skills.
func CardFor(u *User, skills []Skill) Card {
	if skills == nil {
		skills = []Skill{}
	}
	return Card{
		Username:  u.Username,
		Email:     u.Email,
		UserIcon:  u.UserIcon,
		Location:  u.Location,
		Skills:    skills,
		RateValue: u.RateValue,
		RateCount: u.RateCount,
	}
}
