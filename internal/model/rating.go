package model

import "time"

// Rating bounds, inclusive.
const (
	MinRating = 1
	MaxRating = 5
)

// Rating is one user's rating of another. Write-once: there is no update path.
type Rating struct {
	ID        string    `json:"id"        bson:"_id"`
	RaterID   string    `json:"userID"    bson:"userID"`
	RateeID   string    `json:"ratedID"   bson:"ratedID"`
	Value     int       `json:"rateValue" bson:"rateValue"`
	CreatedAt time.Time `json:"date"      bson:"date"`
}
