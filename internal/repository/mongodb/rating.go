package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/skillbarter/internal/apperror"
	"github.com/sakif/skillbarter/internal/model"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

func (db *DB) FindRating(ctx context.Context, raterID, rateeID string) (*model.Rating, error) {
	var r model.Rating
	err := db.ratings.FindOne(ctx, bson.M{"userID": raterID, "ratedID": rateeID}).Decode(&r)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperror.NotFound("rating", raterID+"/"+rateeID)
	}
	if err != nil {
		return nil, fmt.Errorf("mongodb: finding rating %s/%s: %w", raterID, rateeID, err)
	}
	return &r, nil
}

// CreateRating inserts the rating, then $inc's the ratee's aggregates.
//
// The unique (userID, ratedID) index lets exactly one concurrent insert for a
// pair through; the others get a duplicate-key error and never reach the $inc.
// The two writes are not one transaction: if the $inc fails the rating row
// is deleted again, so the pair can be retried instead of conflicting.
func (db *DB) CreateRating(ctx context.Context, rating *model.Rating) error {
	if rating.ID == "" {
		rating.ID = xid.New().String()
	}
	if rating.CreatedAt.IsZero() {
		rating.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)
	}

	n, err := db.users.CountDocuments(ctx, bson.M{"_id": rating.RateeID})
	if err != nil {
		return fmt.Errorf("mongodb: checking user %s: %w", rating.RateeID, err)
	}
	if n == 0 {
		return apperror.NotFound("user", rating.RateeID)
	}

	_, err = db.ratings.InsertOne(ctx, rating)
	if mongo.IsDuplicateKeyError(err) {
		return apperror.Conflict("rating", rating.RaterID+"/"+rating.RateeID)
	}
	if err != nil {
		return fmt.Errorf("mongodb: inserting rating: %w", err)
	}

	err = db.updateUser(ctx, rating.RateeID, bson.M{"$inc": bson.M{
		"rateCount": 1,
		"rateValue": rating.Value,
	}})
	if err == nil {
		return nil
	}

	undoCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if _, derr := db.ratings.DeleteOne(undoCtx, bson.M{"_id": rating.ID}); derr != nil {
		return errors.Join(err, fmt.Errorf("mongodb: removing rating %s: %w", rating.ID, derr))
	}
	return err
}
