package mongodb

import (
	"context"
	"fmt"

	"github.com/sakif/skillbarter/internal/apperror"
	"github.com/sakif/skillbarter/internal/model"
	"go.mongodb.org/mongo-driver/bson"
)

// AppendPortfolioEntry pushes entry only if no element has the same title.
// The title check lives in the filter, so the check and the push are one
// atomic update and concurrent first edits still leave a single entry.
func (db *DB) AppendPortfolioEntry(ctx context.Context, userID string, entry model.PortfolioEntry) error {
	if entry.Images == nil {
		entry.Images = []string{}
	}

	res, err := db.users.UpdateOne(ctx,
		bson.M{"_id": userID, "portfolio.title": bson.M{"$ne": entry.Title.String()}},
		bson.M{"$push": bson.M{"portfolio": entry}},
	)
	if err != nil {
		return fmt.Errorf("mongodb: appending portfolio entry %s for user %s: %w", entry.Title, userID, err)
	}
	if res.MatchedCount > 0 {
		return nil
	}

	// Nothing matched: either the entry already exists, which is fine, or
	// the user doesn't.
	n, err := db.users.CountDocuments(ctx, bson.M{"_id": userID})
	if err != nil {
		return fmt.Errorf("mongodb: checking user %s: %w", userID, err)
	}
	if n == 0 {
		return apperror.NotFound("user", userID)
	}
	return nil
}

// UpdatePortfolioEntry uses the positional operator: "portfolio.$" is the
// first element the filter matched on portfolio.title.
func (db *DB) UpdatePortfolioEntry(ctx context.Context, userID string, skill model.SkillID, description, image string) error {
	update := bson.M{"$set": bson.M{"portfolio.$.description": description}}
	if image != "" {
		update["$push"] = bson.M{"portfolio.$.images": image}
	}

	res, err := db.users.UpdateOne(ctx,
		bson.M{"_id": userID, "portfolio.title": skill.String()},
		update,
	)
	if err != nil {
		return fmt.Errorf("mongodb: updating portfolio entry %s for user %s: %w", skill, userID, err)
	}
	return matched(res, "portfolio entry", skill.String())
}
