// Package mongodb implements the repository interfaces on MongoDB.
//
// The layout is the document shape the service was first built on: one
// "users" document per person with skills, portfolio and history embedded,
// plus "skills", "skillCats" and "ratings" collections. Every write to a user
// is a single-document update operator ($set, $push, $addToSet, $pull, $inc),
// which MongoDB applies atomically.
package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	usersCollection      = "users"
	skillsCollection     = "skills"
	categoriesCollection = "skillCats"
	ratingsCollection    = "ratings"
)

// DB holds the client and the four collections.
type DB struct {
	client     *mongo.Client
	users      *mongo.Collection
	skills     *mongo.Collection
	categories *mongo.Collection
	ratings    *mongo.Collection
}

// New connects to uri, selects database and makes sure the unique indexes
// exist. The indexes are what enforce one username, one email and one rating
// per (rater, ratee) pair.
func New(ctx context.Context, uri, database string) (*DB, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongodb: connecting: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongodb: pinging: %w", err)
	}

	d := client.Database(database)
	db := &DB{
		client:     client,
		users:      d.Collection(usersCollection),
		skills:     d.Collection(skillsCollection),
		categories: d.Collection(categoriesCollection),
		ratings:    d.Collection(ratingsCollection),
	}

	if err := db.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return db, nil
}

// Close disconnects the client.
func (db *DB) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return db.client.Disconnect(ctx)
}

func (db *DB) ensureIndexes(ctx context.Context) error {
	unique := func(keys bson.D) mongo.IndexModel {
		return mongo.IndexModel{Keys: keys, Options: options.Index().SetUnique(true)}
	}
	sparseUnique := func(keys bson.D) mongo.IndexModel {
		return mongo.IndexModel{Keys: keys, Options: options.Index().SetUnique(true).SetSparse(true)}
	}

	indexes := []struct {
		coll   *mongo.Collection
		models []mongo.IndexModel
	}{
		{db.users, []mongo.IndexModel{
			unique(bson.D{{Key: "username", Value: 1}}),
			unique(bson.D{{Key: "email", Value: 1}}),
			sparseUnique(bson.D{{Key: "githubId", Value: 1}}),
			sparseUnique(bson.D{{Key: "resetToken", Value: 1}}),
			{Keys: bson.D{{Key: "userSkills", Value: 1}}},
		}},
		{db.skills, []mongo.IndexModel{unique(bson.D{{Key: "name", Value: 1}})}},
		{db.categories, []mongo.IndexModel{unique(bson.D{{Key: "name", Value: 1}})}},
		{db.ratings, []mongo.IndexModel{
			unique(bson.D{{Key: "userID", Value: 1}, {Key: "ratedID", Value: 1}}),
		}},
	}

	for _, idx := range indexes {
		if _, err := idx.coll.Indexes().CreateMany(ctx, idx.models); err != nil {
			return fmt.Errorf("mongodb: creating indexes on %s: %w", idx.coll.Name(), err)
		}
	}
	return nil
}

// Drop removes the whole database. Tests use it to clean up.
func (db *DB) Drop(ctx context.Context) error {
	return db.users.Database().Drop(ctx)
}
