package mongodb

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/skillbarter/internal/apperror"
	"github.com/sakif/skillbarter/internal/model"
	"github.com/sakif/skillbarter/internal/repository"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var _ repository.Store = (*DB)(nil)

// CreateUser inserts user with empty arrays for anything it doesn't carry, so
// later $push/$addToSet operators always find an array.
func (db *DB) CreateUser(ctx context.Context, user *model.User) error {
	if user.ID == "" {
		user.ID = xid.New().String()
	}
	now := time.Now().UTC().Truncate(time.Millisecond)
	user.CreatedAt = now
	user.UpdatedAt = now
	normalize(user)

	_, err := db.users.InsertOne(ctx, user)
	if mongo.IsDuplicateKeyError(err) {
		return duplicateField(err)
	}
	if err != nil {
		return fmt.Errorf("mongodb: inserting user %s: %w", user.Username, err)
	}
	return nil
}

func (db *DB) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	return db.findUser(ctx, bson.M{"_id": id}, id)
}

func (db *DB) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	return db.findUser(ctx, bson.M{"username": username}, username)
}

func (db *DB) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return db.findUser(ctx, bson.M{"email": email}, email)
}

func (db *DB) GetUserByResetToken(ctx context.Context, token string) (*model.User, error) {
	if token == "" {
		return nil, apperror.NotFound("reset token", token)
	}
	return db.findUser(ctx, bson.M{"resetToken": token}, token)
}

func (db *DB) GetUsersByIDs(ctx context.Context, ids []string) ([]model.User, error) {
	if len(ids) == 0 {
		return []model.User{}, nil
	}
	found, err := db.findUsers(ctx, bson.M{"_id": bson.M{"$in": ids}}, nil)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]model.User, len(found))
	for _, u := range found {
		byID[u.ID] = u
	}
	users := make([]model.User, 0, len(ids))
	for _, id := range ids {
		if u, ok := byID[id]; ok {
			users = append(users, u)
		}
	}
	return users, nil
}

func (db *DB) ListUsersWithSkill(ctx context.Context, skill model.SkillID) ([]model.User, error) {
	return db.findUsers(ctx,
		bson.M{"userSkills": skill.String()},
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}}),
	)
}

// ApplyProfileUpdate is one $set naming only the committed fields. Attributes
// are set as "attributes.<key>" so keys not in the update survive.
func (db *DB) ApplyProfileUpdate(ctx context.Context, userID string, update repository.ProfileUpdate) error {
	if update.IsEmpty() {
		return nil
	}

	set := bson.M{"updatedAt": time.Now().UTC()}
	if update.Email != nil {
		set["email"] = *update.Email
	}
	if update.UserIcon != nil {
		set["userIcon"] = *update.UserIcon
	}
	if update.Location != nil {
		set["userLocation"] = update.Location
	}
	for k, v := range update.Attributes {
		set["attributes."+k] = v
	}

	res, err := db.users.UpdateOne(ctx, bson.M{"_id": userID}, bson.M{"$set": set})
	if mongo.IsDuplicateKeyError(err) {
		return duplicateField(err)
	}
	if err != nil {
		return fmt.Errorf("mongodb: updating profile of user %s: %w", userID, err)
	}
	return matched(res, "user", userID)
}

func (db *DB) SetVisited(ctx context.Context, userID string, visited []string) error {
	if visited == nil {
		visited = []string{}
	}
	return db.updateUser(ctx, userID, bson.M{"$set": bson.M{"history.visited": visited}})
}

func (db *DB) AddUserSkill(ctx context.Context, userID string, skill model.SkillID) error {
	return db.updateUser(ctx, userID, bson.M{"$addToSet": bson.M{"userSkills": skill.String()}})
}

func (db *DB) RemoveUserSkill(ctx context.Context, userID string, skill model.SkillID) error {
	return db.updateUser(ctx, userID, bson.M{"$pull": bson.M{"userSkills": skill.String()}})
}

func (db *DB) SetResetToken(ctx context.Context, userID, token string, at time.Time) error {
	return db.updateUser(ctx, userID, bson.M{"$set": bson.M{
		"resetToken":          token,
		"resetTokenTimestamp": at.UTC(),
	}})
}

func (db *DB) ClearResetToken(ctx context.Context, userID string) error {
	return db.updateUser(ctx, userID, bson.M{"$unset": bson.M{
		"resetToken":          "",
		"resetTokenTimestamp": "",
	}})
}

func (db *DB) SetPassword(ctx context.Context, userID, passwordHash string) error {
	return db.updateUser(ctx, userID, bson.M{"$set": bson.M{
		"password":  passwordHash,
		"updatedAt": time.Now().UTC(),
	}})
}

// UpsertGitHubUser loads the account linked to user.GitHubID, or creates it.
func (db *DB) UpsertGitHubUser(ctx context.Context, user *model.User) error {
	var existing model.User
	err := db.users.FindOneAndUpdate(ctx,
		bson.M{"githubId": user.GitHubID},
		bson.M{"$set": bson.M{"updatedAt": time.Now().UTC()}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&existing)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return db.CreateUser(ctx, user)
	}
	if err != nil {
		return fmt.Errorf("mongodb: looking up user by githubId %d: %w", user.GitHubID, err)
	}
	normalize(&existing)
	*user = existing
	return nil
}

func (db *DB) updateUser(ctx context.Context, userID string, update bson.M) error {
	res, err := db.users.UpdateOne(ctx, bson.M{"_id": userID}, update)
	if err != nil {
		return fmt.Errorf("mongodb: updating user %s: %w", userID, err)
	}
	return matched(res, "user", userID)
}

func (db *DB) findUser(ctx context.Context, filter bson.M, key string) (*model.User, error) {
	var u model.User
	err := db.users.FindOne(ctx, filter).Decode(&u)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperror.NotFound("user", key)
	}
	if err != nil {
		return nil, fmt.Errorf("mongodb: finding user %s: %w", key, err)
	}
	normalize(&u)
	return &u, nil
}

func (db *DB) findUsers(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]model.User, error) {
	var findOpts []*options.FindOptions
	if opts != nil {
		findOpts = append(findOpts, opts)
	}
	cur, err := db.users.Find(ctx, filter, findOpts...)
	if err != nil {
		return nil, fmt.Errorf("mongodb: finding users: %w", err)
	}

	users := []model.User{}
	if err := cur.All(ctx, &users); err != nil {
		return nil, fmt.Errorf("mongodb: decoding users: %w", err)
	}
	for i := range users {
		normalize(&users[i])
	}
	return users, nil
}

// normalize replaces nil arrays with empty ones. A nil slice encodes as BSON
// null, and $push or $addToSet on a null field fails.
func normalize(u *model.User) {
	if u.UserSkills == nil {
		u.UserSkills = []model.SkillID{}
	}
	if u.Portfolio == nil {
		u.Portfolio = []model.PortfolioEntry{}
	}
	for i := range u.Portfolio {
		if u.Portfolio[i].Images == nil {
			u.Portfolio[i].Images = []string{}
		}
	}
	if u.History.Visited == nil {
		u.History.Visited = []string{}
	}
}

func matched(res *mongo.UpdateResult, resource, id string) error {
	if res.MatchedCount == 0 {
		return apperror.NotFound(resource, id)
	}
	return nil
}

// duplicateField names the unique index a duplicate-key error tripped over.
func duplicateField(err error) error {
	msg := err.Error()
	for _, field := range []string{"username", "email", "githubId"} {
		if strings.Contains(msg, field) {
			return apperror.Duplicate(field)
		}
	}
	return apperror.Duplicate("user")
}
