package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/skillbarter/internal/apperror"
	"github.com/sakif/skillbarter/internal/model"
	"github.com/sakif/skillbarter/internal/repository"
)

// compile-time check that *DB implements every repository interface
var _ repository.Store = (*DB)(nil)

const userColumns = `id, username, email, password, is_admin, user_icon,
	longitude, latitude, place_name, attributes, visited,
	rate_value, rate_count, github_id, reset_token, reset_token_at,
	created_at, updated_at`

// CreateUser inserts a new user together with any skills and portfolio
// entries it already carries (the seed command creates users that way).
//
// The generated ID and timestamps are written back into user. A taken
// username or email comes back as apperror.Duplicate naming the field.
func (db *DB) CreateUser(ctx context.Context, user *model.User) error {
	if user.ID == "" {
		user.ID = xid.New().String()
	}
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now

	attrs, err := marshalAttributes(user.Attributes)
	if err != nil {
		return fmt.Errorf("sqlite: creating user: %w", err)
	}
	visited, err := marshalVisited(user.History.Visited)
	if err != nil {
		return fmt.Errorf("sqlite: creating user: %w", err)
	}

	var lon, lat sql.NullFloat64
	var placeName string
	if user.Location != nil {
		lon = sql.NullFloat64{Float64: user.Location.Geo.Longitude, Valid: true}
		lat = sql.NullFloat64{Float64: user.Location.Geo.Latitude, Valid: true}
		placeName = user.Location.PlaceName
	}

	var githubID sql.NullInt64
	if user.GitHubID != 0 {
		githubID = sql.NullInt64{Int64: user.GitHubID, Valid: true}
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: creating user: %w", err)
	}
	defer rollback(tx)

	_, err = tx.ExecContext(ctx,
		`INSERT INTO users (id, username, email, password, is_admin, user_icon,
			longitude, latitude, place_name, attributes, visited,
			rate_value, rate_count, github_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID,
		user.Username,
		user.Email,
		user.PasswordHash,
		user.IsAdmin,
		user.UserIcon,
		lon,
		lat,
		placeName,
		attrs,
		visited,
		user.RateValue,
		user.RateCount,
		githubID,
		user.CreatedAt,
		user.UpdatedAt,
	)
	switch {
	case isUniqueViolation(err, "users.username"):
		return apperror.Duplicate("username")
	case isUniqueViolation(err, "users.email"):
		return apperror.Duplicate("email")
	case isUniqueViolation(err, "users.github_id"):
		return apperror.Duplicate("github account")
	case err != nil:
		return fmt.Errorf("sqlite: inserting user %s: %w", user.Username, err)
	}

	for _, skill := range user.UserSkills {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO user_skills (user_id, skill_id) VALUES (?, ?)`,
			user.ID, skill.String(),
		); err != nil {
			return fmt.Errorf("sqlite: inserting skills of user %s: %w", user.ID, err)
		}
	}

	for _, entry := range user.Portfolio {
		if err := appendEntry(ctx, tx, user.ID, entry); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing user %s: %w", user.ID, err)
	}
	return nil
}

// GetUserByID retrieves a user by their internal ID.
// Returns apperror.ErrNotFound if no user exists with that ID.
func (db *DB) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	return db.getUser(ctx, "id", id)
}

func (db *DB) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	return db.getUser(ctx, "username", username)
}

func (db *DB) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return db.getUser(ctx, "email", email)
}

func (db *DB) GetUserByResetToken(ctx context.Context, token string) (*model.User, error) {
	if token == "" {
		return nil, apperror.NotFound("reset token", token)
	}
	return db.getUser(ctx, "reset_token", token)
}

// GetUsersByIDs loads each id in turn. The history page asks for at most
// eight users, so one query per user is fine.
func (db *DB) GetUsersByIDs(ctx context.Context, ids []string) ([]model.User, error) {
	users := make([]model.User, 0, len(ids))
	for _, id := range ids {
		u, err := db.getUser(ctx, "id", id)
		if errors.Is(err, apperror.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, nil
}

// ListUsersWithSkill returns every user claiming skill, oldest claim first.
func (db *DB) ListUsersWithSkill(ctx context.Context, skill model.SkillID) ([]model.User, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT user_id FROM user_skills WHERE skill_id = ? ORDER BY rowid`,
		skill.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing users with skill %s: %w", skill, err)
	}
	ids, err := scanStrings(rows)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing users with skill %s: %w", skill, err)
	}
	return db.GetUsersByIDs(ctx, ids)
}

// ApplyProfileUpdate writes the fields named in update with one UPDATE
// statement, so a reader sees either none or all of them.
//
// Attributes go through json_patch, which merges the new keys into the stored
// object instead of replacing it.
func (db *DB) ApplyProfileUpdate(ctx context.Context, userID string, update repository.ProfileUpdate) error {
	if update.IsEmpty() {
		return nil
	}

	var (
		sets []string
		args []any
	)
	if update.Email != nil {
		sets = append(sets, "email = ?")
		args = append(args, *update.Email)
	}
	if update.UserIcon != nil {
		sets = append(sets, "user_icon = ?")
		args = append(args, *update.UserIcon)
	}
	if update.Location != nil {
		sets = append(sets, "longitude = ?", "latitude = ?", "place_name = ?")
		args = append(args,
			update.Location.Geo.Longitude,
			update.Location.Geo.Latitude,
			update.Location.PlaceName,
		)
	}
	if len(update.Attributes) > 0 {
		patch, err := json.Marshal(update.Attributes)
		if err != nil {
			return fmt.Errorf("sqlite: encoding attributes: %w", err)
		}
		sets = append(sets, "attributes = json_patch(attributes, ?)")
		args = append(args, string(patch))
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, time.Now(), userID)

	// Only column names from the fixed list above are interpolated; every
	// value goes through a placeholder.
	query := "UPDATE users SET " + strings.Join(sets, ", ") + " WHERE id = ?"

	res, err := db.conn.ExecContext(ctx, query, args...)
	if isUniqueViolation(err, "users.email") {
		return apperror.Duplicate("email")
	}
	if err != nil {
		return fmt.Errorf("sqlite: updating profile of user %s: %w", userID, err)
	}
	return requireRow(res, "user", userID)
}

// SetVisited replaces the visit history in one statement.
func (db *DB) SetVisited(ctx context.Context, userID string, visited []string) error {
	data, err := marshalVisited(visited)
	if err != nil {
		return fmt.Errorf("sqlite: encoding history: %w", err)
	}
	res, err := db.conn.ExecContext(ctx,
		`UPDATE users SET visited = ? WHERE id = ?`, data, userID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: setting history of user %s: %w", userID, err)
	}
	return requireRow(res, "user", userID)
}

// AddUserSkill has set semantics: adding a skill twice keeps one row.
func (db *DB) AddUserSkill(ctx context.Context, userID string, skill model.SkillID) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT OR IGNORE INTO user_skills (user_id, skill_id) VALUES (?, ?)`,
		userID, skill.String(),
	)
	if isForeignKeyViolation(err) {
		return apperror.NotFound("user", userID)
	}
	if err != nil {
		return fmt.Errorf("sqlite: adding skill %s to user %s: %w", skill, userID, err)
	}
	return nil
}

// RemoveUserSkill is a no-op when the user doesn't claim the skill.
func (db *DB) RemoveUserSkill(ctx context.Context, userID string, skill model.SkillID) error {
	_, err := db.conn.ExecContext(ctx,
		`DELETE FROM user_skills WHERE user_id = ? AND skill_id = ?`,
		userID, skill.String(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: removing skill %s from user %s: %w", skill, userID, err)
	}
	return nil
}

func (db *DB) SetResetToken(ctx context.Context, userID, token string, at time.Time) error {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE users SET reset_token = ?, reset_token_at = ? WHERE id = ?`,
		token, at, userID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: setting reset token of user %s: %w", userID, err)
	}
	return requireRow(res, "user", userID)
}

func (db *DB) ClearResetToken(ctx context.Context, userID string) error {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE users SET reset_token = NULL, reset_token_at = NULL WHERE id = ?`,
		userID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: clearing reset token of user %s: %w", userID, err)
	}
	return requireRow(res, "user", userID)
}

func (db *DB) SetPassword(ctx context.Context, userID, passwordHash string) error {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE users SET password = ?, updated_at = ? WHERE id = ?`,
		passwordHash, time.Now(), userID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: setting password of user %s: %w", userID, err)
	}
	return requireRow(res, "user", userID)
}

// UpsertGitHubUser creates the account on first GitHub sign-in.
//
// On later sign-ins the existing account is loaded into user and only
// updated_at changes: the profile may have been edited since, so the GitHub
// login and avatar must not overwrite it.
func (db *DB) UpsertGitHubUser(ctx context.Context, user *model.User) error {
	var existingID string
	err := db.conn.QueryRowContext(ctx,
		`SELECT id FROM users WHERE github_id = ?`, user.GitHubID,
	).Scan(&existingID)

	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("sqlite: looking up user by github_id %d: %w", user.GitHubID, err)
	}

	if existingID == "" {
		return db.CreateUser(ctx, user)
	}

	if _, err := db.conn.ExecContext(ctx,
		`UPDATE users SET updated_at = ? WHERE id = ?`, time.Now(), existingID,
	); err != nil {
		return fmt.Errorf("sqlite: updating user %s: %w", existingID, err)
	}

	existing, err := db.getUser(ctx, "id", existingID)
	if err != nil {
		return err
	}
	*user = *existing
	return nil
}

// getUser loads one user row by a unique column and then its child rows.
// column is always a literal from this file.
func (db *DB) getUser(ctx context.Context, column, value string) (*model.User, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE `+column+` = ?`, value,
	)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, apperror.NotFound("user", value)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: getting user by %s: %w", column, err)
	}

	if err := loadChildren(ctx, db.conn, u); err != nil {
		return nil, err
	}
	return u, nil
}

func scanUser(row *sql.Row) (*model.User, error) {
	var (
		u          model.User
		lon, lat   sql.NullFloat64
		placeName  string
		attrs      string
		visited    string
		githubID   sql.NullInt64
		resetToken sql.NullString
		resetAt    sql.NullTime
	)
	err := row.Scan(
		&u.ID,
		&u.Username,
		&u.Email,
		&u.PasswordHash,
		&u.IsAdmin,
		&u.UserIcon,
		&lon,
		&lat,
		&placeName,
		&attrs,
		&visited,
		&u.RateValue,
		&u.RateCount,
		&githubID,
		&resetToken,
		&resetAt,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if lon.Valid && lat.Valid {
		u.Location = &model.Location{
			Geo:       model.GeoPoint{Longitude: lon.Float64, Latitude: lat.Float64},
			PlaceName: placeName,
		}
	}
	if err := json.Unmarshal([]byte(attrs), &u.Attributes); err != nil {
		return nil, fmt.Errorf("decoding attributes: %w", err)
	}
	if len(u.Attributes) == 0 {
		u.Attributes = nil
	}
	if err := json.Unmarshal([]byte(visited), &u.History.Visited); err != nil {
		return nil, fmt.Errorf("decoding history: %w", err)
	}
	if u.History.Visited == nil {
		u.History.Visited = []string{}
	}
	u.GitHubID = githubID.Int64
	u.ResetToken = resetToken.String
	u.ResetTokenAt = resetAt.Time

	return &u, nil
}

// loadChildren fills the skill and portfolio arrays of u. Each result set is
// read to the end before the next query, since the pool has one connection.
func loadChildren(ctx context.Context, q querier, u *model.User) error {
	rows, err := q.QueryContext(ctx,
		`SELECT skill_id FROM user_skills WHERE user_id = ? ORDER BY rowid`, u.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: loading skills of user %s: %w", u.ID, err)
	}
	skills, err := scanStrings(rows)
	if err != nil {
		return fmt.Errorf("sqlite: loading skills of user %s: %w", u.ID, err)
	}
	u.UserSkills = make([]model.SkillID, 0, len(skills))
	for _, s := range skills {
		u.UserSkills = append(u.UserSkills, model.SkillID(s))
	}

	portfolio, err := loadPortfolio(ctx, q, u.ID)
	if err != nil {
		return err
	}
	u.Portfolio = portfolio
	return nil
}

func scanStrings(rows *sql.Rows) ([]string, error) {
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func requireRow(res sql.Result, resource, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: reading rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound(resource, id)
	}
	return nil
}

func marshalAttributes(attrs map[string]string) (string, error) {
	if len(attrs) == 0 {
		return "{}", nil
	}
	data, err := json.Marshal(attrs)
	if err != nil {
		return "", fmt.Errorf("encoding attributes: %w", err)
	}
	return string(data), nil
}

func marshalVisited(visited []string) (string, error) {
	if visited == nil {
		visited = []string{}
	}
	data, err := json.Marshal(visited)
	if err != nil {
		return "", fmt.Errorf("encoding history: %w", err)
	}
	return string(data), nil
}
