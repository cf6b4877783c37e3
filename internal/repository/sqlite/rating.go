package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/skillbarter/internal/apperror"
	"github.com/sakif/skillbarter/internal/model"
)

func (db *DB) FindRating(ctx context.Context, raterID, rateeID string) (*model.Rating, error) {
	var r model.Rating
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, rater_id, ratee_id, value, created_at
		 FROM ratings WHERE rater_id = ? AND ratee_id = ?`,
		raterID, rateeID,
	).Scan(&r.ID, &r.RaterID, &r.RateeID, &r.Value, &r.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, apperror.NotFound("rating", raterID+"/"+rateeID)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: finding rating %s/%s: %w", raterID, rateeID, err)
	}
	return &r, nil
}

// CreateRating inserts the rating and bumps the ratee's aggregates in one
// transaction.
//
// The UNIQUE (rater_id, ratee_id) constraint decides races: if another
// request inserted the same pair first, the INSERT fails, the transaction
// rolls back before the aggregate UPDATE, and the caller gets a Conflict.
func (db *DB) CreateRating(ctx context.Context, rating *model.Rating) error {
	if rating.ID == "" {
		rating.ID = xid.New().String()
	}
	if rating.CreatedAt.IsZero() {
		rating.CreatedAt = time.Now()
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: creating rating: %w", err)
	}
	defer rollback(tx)

	_, err = tx.ExecContext(ctx,
		`INSERT INTO ratings (id, rater_id, ratee_id, value, created_at) VALUES (?, ?, ?, ?, ?)`,
		rating.ID, rating.RaterID, rating.RateeID, rating.Value, rating.CreatedAt,
	)
	switch {
	case isUniqueViolation(err, "ratings.rater_id"):
		return apperror.Conflict("rating", rating.RaterID+"/"+rating.RateeID)
	case isForeignKeyViolation(err):
		return apperror.NotFound("user", rating.RateeID)
	case err != nil:
		return fmt.Errorf("sqlite: inserting rating: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE users SET rate_count = rate_count + 1, rate_value = rate_value + ? WHERE id = ?`,
		rating.Value, rating.RateeID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating rating aggregates of user %s: %w", rating.RateeID, err)
	}
	if err := requireRow(res, "user", rating.RateeID); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing rating: %w", err)
	}
	return nil
}
