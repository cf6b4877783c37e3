package sqlite

import (
	"context"
	"fmt"

	"github.com/sakif/skillbarter/internal/apperror"
	"github.com/sakif/skillbarter/internal/model"
)

// AppendPortfolioEntry adds a gallery for entry.Title.
//
// The (user_id, skill_id) primary key plus ON CONFLICT DO NOTHING make this
// idempotent: two requests racing to create the first entry for the same
// skill leave exactly one row, and the loser's images are not added.
func (db *DB) AppendPortfolioEntry(ctx context.Context, userID string, entry model.PortfolioEntry) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: appending portfolio entry: %w", err)
	}
	defer rollback(tx)

	if err := appendEntry(ctx, tx, userID, entry); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing portfolio entry: %w", err)
	}
	return nil
}

func appendEntry(ctx context.Context, q querier, userID string, entry model.PortfolioEntry) error {
	res, err := q.ExecContext(ctx,
		`INSERT INTO portfolio_entries (user_id, skill_id, description)
		 VALUES (?, ?, ?)
		 ON CONFLICT (user_id, skill_id) DO NOTHING`,
		userID, entry.Title.String(), entry.Description,
	)
	if isForeignKeyViolation(err) {
		return apperror.NotFound("user", userID)
	}
	if err != nil {
		return fmt.Errorf("sqlite: inserting portfolio entry %s for user %s: %w", entry.Title, userID, err)
	}

	inserted, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: reading rows affected: %w", err)
	}
	if inserted == 0 {
		return nil
	}

	for _, ref := range entry.Images {
		if err := insertImage(ctx, q, userID, entry.Title, ref); err != nil {
			return err
		}
	}
	return nil
}

// UpdatePortfolioEntry is the positional update: it touches only the entry
// titled skill, and appends image after any images already there.
func (db *DB) UpdatePortfolioEntry(ctx context.Context, userID string, skill model.SkillID, description, image string) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: updating portfolio entry: %w", err)
	}
	defer rollback(tx)

	res, err := tx.ExecContext(ctx,
		`UPDATE portfolio_entries SET description = ? WHERE user_id = ? AND skill_id = ?`,
		description, userID, skill.String(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating portfolio entry %s for user %s: %w", skill, userID, err)
	}
	if err := requireRow(res, "portfolio entry", skill.String()); err != nil {
		return err
	}

	if image != "" {
		if err := insertImage(ctx, tx, userID, skill, image); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing portfolio entry: %w", err)
	}
	return nil
}

func insertImage(ctx context.Context, q querier, userID string, skill model.SkillID, ref string) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO portfolio_images (user_id, skill_id, ref) VALUES (?, ?, ?)`,
		userID, skill.String(), ref,
	)
	if err != nil {
		return fmt.Errorf("sqlite: adding image to portfolio entry %s: %w", skill, err)
	}
	return nil
}

// loadPortfolio returns the user's entries in creation order, each with its
// images in upload order.
func loadPortfolio(ctx context.Context, q querier, userID string) ([]model.PortfolioEntry, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT skill_id, description FROM portfolio_entries WHERE user_id = ? ORDER BY rowid`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: loading portfolio of user %s: %w", userID, err)
	}

	entries := []model.PortfolioEntry{}
	index := map[model.SkillID]int{}
	for rows.Next() {
		var e model.PortfolioEntry
		if err := rows.Scan(&e.Title, &e.Description); err != nil {
			rows.Close()
			return nil, fmt.Errorf("sqlite: scanning portfolio entry: %w", err)
		}
		e.Images = []string{}
		index[e.Title] = len(entries)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("sqlite: iterating portfolio: %w", err)
	}
	rows.Close()

	if len(entries) == 0 {
		return entries, nil
	}

	rows, err = q.QueryContext(ctx,
		`SELECT skill_id, ref FROM portfolio_images WHERE user_id = ? ORDER BY id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: loading portfolio images of user %s: %w", userID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			skill model.SkillID
			ref   string
		)
		if err := rows.Scan(&skill, &ref); err != nil {
			return nil, fmt.Errorf("sqlite: scanning portfolio image: %w", err)
		}
		if i, ok := index[skill]; ok {
			entries[i].Images = append(entries[i].Images, ref)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating portfolio images: %w", err)
	}
	return entries, nil
}
