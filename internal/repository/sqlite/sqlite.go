// Package sqlite implements the repository interfaces using SQLite as the storage backend.
//
// WHY SQLITE?
// SQLite is an embedded database: it lives inside your Go binary as a single file.
// No separate database server to install, configure, or manage. Perfect for:
// - Learning database patterns without infrastructure complexity
// - Single-server deployments (which is most apps, honestly)
// - Development and testing (use ":memory:" for in-memory DB)
//
// WHY modernc.org/sqlite INSTEAD OF github.com/mattn/go-sqlite3?
// mattn/go-sqlite3 uses CGo (calls C code from Go), which means you need a C compiler
// installed and cross-compilation becomes painful. modernc.org/sqlite is a pure Go
// translation of the SQLite C code: no C compiler needed, works everywhere Go works.
//
// DATABASE/SQL OVERVIEW:
// Go's standard library provides "database/sql": a generic interface for SQL databases.
// It works with any database through "drivers" (SQLite, Postgres, MySQL, etc.).
// Key types:
//   - sql.DB     : a connection pool (NOT a single connection!)
//   - sql.Tx     : a transaction
//   - sql.Row    : a single result row
//   - sql.Rows   : multiple result rows (must be closed!)
//
// The pattern is always:
//  1. sql.Open(driverName, dataSourceName) → creates a pool
//  2. db.QueryContext / db.ExecContext     → runs queries
//  3. rows.Scan(&field1, &field2)          → reads results into Go variables
package sqlite

import (
	"database/sql"
	"fmt"

	// BLANK IMPORT:
	// The underscore import `_ "modernc.org/sqlite"` is a "side-effect only" import.
	// It doesn't give us any symbols to use directly. Instead, the sqlite package's
	// init() function registers itself with database/sql as a driver named "sqlite".
	// After this import, sql.Open("sqlite", ...) knows how to talk to SQLite.
	//
	// This is Go's plugin pattern: database drivers register themselves at init time.
	_ "modernc.org/sqlite"
)

// DB wraps a sql.DB connection pool and provides repository methods.
//
// WHY WRAP sql.DB IN A STRUCT?
// 1. We can attach methods to it (Create, GetByID, etc.)
// 2. We can add more fields later (logger, config, prepared statements)
// 3. It implements every interface in repository.go (repository.Store)
// 4. We control the lifecycle (New creates it, Close destroys it)
type DB struct {
	conn *sql.DB
}

// New creates a new SQLite database connection and runs migrations.
//
// dbPath examples:
//   - "data/skillbarter.db" → file-based database (persistent)
//   - ":memory:"            → in-memory database (great for tests, lost on close)
//
// CONNECTION POOL:
// sql.Open() does NOT actually open a connection: it just creates a pool manager.
// The first real connection happens when you run your first query.
// We call db.Ping() to force an immediate connection and verify it works.
func New(dbPath string) (*DB, error) {
	// Open a connection pool to the SQLite database.
	// "sqlite" is the driver name registered by the blank import above.
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// Every connection to ":memory:" is a separate, empty database, and PRAGMAs
	// such as foreign_keys are per connection. SQLite serializes writers
	// anyway, so the pool is pinned to one connection and the schema and
	// settings below are the ones every query sees.
	//
	// The catch: while a *sql.Rows is open it holds that one connection, so
	// results must be fully read and closed before issuing the next query.
	conn.SetMaxOpenConns(1)

	// Ping verifies the connection actually works.
	// Without this, a bad path or permissions issue would only surface
	// on the first query: which is much harder to debug.
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// PRAGMA STATEMENTS:
	// SQLite has special "PRAGMA" commands that configure its behaviour.
	// These run once at connection time.

	// WAL (Write-Ahead Logging) mode:
	// Default SQLite locks the entire database during writes.
	// WAL mode allows concurrent reads WHILE a write is happening.
	// This is critical for a web server where multiple requests hit the DB.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	// Foreign keys are OFF by default in SQLite (for backwards compatibility).
	// We turn them on so a skill, portfolio entry or rating can't point at a
	// user that doesn't exist.
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: enabling foreign keys: %w", err)
	}

	db := &DB{conn: conn}

	// Run database migrations to create/update tables
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the database connection pool.
//
// ALWAYS DEFER CLOSE:
// Wherever you call New(), immediately defer Close():
//
//	db, err := sqlite.New("data/skillbarter.db")
//	if err != nil { ... }
//	defer db.Close()
//
// This ensures the connection is cleaned up even if a panic occurs.
func (db *DB) Close() error {
	return db.conn.Close()
}

// migrate runs all database migrations.
//
// A user is one row in users plus rows in the child tables that hold its
// arrays (skills, portfolio entries, portfolio images). The free-form profile
// attributes and the visit history are JSON columns because they are always
// read and written as a whole, or merged with json_patch.
//
// The UNIQUE constraints are what keep "at most one" true under concurrent
// requests: one portfolio entry per (user, skill) and one rating per
// (rater, ratee).
func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id             TEXT PRIMARY KEY,
			username       TEXT NOT NULL UNIQUE,
			email          TEXT NOT NULL UNIQUE,
			password       TEXT NOT NULL DEFAULT '',
			is_admin       INTEGER NOT NULL DEFAULT 0,
			user_icon      TEXT NOT NULL DEFAULT '',
			longitude      REAL,
			latitude       REAL,
			place_name     TEXT NOT NULL DEFAULT '',
			attributes     TEXT NOT NULL DEFAULT '{}',
			visited        TEXT NOT NULL DEFAULT '[]',
			rate_value     INTEGER NOT NULL DEFAULT 0,
			rate_count     INTEGER NOT NULL DEFAULT 0,
			github_id      INTEGER UNIQUE,
			created_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return fmt.Errorf("creating users table: %w", err)
	}

	// Reset tokens arrived after the first release; added the same way any
	// later column would be.
	if err := db.addColumnIfNotExists("users", "reset_token", "TEXT"); err != nil {
		return fmt.Errorf("adding reset_token to users: %w", err)
	}
	if err := db.addColumnIfNotExists("users", "reset_token_at", "DATETIME"); err != nil {
		return fmt.Errorf("adding reset_token_at to users: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_users_reset_token ON users(reset_token);

		CREATE TABLE IF NOT EXISTS skills (
			id    TEXT PRIMARY KEY,
			name  TEXT NOT NULL UNIQUE,
			image TEXT NOT NULL DEFAULT ''
		);

		CREATE TABLE IF NOT EXISTS skill_categories (
			id    TEXT PRIMARY KEY,
			name  TEXT NOT NULL UNIQUE,
			image TEXT NOT NULL DEFAULT ''
		);

		CREATE TABLE IF NOT EXISTS category_skills (
			category_id TEXT NOT NULL REFERENCES skill_categories(id) ON DELETE CASCADE,
			skill_id    TEXT NOT NULL,
			position    INTEGER NOT NULL,
			PRIMARY KEY (category_id, skill_id)
		);
	`)
	if err != nil {
		return fmt.Errorf("creating skill tables: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS user_skills (
			user_id  TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			skill_id TEXT NOT NULL,
			PRIMARY KEY (user_id, skill_id)
		);
		CREATE INDEX IF NOT EXISTS idx_user_skills_skill_id ON user_skills(skill_id);

		CREATE TABLE IF NOT EXISTS portfolio_entries (
			user_id     TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			skill_id    TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (user_id, skill_id)
		);

		CREATE TABLE IF NOT EXISTS portfolio_images (
			id       INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id  TEXT NOT NULL,
			skill_id TEXT NOT NULL,
			ref      TEXT NOT NULL,
			FOREIGN KEY (user_id, skill_id)
				REFERENCES portfolio_entries(user_id, skill_id) ON DELETE CASCADE
		);
	`)
	if err != nil {
		return fmt.Errorf("creating user child tables: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS ratings (
			id         TEXT PRIMARY KEY,
			rater_id   TEXT NOT NULL REFERENCES users(id),
			ratee_id   TEXT NOT NULL REFERENCES users(id),
			value      INTEGER NOT NULL CHECK (value BETWEEN 1 AND 5),
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (rater_id, ratee_id)
		);
	`)
	if err != nil {
		return fmt.Errorf("creating ratings table: %w", err)
	}

	return nil
}

// addColumnIfNotExists adds a column to a table only if it doesn't already exist.
// Makes ALTER TABLE migrations idempotent: safe to run multiple times.
func (db *DB) addColumnIfNotExists(table, column, definition string) error {
	var count int
	err := db.conn.QueryRow(
		`SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`,
		table, column,
	).Scan(&count)
	if err != nil {
		return fmt.Errorf("checking column %s.%s: %w", table, column, err)
	}
	if count > 0 {
		return nil // column already exists
	}
	_, err = db.conn.Exec(fmt.Sprintf(
		`ALTER TABLE %s ADD COLUMN %s %s`, table, column, definition,
	))
	return err
}
