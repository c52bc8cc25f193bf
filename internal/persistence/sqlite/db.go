// Package sqlite implements the activity ledger on a single SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

// DB wraps a SQLite database connection.
type DB struct {
	*sql.DB
}

// Open opens the database at dataSourceName. A single connection is used so
// ":memory:" databases are shared and writers are serialised.
func Open(dataSourceName string) (*DB, error) {
	db, err := sql.Open("sqlite", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}
	return &DB{db}, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS ongoing_activities (
    id TEXT NOT NULL,
    user_id INTEGER NOT NULL,
    chat_id INTEGER NOT NULL,
    user_full_name TEXT NOT NULL DEFAULT '',
    chat_title TEXT NOT NULL DEFAULT '',
    activity_type TEXT NOT NULL,
    started_at INTEGER NOT NULL,
    PRIMARY KEY (user_id, chat_id)
);
CREATE INDEX IF NOT EXISTS idx_ongoing_started_at ON ongoing_activities(started_at);

CREATE TABLE IF NOT EXISTS completed_activities (
    id TEXT PRIMARY KEY,
    user_id INTEGER NOT NULL,
    chat_id INTEGER NOT NULL,
    user_full_name TEXT NOT NULL DEFAULT '',
    chat_title TEXT NOT NULL DEFAULT '',
    activity_type TEXT NOT NULL,
    started_at INTEGER NOT NULL,
    ended_at INTEGER NOT NULL,
    duration_seconds INTEGER NOT NULL CHECK (duration_seconds >= 0),
    overtime_seconds INTEGER NOT NULL CHECK (overtime_seconds >= 0),
    status TEXT NOT NULL CHECK (status IN ('completed', 'overtime'))
);
CREATE INDEX IF NOT EXISTS idx_completed_chat_started ON completed_activities(chat_id, started_at);
`

// Migrate creates the ledger tables if they do not exist.
func (db *DB) Migrate(ctx context.Context) error {
	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}
	return nil
}
