package store

import (
	"context"
	"database/sql"
)

// schema contains the DDL for all tables.
// Each statement uses IF NOT EXISTS for idempotency.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS events (
		id               TEXT PRIMARY KEY,
		group_id         TEXT NOT NULL,
		scheduled_time   TEXT NOT NULL,
		invites          TEXT NOT NULL DEFAULT '[]',
		accepted         TEXT NOT NULL DEFAULT '[]',
		declined         TEXT NOT NULL DEFAULT '[]',
		announced        INTEGER NOT NULL DEFAULT 0,
		reservation_user TEXT NOT NULL DEFAULT '',
		expense_user     TEXT NOT NULL DEFAULT '',
		announcement_sent_at TEXT,
		created_at       TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_events_scheduled_time ON events(scheduled_time)`,
	`CREATE INDEX IF NOT EXISTS idx_events_group_id ON events(group_id)`,

	`CREATE TABLE IF NOT EXISTS opted_out (
		user_id TEXT PRIMARY KEY
	)`,

	// One row per full-collection resource; bumped on every write.
	`CREATE TABLE IF NOT EXISTS collection_versions (
		name    TEXT PRIMARY KEY,
		version INTEGER NOT NULL DEFAULT 0
	)`,
	`INSERT OR IGNORE INTO collection_versions (name, version) VALUES ('events', 0)`,
	`INSERT OR IGNORE INTO collection_versions (name, version) VALUES ('opted_out', 0)`,
}

// migrate executes all schema DDL statements.
func migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
