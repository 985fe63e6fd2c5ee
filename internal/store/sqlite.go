package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/me/meetup/pkg/model"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and returns a Store.
// Use ":memory:" for an in-memory database (useful in tests).
func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}

	// Every connection to ":memory:" is a separate database.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma wal: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma busy_timeout: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		logger: logger.With("component", "store"),
	}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Migrate creates all required tables and indexes.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	s.logger.Debug("sql", "op", "migrate")
	return migrate(ctx, s.db)
}

// --- Events ---

func (s *SQLiteStore) GetEvents(ctx context.Context) (*Snapshot, error) {
	s.logger.Debug("sql", "op", "select", "table", "events")

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	snap := &Snapshot{Events: []*model.Event{}}
	if snap.Version, err = readVersion(ctx, tx, "events"); err != nil {
		return nil, err
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT id, group_id, scheduled_time, invites, accepted, declined, announced,
		        reservation_user, expense_user, announcement_sent_at, created_at
		 FROM events ORDER BY scheduled_time, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		snap.Events = append(snap.Events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return snap, nil
}

func (s *SQLiteStore) SetEvents(ctx context.Context, events []*model.Event, version int64) error {
	s.logger.Debug("sql", "op", "replace", "table", "events", "count", len(events), "version", version)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if err := bumpVersion(ctx, tx, "events", version); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM events`); err != nil {
		return fmt.Errorf("clear events: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO events (id, group_id, scheduled_time, invites, accepted, declined, announced,
		                     reservation_user, expense_user, announcement_sent_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, ev := range events {
		invitesJSON, err := json.Marshal(ev.Invites)
		if err != nil {
			return fmt.Errorf("marshal invites: %w", err)
		}
		acceptedJSON, err := json.Marshal(nonNil(ev.Accepted))
		if err != nil {
			return fmt.Errorf("marshal accepted: %w", err)
		}
		declinedJSON, err := json.Marshal(nonNil(ev.Declined))
		if err != nil {
			return fmt.Errorf("marshal declined: %w", err)
		}

		if _, err := stmt.ExecContext(ctx,
			ev.ID, ev.GroupID, formatTime(ev.ScheduledTime),
			string(invitesJSON), string(acceptedJSON), string(declinedJSON),
			boolToInt(ev.Announced), ev.ReservationUser, ev.ExpenseUser,
			formatOptionalTime(ev.AnnouncementSentAt), formatTime(ev.CreatedAt),
		); err != nil {
			return fmt.Errorf("insert event %s: %w", ev.ID, err)
		}
	}

	return tx.Commit()
}

// --- Opt-outs ---

func (s *SQLiteStore) GetOptedOut(ctx context.Context) (*OptOutSet, error) {
	s.logger.Debug("sql", "op", "select", "table", "opted_out")

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	set := &OptOutSet{UserIDs: []string{}}
	if set.Version, err = readVersion(ctx, tx, "opted_out"); err != nil {
		return nil, err
	}

	rows, err := tx.QueryContext(ctx, `SELECT user_id FROM opted_out ORDER BY user_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		set.UserIDs = append(set.UserIDs, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return set, nil
}

func (s *SQLiteStore) SetOptedOut(ctx context.Context, userIDs []string, version int64) error {
	s.logger.Debug("sql", "op", "replace", "table", "opted_out", "count", len(userIDs), "version", version)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if err := bumpVersion(ctx, tx, "opted_out", version); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM opted_out`); err != nil {
		return fmt.Errorf("clear opted_out: %w", err)
	}
	for _, id := range userIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO opted_out (user_id) VALUES (?)`, id); err != nil {
			return fmt.Errorf("insert opted_out %s: %w", id, err)
		}
	}
	return tx.Commit()
}

// --- Helpers ---

func readVersion(ctx context.Context, tx *sql.Tx, name string) (int64, error) {
	var version int64
	if err := tx.QueryRowContext(ctx,
		`SELECT version FROM collection_versions WHERE name = ?`, name,
	).Scan(&version); err != nil {
		return 0, fmt.Errorf("read %s version: %w", name, err)
	}
	return version, nil
}

// bumpVersion increments the collection version if it still equals version.
// Running it first in a write transaction takes the write lock and checks the
// token in one statement.
func bumpVersion(ctx context.Context, tx *sql.Tx, name string, version int64) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE collection_versions SET version = version + 1 WHERE name = ? AND version = ?`,
		name, version)
	if err != nil {
		return fmt.Errorf("bump %s version: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n != 1 {
		return ErrVersionConflict
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(row scanner) (*model.Event, error) {
	var ev model.Event
	var scheduled, invitesJSON, acceptedJSON, declinedJSON, createdAt string
	var announcementSent sql.NullString
	var announced int

	if err := row.Scan(&ev.ID, &ev.GroupID, &scheduled, &invitesJSON, &acceptedJSON, &declinedJSON,
		&announced, &ev.ReservationUser, &ev.ExpenseUser, &announcementSent, &createdAt); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(invitesJSON), &ev.Invites); err != nil {
		return nil, fmt.Errorf("unmarshal invites for %s: %w", ev.ID, err)
	}
	if err := json.Unmarshal([]byte(acceptedJSON), &ev.Accepted); err != nil {
		return nil, fmt.Errorf("unmarshal accepted for %s: %w", ev.ID, err)
	}
	if err := json.Unmarshal([]byte(declinedJSON), &ev.Declined); err != nil {
		return nil, fmt.Errorf("unmarshal declined for %s: %w", ev.ID, err)
	}
	ev.Announced = announced != 0

	var err error
	if ev.ScheduledTime, err = time.Parse(time.RFC3339Nano, scheduled); err != nil {
		return nil, fmt.Errorf("parse scheduled_time for %s: %w", ev.ID, err)
	}
	if ev.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at for %s: %w", ev.ID, err)
	}
	if announcementSent.Valid {
		t, err := time.Parse(time.RFC3339Nano, announcementSent.String)
		if err != nil {
			return nil, fmt.Errorf("parse announcement_sent_at for %s: %w", ev.ID, err)
		}
		ev.AnnouncementSentAt = &t
	}

	if ev.Invites == nil {
		ev.Invites = []model.Invite{}
	}
	return &ev, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func formatOptionalTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
