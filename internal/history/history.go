// Package history persists reconciliation runs in a local SQLite
// database, so the service can answer "when were the airports last
// updated" without keeping state in memory.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// CategoryAirports is the run category for airport reconciliation.
const CategoryAirports = "airports"

// Run is one recorded reconciliation.
type Run struct {
	ID              int64
	Category        string
	FileName        string
	Timestamp       time.Time
	Updated         int
	Added           int
	Deleted         int
	NotFound        int
	NotUpdated      int
	WaypointsBefore int
	WaypointsAfter  int
}

// Store wraps the SQLite database holding run history.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the history database at the given path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening history db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}
	if err := createSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
CREATE TABLE IF NOT EXISTS updates (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	category TEXT NOT NULL,
	file_name TEXT NOT NULL DEFAULT '',
	timestamp TEXT NOT NULL,
	updated INTEGER NOT NULL DEFAULT 0,
	added INTEGER NOT NULL DEFAULT 0,
	deleted INTEGER NOT NULL DEFAULT 0,
	not_found INTEGER NOT NULL DEFAULT 0,
	not_updated INTEGER NOT NULL DEFAULT 0,
	waypoints_before INTEGER NOT NULL DEFAULT 0,
	waypoints_after INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_updates_category_ts ON updates(category, timestamp);
`)
	if err != nil {
		return fmt.Errorf("creating history schema: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordRun inserts a run and returns its row ID. A zero timestamp is
// filled with the current time.
func (s *Store) RecordRun(ctx context.Context, run Run) (int64, error) {
	if run.Category == "" {
		run.Category = CategoryAirports
	}
	if run.Timestamp.IsZero() {
		run.Timestamp = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx, `
INSERT INTO updates (category, file_name, timestamp, updated, added, deleted,
	not_found, not_updated, waypoints_before, waypoints_after)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.Category, run.FileName, run.Timestamp.UTC().Format(time.RFC3339),
		run.Updated, run.Added, run.Deleted, run.NotFound, run.NotUpdated,
		run.WaypointsBefore, run.WaypointsAfter)
	if err != nil {
		return 0, fmt.Errorf("recording run: %w", err)
	}
	return res.LastInsertId()
}

// LastUpdate returns the timestamp of the most recent run in a category.
// The second return is false when the category has no runs yet.
func (s *Store) LastUpdate(ctx context.Context, category string) (time.Time, bool, error) {
	var ts string
	err := s.db.QueryRowContext(ctx, `
SELECT timestamp FROM updates WHERE category = ?
ORDER BY timestamp DESC LIMIT 1`, category).Scan(&ts)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("querying last update: %w", err)
	}
	parsed, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parsing stored timestamp %q: %w", ts, err)
	}
	return parsed, true, nil
}

// LastRun returns the most recent run in a category with its details.
func (s *Store) LastRun(ctx context.Context, category string) (*Run, bool, error) {
	var run Run
	var ts string
	err := s.db.QueryRowContext(ctx, `
SELECT id, category, file_name, timestamp, updated, added, deleted,
	not_found, not_updated, waypoints_before, waypoints_after
FROM updates WHERE category = ?
ORDER BY timestamp DESC LIMIT 1`, category).Scan(
		&run.ID, &run.Category, &run.FileName, &ts,
		&run.Updated, &run.Added, &run.Deleted, &run.NotFound, &run.NotUpdated,
		&run.WaypointsBefore, &run.WaypointsAfter)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("querying last run: %w", err)
	}
	run.Timestamp, err = time.Parse(time.RFC3339, ts)
	if err != nil {
		return nil, false, fmt.Errorf("parsing stored timestamp %q: %w", ts, err)
	}
	return &run, true, nil
}
