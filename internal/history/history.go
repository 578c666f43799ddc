// Package history keeps finished window reports in SQLite.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/skytrace/copilot/internal/copilot"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS windows (
    seq             INTEGER PRIMARY KEY AUTOINCREMENT,
    id              TEXT NOT NULL UNIQUE,
    start_minute    INTEGER NOT NULL,
    window_start    TEXT NOT NULL,
    have_gps_lock   INTEGER NOT NULL,
    marks           INTEGER NOT NULL,
    saved_at        INTEGER NOT NULL,
    report          TEXT NOT NULL
)`

// Store is a window report history.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens or creates the history database at path. ":memory:" gives a
// private in-memory history.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}
	// one connection so an in-memory database is shared by every query
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create history schema: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Save records r. Saving the same window twice replaces the earlier report.
func (s *Store) Save(ctx context.Context, r copilot.Report) error {
	body, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
        INSERT INTO windows (id, start_minute, window_start, have_gps_lock, marks, saved_at, report)
        VALUES (?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET
            window_start = excluded.window_start,
            have_gps_lock = excluded.have_gps_lock,
            marks = excluded.marks,
            saved_at = excluded.saved_at,
            report = excluded.report
    `, r.WindowID, r.StartMinute, r.WindowStart, r.HaveGpsLock, len(r.Marks), s.now().Unix(), string(body))
	if err != nil {
		return fmt.Errorf("save report %s: %w", r.WindowID, err)
	}
	return nil
}

// Recent returns up to n reports, newest first.
func (s *Store) Recent(ctx context.Context, n int) ([]copilot.Report, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT report FROM windows ORDER BY seq DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var reports []copilot.Report
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		var r copilot.Report
		if err := json.Unmarshal([]byte(body), &r); err != nil {
			return nil, fmt.Errorf("decode report: %w", err)
		}
		reports = append(reports, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history rows: %w", err)
	}
	return reports, nil
}

// Count returns how many windows are recorded.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM windows`).Scan(&n)
	return n, err
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
