// Package history is the embedded relational store for visited pages: one
// row per URL, upserted on each visit. It reuses the numbered-migration
// pattern and pure-Go SQLite driver used elsewhere in this codebase's
// persistence layer.
package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Entry is one row of the history table.
type Entry struct {
	URL         string
	Title       string
	LastVisit   time.Time
	VisitCount  int
}

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "initial history schema",
		SQL: `
CREATE TABLE IF NOT EXISTS history (
    url         TEXT PRIMARY KEY,
    title       TEXT NOT NULL DEFAULT '',
    last_visit  INTEGER NOT NULL,
    visit_count INTEGER NOT NULL DEFAULT 1
);`,
	},
}

// Store wraps the opened database handle.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the history database at path and runs pending
// migrations. It creates parent directories as needed and enables foreign
// keys and WAL mode for better concurrency, matching this codebase's other
// SQLite-backed store.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("history: create directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("history: open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: enable foreign keys: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: enable WAL mode: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: run migrations: %w", err)
	}

	return &Store{db: db}, nil
}

func runMigrations(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version     INTEGER PRIMARY KEY,
		description TEXT NOT NULL,
		applied_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		return fmt.Errorf("create schema_migrations table: %w", err)
	}

	for _, m := range migrations {
		var exists int
		if err := db.QueryRow("SELECT COUNT(*) FROM schema_migrations WHERE version = ?", m.Version).Scan(&exists); err != nil {
			return fmt.Errorf("check migration %d: %w", m.Version, err)
		}
		if exists > 0 {
			continue
		}
		if _, err := db.Exec(m.SQL); err != nil {
			return fmt.Errorf("apply migration %d (%s): %w", m.Version, m.Description, err)
		}
		if _, err := db.Exec(
			"INSERT INTO schema_migrations (version, description) VALUES (?, ?)",
			m.Version, m.Description,
		); err != nil {
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}
	}
	return nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// RecordVisit performs the history upsert: insert with count=1, or update
// last_visit = now, visit_count = visit_count + 1. Callers are responsible
// for excluding binary downloads, query item-type URLs, and non
// gopher/gemini/finger URLs before calling this.
func (s *Store) RecordVisit(url, title string) error {
	now := time.Now().UTC().Unix()
	_, err := s.db.Exec(`
INSERT INTO history (url, title, last_visit, visit_count)
VALUES (?, ?, ?, 1)
ON CONFLICT(url) DO UPDATE SET
    title = excluded.title,
    last_visit = excluded.last_visit,
    visit_count = visit_count + 1`,
		url, title, now,
	)
	if err != nil {
		return fmt.Errorf("history: record visit for %s: %w", url, err)
	}
	return nil
}

// Clear deletes every row from the history table.
func (s *Store) Clear() error {
	if _, err := s.db.Exec("DELETE FROM history"); err != nil {
		return fmt.Errorf("history: clear: %w", err)
	}
	return nil
}

// Latest returns the n most recently visited entries, newest first.
func (s *Store) Latest(n int) ([]Entry, error) {
	rows, err := s.db.Query(
		"SELECT url, title, last_visit, visit_count FROM history ORDER BY last_visit DESC LIMIT ?",
		n,
	)
	if err != nil {
		return nil, fmt.Errorf("history: query latest: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var ts int64
		if err := rows.Scan(&e.URL, &e.Title, &ts, &e.VisitCount); err != nil {
			return nil, fmt.Errorf("history: scan entry: %w", err)
		}
		e.LastVisit = time.Unix(ts, 0).UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

// Get returns the stored entry for url, or (Entry{}, false) if absent.
func (s *Store) Get(url string) (Entry, bool, error) {
	var e Entry
	var ts int64
	err := s.db.QueryRow(
		"SELECT url, title, last_visit, visit_count FROM history WHERE url = ?", url,
	).Scan(&e.URL, &e.Title, &ts, &e.VisitCount)
	if err == sql.ErrNoRows {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("history: get %s: %w", url, err)
	}
	e.LastVisit = time.Unix(ts, 0).UTC()
	return e, true, nil
}
