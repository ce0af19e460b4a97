// Package vault implements the embedded cache of previously fetched
// walk records, backed by SQLite.
//
// One row exists per (user_id, day, source); upserts replace on
// conflict so repeated ingestion of the same source/day is idempotent.
// Retention is measured from insertion time, not record date.
package vault

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// openDB is a package-level var to allow test injection.
var openDB = sql.Open

// WalkRecord is one day of step/walk activity from one source.
type WalkRecord struct {
	Date           string   `json:"date"`
	Steps          int      `json:"steps"`
	DistanceMeters *float64 `json:"distance_meters,omitempty"`
	DurationMin    *float64 `json:"duration_min,omitempty"`
	Kcalories      *float64 `json:"kcalories,omitempty"`
	Source         string   `json:"source"`
}

// Stats summarizes a de-duplicated fetch result.
type Stats struct {
	Days       int     `json:"days"`
	TotalSteps int     `json:"total_steps"`
	AvgSteps   float64 `json:"avg_steps"`
}

// FetchOptions narrows a fetch. Zero values mean "no constraint".
type FetchOptions struct {
	From         string // inclusive, YYYY-MM-DD
	To           string // inclusive, YYYY-MM-DD
	Page         int    // 1-based; 0 means page 1
	PerPage      int    // 0 means no pagination
	PreferSource string // wins when a day exists from several sources
}

// FetchResult holds the de-duplicated records for the window plus
// stats computed over the same de-duplicated set (before pagination).
type FetchResult struct {
	Records []WalkRecord `json:"records"`
	Stats   Stats        `json:"stats"`
	Total   int          `json:"total"`
}

// Store is the embedded cache. The mutex serializes access to the
// database connection so concurrent upserts and fetches do not
// interleave at the storage layer.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// Open creates the parent directory if needed, opens SQLite with WAL
// mode, and runs migrations.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("vault: create data dir: %w", err)
		}
	}

	db, err := openDB("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("vault: open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return nil, fmt.Errorf("vault: pragma %q: %w", p, err)
		}
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("vault: migration: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS walk_days (
			user_id     INTEGER NOT NULL,
			day         TEXT    NOT NULL,
			source      TEXT    NOT NULL,
			steps       INTEGER NOT NULL,
			distance_m  REAL,
			duration_min REAL,
			kcalories   REAL,
			inserted_at TEXT    NOT NULL,
			PRIMARY KEY (user_id, day, source)
		);

		CREATE INDEX IF NOT EXISTS idx_walk_user_day ON walk_days(user_id, day);
		CREATE INDEX IF NOT EXISTS idx_walk_inserted ON walk_days(inserted_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Upsert writes records for one user from one source. Re-inserting an
// existing (user, day, source) replaces the row in place. Returns the
// number of rows written.
func (s *Store) Upsert(userID int, records []WalkRecord, source string) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("vault: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC().Format(time.RFC3339)
	count := 0
	for _, r := range records {
		if r.Date == "" {
			continue
		}
		_, err := tx.Exec(`
			INSERT INTO walk_days
				(user_id, day, source, steps, distance_m, duration_min, kcalories, inserted_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (user_id, day, source) DO UPDATE SET
				steps = excluded.steps,
				distance_m = excluded.distance_m,
				duration_min = excluded.duration_min,
				kcalories = excluded.kcalories,
				inserted_at = excluded.inserted_at`,
			userID, r.Date, source, r.Steps, r.DistanceMeters, r.DurationMin, r.Kcalories, now,
		)
		if err != nil {
			return 0, fmt.Errorf("vault: upsert %s/%s: %w", r.Date, source, err)
		}
		count++
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("vault: commit: %w", err)
	}
	return count, nil
}

// Fetch returns the user's records in the window, at most one per day.
// When a day exists from several sources the caller's PreferSource
// wins; otherwise the most recently inserted row does. Stats cover the
// whole de-duplicated window; pagination only narrows Records.
func (s *Store) Fetch(userID int, opts FetchOptions) (*FetchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		SELECT day, source, steps, distance_m, duration_min, kcalories
		FROM walk_days
		WHERE user_id = ?`
	args := []any{userID}
	if opts.From != "" {
		query += " AND day >= ?"
		args = append(args, opts.From)
	}
	if opts.To != "" {
		query += " AND day <= ?"
		args = append(args, opts.To)
	}
	query += " ORDER BY day ASC, inserted_at DESC, rowid DESC"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("vault: fetch: %w", err)
	}
	defer rows.Close()

	// De-duplicate per day. Rows arrive newest-insert-first within a
	// day, so the first row seen is the fallback winner unless a later
	// row carries the preferred source.
	var days []string
	byDay := map[string]WalkRecord{}
	for rows.Next() {
		var r WalkRecord
		if err := rows.Scan(&r.Date, &r.Source, &r.Steps, &r.DistanceMeters, &r.DurationMin, &r.Kcalories); err != nil {
			return nil, fmt.Errorf("vault: scan: %w", err)
		}
		existing, seen := byDay[r.Date]
		switch {
		case !seen:
			byDay[r.Date] = r
			days = append(days, r.Date)
		case opts.PreferSource != "" && existing.Source != opts.PreferSource && r.Source == opts.PreferSource:
			byDay[r.Date] = r
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("vault: rows: %w", err)
	}

	result := &FetchResult{Total: len(days)}
	for _, d := range days {
		rec := byDay[d]
		result.Records = append(result.Records, rec)
		result.Stats.TotalSteps += rec.Steps
	}
	result.Stats.Days = len(days)
	if result.Stats.Days > 0 {
		result.Stats.AvgSteps = float64(result.Stats.TotalSteps) / float64(result.Stats.Days)
	}

	if opts.PerPage > 0 {
		page := opts.Page
		if page < 1 {
			page = 1
		}
		start := (page - 1) * opts.PerPage
		if start >= len(result.Records) {
			result.Records = nil
		} else {
			end := start + opts.PerPage
			if end > len(result.Records) {
				end = len(result.Records)
			}
			result.Records = result.Records[start:end]
		}
	}
	return result, nil
}

// Maintain deletes rows inserted more than keepDays ago and reclaims
// the freed storage. Returns the number of deleted rows; an empty or
// already-pruned store yields zero.
func (s *Store) Maintain(keepDays int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().UTC().AddDate(0, 0, -keepDays).Format(time.RFC3339)
	res, err := s.db.Exec(`DELETE FROM walk_days WHERE inserted_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("vault: retention delete: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("vault: rows affected: %w", err)
	}
	if deleted > 0 {
		if _, err := s.db.Exec(`VACUUM`); err != nil {
			return int(deleted), fmt.Errorf("vault: vacuum: %w", err)
		}
	}
	return int(deleted), nil
}
