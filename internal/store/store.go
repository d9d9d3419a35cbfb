// Package store keeps local run state in SQLite: the pipeline run ledger and
// a cache of images extracted from fetched article pages.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// RunStatus is the terminal or current state of a pipeline run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
	RunSkipped   RunStatus = "skipped"
)

// Run is one ledger entry.
type Run struct {
	ID         string
	StartedAt  time.Time
	FinishedAt *time.Time
	Status     RunStatus
	Stats      json.RawMessage
	Error      string
}

// Store represents the SQLite-based local state store
type Store struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// Open opens or creates the store at path, creating parent directories.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db, path: path, now: time.Now}
	if err := s.initialize(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return s, nil
}

func (s *Store) initialize() error {
	runsTable := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		started_at DATETIME NOT NULL,
		finished_at DATETIME,
		status TEXT NOT NULL,
		stats TEXT,
		error TEXT
	);`

	pagesTable := `
	CREATE TABLE IF NOT EXISTS page_images (
		url TEXT PRIMARY KEY,
		images TEXT NOT NULL,
		fetched_at DATETIME NOT NULL
	);`

	for _, stmt := range []string{runsTable, pagesTable, `CREATE INDEX IF NOT EXISTS idx_runs_status ON runs (status, started_at)`} {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}
	return nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// StartRun records a new running entry and returns its id.
func (s *Store) StartRun(ctx context.Context) (string, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, started_at, status) VALUES (?, ?, ?)`,
		id, s.now().UTC(), string(RunRunning))
	if err != nil {
		return "", fmt.Errorf("failed to record run start: %w", err)
	}
	return id, nil
}

// FinishRun records the terminal status of a run. stats is stored as JSON.
func (s *Store) FinishRun(ctx context.Context, id string, status RunStatus, stats any, runErr error) error {
	var statsJSON []byte
	if stats != nil {
		var err error
		if statsJSON, err = json.Marshal(stats); err != nil {
			return fmt.Errorf("failed to encode run stats: %w", err)
		}
	}
	var errText sql.NullString
	if runErr != nil {
		errText = sql.NullString{String: runErr.Error(), Valid: true}
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ?, status = ?, stats = ?, error = ? WHERE id = ?`,
		s.now().UTC(), string(status), nullBytes(statsJSON), errText, id)
	if err != nil {
		return fmt.Errorf("failed to record run finish: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s not found", id)
	}
	return nil
}

// LastSuccess returns the start time of the most recent succeeded run. ok is
// false when no run has succeeded yet.
func (s *Store) LastSuccess(ctx context.Context) (t time.Time, ok bool, err error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT started_at FROM runs WHERE status = ? ORDER BY started_at DESC LIMIT 1`,
		string(RunSucceeded))
	if err := row.Scan(&t); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, err
	}
	return t, true, nil
}

// RecentRuns returns the latest runs, newest first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, started_at, finished_at, status, stats, error FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r        Run
			finished sql.NullTime
			status   string
			stats    sql.NullString
			errText  sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.StartedAt, &finished, &status, &stats, &errText); err != nil {
			return nil, err
		}
		if finished.Valid {
			t := finished.Time
			r.FinishedAt = &t
		}
		r.Status = RunStatus(status)
		if stats.Valid {
			r.Stats = json.RawMessage(stats.String)
		}
		r.Error = errText.String
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// CachePageImages stores the images extracted from a page.
func (s *Store) CachePageImages(ctx context.Context, url string, images []string) error {
	data, err := json.Marshal(images)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO page_images (url, images, fetched_at) VALUES (?, ?, ?)`,
		url, string(data), s.now().UTC())
	return err
}

// PageImages returns cached images for url fetched within maxAge.
func (s *Store) PageImages(ctx context.Context, url string, maxAge time.Duration) ([]string, bool, error) {
	var (
		data      string
		fetchedAt time.Time
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT images, fetched_at FROM page_images WHERE url = ?`, url).Scan(&data, &fetchedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if maxAge > 0 && s.now().Sub(fetchedAt) > maxAge {
		return nil, false, nil
	}

	var images []string
	if err := json.Unmarshal([]byte(data), &images); err != nil {
		return nil, false, fmt.Errorf("corrupt page image cache for %s: %w", url, err)
	}
	return images, true, nil
}

// CleanupPageImages removes cache entries older than maxAge.
func (s *Store) CleanupPageImages(ctx context.Context, maxAge time.Duration) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM page_images WHERE fetched_at < ?`, s.now().UTC().Add(-maxAge))
	if err != nil {
		return 0, fmt.Errorf("failed to clean page image cache: %w", err)
	}
	return res.RowsAffected()
}

func nullBytes(b []byte) sql.NullString {
	return sql.NullString{String: string(b), Valid: len(b) > 0}
}
