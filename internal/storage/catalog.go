// Package storage keeps an optional SQLite log of pipeline runs: what
// each run discovered, skipped and downloaded. The destination
// directory remains the source of truth for what is already present;
// the catalog is only read for reporting.
package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	// SQLite database driver (CGO-free)
	_ "modernc.org/sqlite"

	"github.com/masahif/packfetch/internal/model"
)

// Item statuses
const (
	StatusSkipped    = "skipped"
	StatusDownloaded = "downloaded"
	StatusFailed     = "failed"
)

// Run statuses
const (
	RunRunning     = "running"
	RunCompleted   = "completed"
	RunInterrupted = "interrupted"
	RunFailed      = "failed"
)

// ErrRunNotFound is returned for an unknown run ID
var ErrRunNotFound = errors.New("run not found")

// Catalog is the SQLite run log
type Catalog struct {
	db *sql.DB
}

// RunTotals are the summary counts stored when a run finishes
type RunTotals struct {
	Status       string
	Pages        int
	PageErrors   int
	Discovered   int
	Skipped      int
	Succeeded    int
	Failed       int
	BytesWritten int64
	Err          error
}

// Run is one row of the runs table
type Run struct {
	ID          string
	SeedURL     string
	Destination string
	Status      string
	StartedAt   time.Time
	FinishedAt  *time.Time
	Totals      RunTotals
	Error       string
}

// ItemRecord is one row of the items table
type ItemRecord struct {
	URL           string
	FileName      string
	Title         string
	DeclaredSize  string
	Status        string
	SavedPath     string
	BytesWritten  int64
	ContentLength int64
}

// Open opens (or creates) the catalog at path
func Open(path string) (*Catalog, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}

	// Single connection prevents lock conflicts
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(30 * time.Minute)

	c := &Catalog{db: db}
	if err := c.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return c, nil
}

func (c *Catalog) initSchema() error {
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 30000",
	}

	for _, pragma := range pragmas {
		if _, err := c.db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute pragma %s: %w", pragma, err)
		}
	}

	if _, err := c.db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Close closes the database connection
func (c *Catalog) Close() error {
	return c.db.Close()
}

// BeginRun records the start of a run and returns its ID
func (c *Catalog) BeginRun(seedURL, destination string) (string, error) {
	id := uuid.NewString()

	_, err := c.db.Exec(`
		INSERT INTO runs (id, seed_url, destination, status, started_at)
		VALUES (?, ?, ?, ?, ?)
	`, id, seedURL, destination, RunRunning, time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("failed to insert run: %w", err)
	}
	return id, nil
}

// RecordItems stores items with a status that carries no transfer data
// (skipped or failed). Re-recording an item updates its status.
func (c *Catalog) RecordItems(runID, status string, items []model.Item) error {
	if len(items) == 0 {
		return nil
	}

	return c.inTx(func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`
			INSERT INTO items (run_id, url, file_name, title, declared_size, source_page, status)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(run_id, url) DO UPDATE SET status = excluded.status
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer func() { _ = stmt.Close() }()

		for _, item := range items {
			if _, err := stmt.Exec(runID, item.URL(), item.FileName(), item.Title(),
				item.DeclaredSize(), item.SourcePage(), status); err != nil {
				return fmt.Errorf("failed to insert item %s: %w", item.URL(), err)
			}
		}
		return nil
	})
}

// RecordDownloads stores completed transfers
func (c *Catalog) RecordDownloads(runID string, downloads []model.Download) error {
	if len(downloads) == 0 {
		return nil
	}

	return c.inTx(func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`
			INSERT INTO items (run_id, url, file_name, title, declared_size, source_page, status,
			                   saved_path, bytes_written, content_length, duration_ms, completed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(run_id, url) DO UPDATE SET
				status = excluded.status,
				saved_path = excluded.saved_path,
				bytes_written = excluded.bytes_written,
				content_length = excluded.content_length,
				duration_ms = excluded.duration_ms,
				completed_at = excluded.completed_at
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer func() { _ = stmt.Close() }()

		for _, d := range downloads {
			if _, err := stmt.Exec(runID, d.URL(), d.FileName(), d.Title(), d.DeclaredSize(), d.SourcePage(),
				StatusDownloaded, d.Path, d.BytesWritten, d.ContentLength,
				d.Duration.Milliseconds(), d.CompletedAt); err != nil {
				return fmt.Errorf("failed to insert download %s: %w", d.URL(), err)
			}
		}
		return nil
	})
}

// RecordPageErrors stores secondary pages that failed to crawl
func (c *Catalog) RecordPageErrors(runID string, urls []string) error {
	if len(urls) == 0 {
		return nil
	}

	return c.inTx(func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`INSERT INTO page_errors (run_id, url, occurred_at) VALUES (?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer func() { _ = stmt.Close() }()

		now := time.Now().UTC()
		for _, u := range urls {
			if _, err := stmt.Exec(runID, u, now); err != nil {
				return fmt.Errorf("failed to insert page error %s: %w", u, err)
			}
		}
		return nil
	})
}

// FinishRun stores the final counts and status of a run
func (c *Catalog) FinishRun(runID string, totals RunTotals) error {
	status := totals.Status
	if status == "" {
		status = RunCompleted
	}

	var errMsg sql.NullString
	if totals.Err != nil {
		errMsg = sql.NullString{String: totals.Err.Error(), Valid: true}
	}

	res, err := c.db.Exec(`
		UPDATE runs
		SET status = ?, finished_at = ?, pages = ?, page_errors = ?, discovered = ?,
		    skipped = ?, succeeded = ?, failed = ?, bytes_written = ?, error_message = ?
		WHERE id = ?
	`, status, time.Now().UTC(), totals.Pages, totals.PageErrors, totals.Discovered,
		totals.Skipped, totals.Succeeded, totals.Failed, totals.BytesWritten, errMsg, runID)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return nil
}

// RecentRuns returns up to limit runs, newest first
func (c *Catalog) RecentRuns(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := c.db.Query(`
		SELECT id, seed_url, destination, status, started_at, finished_at,
		       COALESCE(pages, 0), COALESCE(page_errors, 0), COALESCE(discovered, 0),
		       COALESCE(skipped, 0), COALESCE(succeeded, 0), COALESCE(failed, 0),
		       COALESCE(bytes_written, 0), COALESCE(error_message, '')
		FROM runs
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []Run
	for rows.Next() {
		var (
			r        Run
			finished sql.NullTime
		)
		if err := rows.Scan(&r.ID, &r.SeedURL, &r.Destination, &r.Status, &r.StartedAt, &finished,
			&r.Totals.Pages, &r.Totals.PageErrors, &r.Totals.Discovered,
			&r.Totals.Skipped, &r.Totals.Succeeded, &r.Totals.Failed,
			&r.Totals.BytesWritten, &r.Error); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		if finished.Valid {
			t := finished.Time
			r.FinishedAt = &t
		}
		r.Totals.Status = r.Status
		runs = append(runs, r)
	}

	return runs, rows.Err()
}

// Items returns the items recorded for a run, optionally filtered by status
func (c *Catalog) Items(runID, status string) ([]ItemRecord, error) {
	query := `
		SELECT url, file_name, COALESCE(title, ''), COALESCE(declared_size, ''), status,
		       COALESCE(saved_path, ''), COALESCE(bytes_written, 0), COALESCE(content_length, 0)
		FROM items
		WHERE run_id = ?`
	args := []any{runID}
	if status != "" {
		query += " AND status = ?"
		args = append(args, status)
	}
	query += " ORDER BY file_name"

	rows, err := c.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query items: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []ItemRecord
	for rows.Next() {
		var r ItemRecord
		if err := rows.Scan(&r.URL, &r.FileName, &r.Title, &r.DeclaredSize, &r.Status,
			&r.SavedPath, &r.BytesWritten, &r.ContentLength); err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		records = append(records, r)
	}

	return records, rows.Err()
}

func (c *Catalog) inTx(fn func(tx *sql.Tx) error) error {
	tx, err := c.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}
