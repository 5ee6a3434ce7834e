// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package history keeps a SQLite ledger of retrieval runs: the queries, the
// exit path taken, and which URLs were returned.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
	"unicode/utf8"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/source-retriever/internal/workflow"
)

const defaultListLimit = 20

// timeLayout has a fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// ErrRunNotFound is returned by Results for an unknown run id.
var ErrRunNotFound = errors.New("run not found")

// Store manages the history database.
type Store struct {
	db *sql.DB
}

// Run summarizes one recorded retrieval.
type Run struct {
	RunID      string        `json:"run_id" yaml:"run_id"`
	StartedAt  time.Time     `json:"started_at" yaml:"started_at"`
	Duration   time.Duration `json:"duration" yaml:"duration"`
	Path       string        `json:"path" yaml:"path"`
	Queries    []string      `json:"queries" yaml:"queries"`
	Candidates int           `json:"candidates" yaml:"candidates"`
	Results    int           `json:"results" yaml:"results"`
	Enriched   int           `json:"enriched" yaml:"enriched"`
}

// ResultRow is one returned candidate of a recorded run. Only the snippet
// length is stored, not the text.
type ResultRow struct {
	Position     int    `json:"position" yaml:"position"`
	URL          string `json:"url" yaml:"url"`
	Title        string `json:"title" yaml:"title"`
	Source       string `json:"source" yaml:"source"`
	SnippetChars int    `json:"snippet_chars" yaml:"snippet_chars"`
}

// Open opens or creates the history database at path, creating parent
// directories and the schema as needed.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating history directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{db: db}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			started_at TEXT NOT NULL,
			duration_ms INTEGER NOT NULL,
			path TEXT NOT NULL,
			queries TEXT NOT NULL,
			candidates INTEGER NOT NULL,
			results INTEGER NOT NULL,
			enriched INTEGER NOT NULL,
			timed_out TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS results (
			run_id TEXT NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE,
			position INTEGER NOT NULL,
			url TEXT NOT NULL,
			title TEXT,
			source TEXT,
			snippet_chars INTEGER,
			PRIMARY KEY (run_id, position)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at)`,
		`CREATE INDEX IF NOT EXISTS idx_results_url ON results(url)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// Record stores out. Recording the same run id twice replaces the first copy.
func (s *Store) Record(ctx context.Context, out workflow.Outcome) error {
	queries, err := json.Marshal(nonNil(out.Queries))
	if err != nil {
		return fmt.Errorf("encoding queries: %w", err)
	}
	timedOut, err := json.Marshal(nonNil(out.TimedOut))
	if err != nil {
		return fmt.Errorf("encoding timed-out queries: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM results WHERE run_id = ?`, out.RunID); err != nil {
		return fmt.Errorf("clearing results: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO runs
			(run_id, started_at, duration_ms, path, queries, candidates, results, enriched, timed_out)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		out.RunID, out.StartedAt.UTC().Format(timeLayout), out.Duration.Milliseconds(),
		string(out.Path), string(queries), out.Candidates, len(out.Results), out.Enriched, string(timedOut),
	); err != nil {
		return fmt.Errorf("inserting run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO results (run_id, position, url, title, source, snippet_chars) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing result insert: %w", err)
	}
	defer stmt.Close()

	for i, r := range out.Results {
		if _, err := stmt.ExecContext(ctx, out.RunID, i, r.URL, r.Title, string(r.Source), utf8.RuneCountInString(r.Snippet)); err != nil {
			return fmt.Errorf("inserting result %d: %w", i, err)
		}
	}

	return tx.Commit()
}

// List returns the most recent runs, newest first. A limit of 0 or less
// returns up to 20 runs.
func (s *Store) List(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, started_at, duration_ms, path, queries, candidates, results, enriched
		FROM runs ORDER BY started_at DESC, run_id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r          Run
			startedAt  string
			durationMS int64
			queries    string
		)
		if err := rows.Scan(&r.RunID, &startedAt, &durationMS, &r.Path, &queries, &r.Candidates, &r.Results, &r.Enriched); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		r.StartedAt, _ = time.Parse(timeLayout, startedAt)
		r.Duration = time.Duration(durationMS) * time.Millisecond
		json.Unmarshal([]byte(queries), &r.Queries)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Results returns the candidates a run returned, in output order.
func (s *Store) Results(ctx context.Context, runID string) ([]ResultRow, error) {
	var exists int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM runs WHERE run_id = ?`, runID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("looking up run: %w", err)
	}
	if exists == 0 {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT position, url, title, source, snippet_chars FROM results WHERE run_id = ? ORDER BY position`, runID)
	if err != nil {
		return nil, fmt.Errorf("querying results: %w", err)
	}
	defer rows.Close()

	out := []ResultRow{}
	for rows.Next() {
		var (
			r      ResultRow
			title  sql.NullString
			source sql.NullString
			chars  sql.NullInt64
		)
		if err := rows.Scan(&r.Position, &r.URL, &title, &source, &chars); err != nil {
			return nil, fmt.Errorf("scanning result: %w", err)
		}
		r.Title, r.Source, r.SnippetChars = title.String, source.String, int(chars.Int64)
		out = append(out, r)
	}
	return out, rows.Err()
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
