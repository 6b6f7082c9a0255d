// Package persistence stores run history: which plays ran, and how each
// task turned out on each host. The store is optional; the engine runs fine
// without it.
package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const (
	schemaVersion  = 1
	schemaChecksum = "armada-v1-run-history"
)

const schemaDDL = `
CREATE TABLE IF NOT EXISTS schema_meta (
	version  INTEGER NOT NULL,
	checksum TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	playbook    TEXT NOT NULL,
	status      TEXT NOT NULL,
	started_at  TIMESTAMP NOT NULL,
	finished_at TIMESTAMP
);

CREATE TABLE IF NOT EXISTS task_results (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id     TEXT NOT NULL,
	play       TEXT NOT NULL,
	host       TEXT NOT NULL,
	task       TEXT NOT NULL,
	status     TEXT NOT NULL,
	changed    INTEGER NOT NULL DEFAULT 0,
	msg        TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_task_results_run ON task_results(run_id);
`

// RunStatus values for the runs table.
const (
	RunStatusRunning   = "RUNNING"
	RunStatusSucceeded = "SUCCEEDED"
	RunStatusFailed    = "FAILED"
)

// RunRecord is one row of the runs table.
type RunRecord struct {
	ID         string
	Playbook   string
	Status     string
	StartedAt  time.Time
	FinishedAt *time.Time
}

// ResultRecord is one row of the task_results table.
type ResultRecord struct {
	RunID     string
	Play      string
	Host      string
	Task      string
	Status    string
	Changed   bool
	Msg       string
	CreatedAt time.Time
}

// Store wraps the SQLite database holding run history.
type Store struct {
	db *sql.DB
}

// Open creates or opens the history database at path, creating parent
// directories as needed.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create history dir: %w", err)
	}
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	if _, err := s.db.Exec(schemaDDL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM schema_meta`).Scan(&count); err != nil {
		return fmt.Errorf("read schema meta: %w", err)
	}
	if count == 0 {
		if _, err := s.db.Exec(`INSERT INTO schema_meta (version, checksum) VALUES (?, ?)`, schemaVersion, schemaChecksum); err != nil {
			return fmt.Errorf("seed schema meta: %w", err)
		}
		return nil
	}
	var version int
	var checksum string
	if err := s.db.QueryRow(`SELECT version, checksum FROM schema_meta LIMIT 1`).Scan(&version, &checksum); err != nil {
		return fmt.Errorf("read schema meta: %w", err)
	}
	if version != schemaVersion || checksum != schemaChecksum {
		return fmt.Errorf("history db schema mismatch: have v%d (%s), want v%d (%s)", version, checksum, schemaVersion, schemaChecksum)
	}
	return nil
}

// BeginRun records the start of a playbook run.
func (s *Store) BeginRun(ctx context.Context, runID, playbook string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, playbook, status, started_at) VALUES (?, ?, ?, ?)`,
		runID, playbook, RunStatusRunning, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("begin run: %w", err)
	}
	return nil
}

// CompleteRun records a run's terminal status.
func (s *Store) CompleteRun(ctx context.Context, runID, status string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, finished_at = ? WHERE id = ?`,
		status, time.Now().UTC(), runID)
	if err != nil {
		return fmt.Errorf("complete run: %w", err)
	}
	return nil
}

// RecordResult appends one task outcome.
func (s *Store) RecordResult(ctx context.Context, rec ResultRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO task_results (run_id, play, host, task, status, changed, msg, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RunID, rec.Play, rec.Host, rec.Task, rec.Status, boolToInt(rec.Changed), rec.Msg, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("record result: %w", err)
	}
	return nil
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, playbook, status, started_at, finished_at FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		var rec RunRecord
		var finished sql.NullTime
		if err := rows.Scan(&rec.ID, &rec.Playbook, &rec.Status, &rec.StartedAt, &finished); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if finished.Valid {
			rec.FinishedAt = &finished.Time
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// RunResults returns a run's task outcomes in insertion order.
func (s *Store) RunResults(ctx context.Context, runID string) ([]ResultRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, play, host, task, status, changed, msg, created_at
		 FROM task_results WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("run results: %w", err)
	}
	defer rows.Close()

	var out []ResultRecord
	for rows.Next() {
		var rec ResultRecord
		var changed int
		if err := rows.Scan(&rec.RunID, &rec.Play, &rec.Host, &rec.Task, &rec.Status, &changed, &rec.Msg, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		rec.Changed = changed != 0
		out = append(out, rec)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
