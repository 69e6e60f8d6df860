// Package sqlstore is the SQLite journal store.
package sqlstore

import (
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/davidahmann/infraweave-panel/internal/journal"
)

type Store struct {
	db *sql.DB
}

func OpenSQLite(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000;"); err != nil {
		_ = db.Close()
		return nil, err
	}
	return New(db), nil
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) DB() *sql.DB {
	return s.db
}

const runColumns = `run_id, kind, repository, source_branch, target_branch, status, applied_steps, failed_step, error, web_url, created_at, updated_at`

func (s *Store) PutRun(run journal.Run) error {
	if run.RunID == "" {
		return journal.ErrMissingRunID
	}
	steps, err := json.Marshal(nonNil(run.AppliedSteps))
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`INSERT INTO write_runs(`+runColumns+`)
VALUES(?,?,?,?,?,?,?,?,?,?,?,?)
ON CONFLICT(run_id) DO UPDATE SET
  status=excluded.status,
  applied_steps=excluded.applied_steps,
  failed_step=excluded.failed_step,
  error=excluded.error,
  web_url=COALESCE(excluded.web_url, write_runs.web_url),
  updated_at=excluded.updated_at`,
		run.RunID,
		run.Kind,
		run.Repository,
		run.SourceBranch,
		run.TargetBranch,
		run.Status,
		string(steps),
		run.FailedStep,
		run.Error,
		run.WebURL,
		run.CreatedAt,
		run.UpdatedAt,
	)
	return err
}

func (s *Store) GetRun(runID string) (journal.Run, bool) {
	row := s.db.QueryRow(`SELECT `+runColumns+` FROM write_runs WHERE run_id = ?`, runID)
	run, err := scanRun(row)
	if err != nil {
		return journal.Run{}, false
	}
	return run, true
}

func (s *Store) ListRuns(limit int) ([]journal.Run, error) {
	if limit <= 0 {
		limit = journal.DefaultListLimit
	}
	rows, err := s.db.Query(`SELECT `+runColumns+` FROM write_runs
ORDER BY created_at DESC, run_id ASC
LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []journal.Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (journal.Run, error) {
	var run journal.Run
	var steps string
	if err := row.Scan(&run.RunID, &run.Kind, &run.Repository, &run.SourceBranch, &run.TargetBranch, &run.Status,
		&steps, &run.FailedStep, &run.Error, &run.WebURL, &run.CreatedAt, &run.UpdatedAt); err != nil {
		return journal.Run{}, err
	}
	if err := json.Unmarshal([]byte(steps), &run.AppliedSteps); err != nil {
		return journal.Run{}, fmt.Errorf("decode applied steps of %s: %w", run.RunID, err)
	}
	return run, nil
}

func nonNil(steps []string) []string {
	if steps == nil {
		return []string{}
	}
	return steps
}
