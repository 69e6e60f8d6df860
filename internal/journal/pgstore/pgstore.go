// Package pgstore is the Postgres journal store.
package pgstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/davidahmann/infraweave-panel/internal/journal"
)

type Store struct {
	db *sql.DB
}

func OpenPostgres(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return New(db), nil
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

// WithTx runs fn in a transaction, rolling back when it returns an error.
func (s *Store) WithTx(fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(context.Background(), &sql.TxOptions{})
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

const rfc3339 = `'YYYY-MM-DD"T"HH24:MI:SS"Z"'`

const selectRun = `SELECT run_id, kind, repository, source_branch, target_branch, status, applied_steps::text, failed_step, error, web_url,
  to_char(created_at AT TIME ZONE 'UTC', ` + rfc3339 + `), to_char(updated_at AT TIME ZONE 'UTC', ` + rfc3339 + `)
FROM infraweave_write_runs`

func (s *Store) PutRun(run journal.Run) error {
	if run.RunID == "" {
		return journal.ErrMissingRunID
	}
	steps := run.AppliedSteps
	if steps == nil {
		steps = []string{}
	}
	return s.WithTx(func(tx *sql.Tx) error {
		encoded, err := json.Marshal(steps)
		if err != nil {
			return err
		}
		_, err = tx.Exec(`INSERT INTO infraweave_write_runs(run_id, kind, repository, source_branch, target_branch, status, applied_steps, failed_step, error, web_url, created_at, updated_at)
VALUES($1,$2,$3,$4,$5,$6,$7::jsonb,$8,$9,$10,$11::timestamptz,$12::timestamptz)
ON CONFLICT(run_id) DO UPDATE SET
  status=EXCLUDED.status,
  applied_steps=EXCLUDED.applied_steps,
  failed_step=EXCLUDED.failed_step,
  error=EXCLUDED.error,
  web_url=COALESCE(EXCLUDED.web_url, infraweave_write_runs.web_url),
  updated_at=EXCLUDED.updated_at`,
			run.RunID,
			run.Kind,
			run.Repository,
			run.SourceBranch,
			run.TargetBranch,
			run.Status,
			string(encoded),
			run.FailedStep,
			run.Error,
			run.WebURL,
			run.CreatedAt,
			run.UpdatedAt,
		)
		return err
	})
}

func (s *Store) GetRun(runID string) (journal.Run, bool) {
	run, err := scanRun(s.db.QueryRow(selectRun+` WHERE run_id = $1`, runID))
	if err != nil {
		return journal.Run{}, false
	}
	return run, true
}

func (s *Store) ListRuns(limit int) ([]journal.Run, error) {
	if limit <= 0 {
		limit = journal.DefaultListLimit
	}
	rows, err := s.db.Query(selectRun+`
ORDER BY created_at DESC, run_id ASC
LIMIT $1`, limit)
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
