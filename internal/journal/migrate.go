package journal

import (
	"database/sql"
	"embed"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"
)

//go:embed migrations/*/*.sql
var migrationsFS embed.FS

type DBDriver string

const (
	DBSQLite   DBDriver = "sqlite"
	DBPostgres DBDriver = "postgres"
)

// Migrate applies the embedded migrations for driver in file-name order and
// records each applied version, so running it again is a no-op.
func Migrate(db *sql.DB, driver DBDriver) error {
	if db == nil {
		return fmt.Errorf("missing db")
	}
	dialect, err := dialectFor(driver)
	if err != nil {
		return err
	}
	if _, err := db.Exec(dialect.createTable); err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	files, err := listMigrationFiles(dialect.dir)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	for _, file := range files {
		version := strings.TrimSuffix(path.Base(file), ".sql")
		if err := applyMigration(db, dialect, file, version, now); err != nil {
			return err
		}
	}
	return nil
}

func applyMigration(db *sql.DB, d dialect, file, version string, now time.Time) error {
	contents, err := migrationsFS.ReadFile(file)
	if err != nil {
		return err
	}
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	res, err := tx.Exec(d.insertVersion, version, d.appliedAt(now))
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("record migration %s: %w", version, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	if affected == 0 {
		return tx.Rollback()
	}
	if _, err := tx.Exec(string(contents)); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("apply migration %s: %w", version, err)
	}
	return tx.Commit()
}

type dialect struct {
	dir           string
	createTable   string
	insertVersion string
	appliedAt     func(time.Time) any
}

func dialectFor(driver DBDriver) (dialect, error) {
	switch driver {
	case DBSQLite:
		return dialect{
			dir: "migrations/sqlite",
			createTable: `CREATE TABLE IF NOT EXISTS schema_migrations (
  version TEXT PRIMARY KEY,
  applied_at TEXT NOT NULL
)`,
			insertVersion: `INSERT INTO schema_migrations(version, applied_at) VALUES(?, ?) ON CONFLICT(version) DO NOTHING`,
			appliedAt:     func(t time.Time) any { return t.Format(time.RFC3339) },
		}, nil
	case DBPostgres:
		return dialect{
			dir: "migrations/postgres",
			createTable: `CREATE TABLE IF NOT EXISTS infraweave_schema_migrations (
  version TEXT PRIMARY KEY,
  applied_at TIMESTAMPTZ NOT NULL
)`,
			insertVersion: `INSERT INTO infraweave_schema_migrations(version, applied_at) VALUES($1, $2) ON CONFLICT(version) DO NOTHING`,
			appliedAt:     func(t time.Time) any { return t },
		}, nil
	default:
		return dialect{}, fmt.Errorf("unsupported db driver: %s", driver)
	}
}

func listMigrationFiles(dir string) ([]string, error) {
	entries, err := migrationsFS.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		out = append(out, path.Join(dir, e.Name()))
	}
	sort.Strings(out)
	return out, nil
}
