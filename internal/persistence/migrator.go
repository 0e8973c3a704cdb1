/**
 * @description
 * This package applies the SQL schema migrations for the pool service. Migration files
 * follow golang-migrate naming ({version}_{name}.up.sql / .down.sql) and are read from
 * an fs.FS, so the binary can run the embedded set or a directory on disk.
 *
 * @dependencies
 * - database/sql: The migrate binary opens Postgres through github.com/lib/pq.
 * - github.com/sirupsen/logrus: Progress logging.
 */
package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

const (
	upSuffix   = ".up.sql"
	downSuffix = ".down.sql"
)

// Migrator runs SQL migration files in order and records them in schema_migrations.
type Migrator struct {
	db     *sql.DB
	files  fs.FS
	logger logrus.FieldLogger
}

func NewMigrator(db *sql.DB, files fs.FS, logger logrus.FieldLogger) *Migrator {
	return &Migrator{db: db, files: files, logger: logger.WithField("component", "migrator")}
}

// Up applies all pending up-migrations in order and returns how many ran.
func (m *Migrator) Up(ctx context.Context) (int, error) {
	if err := m.ensureMigrationTable(ctx); err != nil {
		return 0, fmt.Errorf("ensure migration table: %w", err)
	}

	applied, err := m.appliedVersions(ctx)
	if err != nil {
		return 0, fmt.Errorf("get applied versions: %w", err)
	}

	pending, err := pendingMigrations(m.files, applied)
	if err != nil {
		return 0, fmt.Errorf("list migrations: %w", err)
	}

	for i, name := range pending {
		version := extractVersion(name)
		log := m.logger.WithFields(logrus.Fields{"file": name, "version": version})
		log.Info("applying migration")

		content, err := fs.ReadFile(m.files, name)
		if err != nil {
			return i, fmt.Errorf("read migration %s: %w", name, err)
		}

		err = m.inTx(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, string(content)); err != nil {
				return fmt.Errorf("exec migration %s: %w", name, err)
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO schema_migrations (version, filename) VALUES ($1, $2)`,
				version, name,
			); err != nil {
				return fmt.Errorf("record migration %s: %w", name, err)
			}
			return nil
		})
		if err != nil {
			return i, err
		}
		log.Info("applied migration")
	}

	return len(pending), nil
}

// Down rolls back the last applied migration. It reports false when nothing was applied.
func (m *Migrator) Down(ctx context.Context) (bool, error) {
	if err := m.ensureMigrationTable(ctx); err != nil {
		return false, fmt.Errorf("ensure migration table: %w", err)
	}

	var version, filename string
	err := m.db.QueryRowContext(ctx,
		`SELECT version, filename FROM schema_migrations ORDER BY version DESC LIMIT 1`,
	).Scan(&version, &filename)
	if errors.Is(err, sql.ErrNoRows) {
		m.logger.Info("no migrations to roll back")
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get latest migration: %w", err)
	}

	downFile := downFileFor(filename)
	content, err := fs.ReadFile(m.files, downFile)
	if err != nil {
		return false, fmt.Errorf("read down migration %s: %w", downFile, err)
	}

	err = m.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, string(content)); err != nil {
			return fmt.Errorf("exec down migration %s: %w", downFile, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM schema_migrations WHERE version = $1`, version); err != nil {
			return fmt.Errorf("remove migration record %s: %w", version, err)
		}
		return nil
	})
	if err != nil {
		return false, err
	}

	m.logger.WithField("file", downFile).Info("rolled back migration")
	return true, nil
}

// Pending lists the up-migrations that have not been applied yet.
func (m *Migrator) Pending(ctx context.Context) ([]string, error) {
	if err := m.ensureMigrationTable(ctx); err != nil {
		return nil, fmt.Errorf("ensure migration table: %w", err)
	}
	applied, err := m.appliedVersions(ctx)
	if err != nil {
		return nil, fmt.Errorf("get applied versions: %w", err)
	}
	return pendingMigrations(m.files, applied)
}

func (m *Migrator) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (m *Migrator) ensureMigrationTable(ctx context.Context) error {
	_, err := m.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    TEXT PRIMARY KEY,
			filename   TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	return err
}

func (m *Migrator) appliedVersions(ctx context.Context) (map[string]bool, error) {
	rows, err := m.db.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		applied[v] = true
	}
	return applied, rows.Err()
}

// pendingMigrations returns the up files in files whose version is not in applied, sorted.
func pendingMigrations(files fs.FS, applied map[string]bool) ([]string, error) {
	all, err := listMigrationFiles(files, upSuffix)
	if err != nil {
		return nil, err
	}
	var pending []string
	for _, name := range all {
		if !applied[extractVersion(name)] {
			pending = append(pending, name)
		}
	}
	return pending, nil
}

func listMigrationFiles(files fs.FS, suffix string) ([]string, error) {
	entries, err := fs.ReadDir(files, ".")
	if err != nil {
		return nil, err
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), suffix) {
			names = append(names, e.Name())
		}
	}

	sort.Strings(names)
	return names, nil
}

// extractVersion returns the numeric prefix of a migration filename,
// e.g. "000001_init.up.sql" gives "000001".
func extractVersion(filename string) string {
	version, _, _ := strings.Cut(filename, "_")
	return version
}

func downFileFor(upFile string) string {
	return strings.TrimSuffix(upFile, upSuffix) + downSuffix
}
