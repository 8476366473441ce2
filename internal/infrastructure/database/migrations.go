package database

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"sort"
	"time"
)

// MigrationsFS holds the embedded schema files. The top-level migrations
// package assigns it from its go:embed directive at init time, before any
// session file is opened:
//
//	//go:embed *.sql
//	var migrationsFS embed.FS
//
//	func init() {
//	    database.MigrationsFS = migrationsFS
//	    database.MigrationsDir = "."
//	}
var MigrationsFS embed.FS

// MigrationsDir is the directory inside MigrationsFS containing the schema
// files.
var MigrationsDir = "migrations"

// Migration is one versioned schema step, loaded from an embedded
// <version>_<name>.sql file.
//
// The schema only ever moves forward: session files are written once and a
// broken file is deleted, not rolled back, so there are no down steps.
type Migration struct {
	// Version is the timestamp prefix of the filename, e.g. 20260122_090000.
	// Versions order the steps and key the schema_migrations ledger.
	Version string

	// Name is the descriptive remainder of the filename.
	Name string

	// SQL is the full content of the schema file.
	SQL string
}

// migrationFile matches <YYYYMMDD_HHMMSS>_<name>.sql.
var migrationFile = regexp.MustCompile(`^(\d{8}_\d{6})_([A-Za-z0-9_]+)\.sql$`)

// Migrate brings the session file to the current schema.
//
// Steps are applied in version order, each inside its own transaction
// together with its schema_migrations row, so a failure leaves the file at
// a clean version boundary. Creating a fresh session file and re-running
// Migrate on an existing one are the same operation: versions already
// recorded in the file are skipped.
//
// Parameters:
//   - ctx: checked between steps; a single step is never interrupted
//
// Returns:
//   - error: the first step that failed, or nil
func (db *DB) Migrate(ctx context.Context) error {
	migrations, err := loadMigrations()
	if err != nil {
		return err
	}
	if len(migrations) == 0 {
		return nil
	}

	if err := db.ensureVersionTable(ctx); err != nil {
		return err
	}

	applied, err := db.appliedVersions(ctx)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if applied[m.Version] {
			continue
		}
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("schema migration interrupted: %w", err)
		}
		if err := db.applyMigration(ctx, m); err != nil {
			return fmt.Errorf("applying schema %s (%s): %w", m.Version, m.Name, err)
		}
	}

	return nil
}

// SchemaVersion reports the newest schema version recorded in the file, or
// the empty string when the ledger is empty. Only meaningful after Migrate
// has run; a bare file has no ledger to read.
func (db *DB) SchemaVersion(ctx context.Context) (string, error) {
	var version string
	err := db.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(version), '') FROM schema_migrations",
	).Scan(&version)
	if err != nil {
		return "", fmt.Errorf("reading schema version: %w", err)
	}
	return version, nil
}

// ensureVersionTable creates the version ledger if the file does not have
// one yet.
func (db *DB) ensureVersionTable(ctx context.Context) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    TEXT PRIMARY KEY,
			name       TEXT NOT NULL,
			applied_at TEXT NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}
	return nil
}

// appliedVersions returns the set of versions already recorded in the file.
func (db *DB) appliedVersions(ctx context.Context) (map[string]bool, error) {
	rows, err := db.QueryContext(ctx, "SELECT version FROM schema_migrations")
	if err != nil {
		return nil, fmt.Errorf("reading applied versions: %w", err)
	}
	defer rows.Close() //nolint:errcheck // Read-only cursor

	applied := make(map[string]bool)
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scanning applied version: %w", err)
		}
		applied[v] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating applied versions: %w", err)
	}
	return applied, nil
}

// applyMigration runs one schema step and its ledger insert in a single
// transaction.
func (db *DB) applyMigration(ctx context.Context, m Migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, ?)",
		m.Version, m.Name, time.Now().UTC().Format(time.RFC3339),
	); err != nil {
		return fmt.Errorf("recording version: %w", err)
	}

	return tx.Commit()
}

// loadMigrations reads every schema file from the embedded filesystem and
// returns them sorted by version. An unset MigrationsFS yields an empty
// slice so the package can be tested against a bare file.
func loadMigrations() ([]Migration, error) {
	var empty embed.FS
	if MigrationsFS == empty {
		return nil, nil
	}

	entries, err := fs.ReadDir(MigrationsFS, MigrationsDir)
	if err != nil {
		return nil, fmt.Errorf("reading migrations directory: %w", err)
	}

	seen := make(map[string]string)
	var migrations []Migration
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		version, name, ok := parseMigrationName(entry.Name())
		if !ok {
			continue
		}
		if prev, dup := seen[version]; dup {
			return nil, fmt.Errorf("duplicate schema version %s: %s and %s", version, prev, entry.Name())
		}
		seen[version] = entry.Name()

		src, err := fs.ReadFile(MigrationsFS, path.Join(MigrationsDir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", entry.Name(), err)
		}

		migrations = append(migrations, Migration{
			Version: version,
			Name:    name,
			SQL:     string(src),
		})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})

	return migrations, nil
}

// parseMigrationName splits a schema filename into its version stamp and
// descriptive name. Files that do not match the convention are skipped by
// the loader rather than rejected, so an editor artefact in the directory
// is harmless.
func parseMigrationName(filename string) (version, name string, ok bool) {
	m := migrationFile.FindStringSubmatch(filename)
	if m == nil {
		return "", "", false
	}
	return m[1], m[2], true
}
