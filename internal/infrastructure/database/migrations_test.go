package database

import (
	"context"
	"embed"
	"strings"
	"testing"
)

//go:embed testdata
var testMigrationsFS embed.FS

// useTestMigrations points the package at the embedded test schema for the
// duration of one test.
func useTestMigrations(t *testing.T, dir string) {
	t.Helper()

	origFS := MigrationsFS
	origDir := MigrationsDir
	t.Cleanup(func() {
		MigrationsFS = origFS
		MigrationsDir = origDir
	})

	MigrationsFS = testMigrationsFS
	MigrationsDir = dir
}

// TestMigrate verifies that schema steps apply in version order and that a
// second run is a no-op.
func TestMigrate(t *testing.T) {
	useTestMigrations(t, "testdata")

	db := openTestDB(t)
	defer db.Close() //nolint:errcheck // Test cleanup

	ctx := context.Background()

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	// The second step ALTERs the table created by the first, so its
	// presence proves both ran and ran in order.
	var notes string
	err := db.QueryRowContext(ctx,
		"INSERT INTO test_rig (board_id) VALUES ('board0') RETURNING notes",
	).Scan(&notes)
	if err != nil {
		t.Fatalf("schema incomplete after Migrate(): %v", err)
	}
	if notes != "" {
		t.Errorf("notes default = %q, want empty", notes)
	}

	var ledger int
	if err := db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM schema_migrations",
	).Scan(&ledger); err != nil {
		t.Fatalf("reading ledger: %v", err)
	}
	if ledger != 2 {
		t.Errorf("ledger rows = %d, want 2", ledger)
	}

	// Re-running against the same file must change nothing.
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}
	if err := db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM schema_migrations",
	).Scan(&ledger); err != nil {
		t.Fatalf("reading ledger: %v", err)
	}
	if ledger != 2 {
		t.Errorf("ledger rows after rerun = %d, want 2", ledger)
	}
}

// TestMigrateDuplicateVersion verifies that two files sharing a version
// stamp are rejected before anything is applied.
func TestMigrateDuplicateVersion(t *testing.T) {
	useTestMigrations(t, "testdata/dup")

	db := openTestDB(t)
	defer db.Close() //nolint:errcheck // Test cleanup

	ctx := context.Background()

	err := db.Migrate(ctx)
	if err == nil {
		t.Fatal("Migrate() with duplicate versions should fail")
	}
	if !strings.Contains(err.Error(), "duplicate schema version") {
		t.Errorf("error = %v, want duplicate version report", err)
	}

	// Nothing may have been applied.
	var count int
	err = db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name LIKE 'dup_%'",
	).Scan(&count)
	if err != nil {
		t.Fatalf("query error: %v", err)
	}
	if count != 0 {
		t.Errorf("found %d tables from rejected migration set", count)
	}
}

// TestMigrateEmptyFS verifies the no-migrations case is a clean no-op.
func TestMigrateEmptyFS(t *testing.T) {
	origFS := MigrationsFS
	origDir := MigrationsDir
	t.Cleanup(func() {
		MigrationsFS = origFS
		MigrationsDir = origDir
	})

	var emptyFS embed.FS
	MigrationsFS = emptyFS
	MigrationsDir = "."

	db := openTestDB(t)
	defer db.Close() //nolint:errcheck // Test cleanup

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() with no migrations error = %v", err)
	}
}

// TestSchemaVersion verifies the newest applied version is reported.
func TestSchemaVersion(t *testing.T) {
	useTestMigrations(t, "testdata")

	db := openTestDB(t)
	defer db.Close() //nolint:errcheck // Test cleanup

	ctx := context.Background()

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	version, err := db.SchemaVersion(ctx)
	if err != nil {
		t.Fatalf("SchemaVersion() error = %v", err)
	}
	if version != "20260118_130000" {
		t.Errorf("SchemaVersion() = %q, want 20260118_130000", version)
	}
}

// TestParseMigrationName verifies filename convention handling.
func TestParseMigrationName(t *testing.T) {
	tests := []struct {
		name        string
		filename    string
		wantVersion string
		wantName    string
		wantOk      bool
	}{
		{
			name:        "valid schema file",
			filename:    "20260122_090000_session_schema.sql",
			wantVersion: "20260122_090000",
			wantName:    "session_schema",
			wantOk:      true,
		},
		{
			name:     "not a sql file",
			filename: "readme.txt",
			wantOk:   false,
		},
		{
			name:     "missing version stamp",
			filename: "session_schema.sql",
			wantOk:   false,
		},
		{
			name:     "legacy down file is skipped",
			filename: "20260122_090000_session_schema.down.sql",
			wantOk:   false,
		},
		{
			name:     "truncated version",
			filename: "2026_0122_session_schema.sql",
			wantOk:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			version, name, ok := parseMigrationName(tt.filename)
			if ok != tt.wantOk {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOk)
			}
			if !ok {
				return
			}
			if version != tt.wantVersion {
				t.Errorf("version = %q, want %q", version, tt.wantVersion)
			}
			if name != tt.wantName {
				t.Errorf("name = %q, want %q", name, tt.wantName)
			}
		})
	}
}
