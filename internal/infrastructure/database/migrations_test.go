package database

import (
	"context"
	"embed"
	"io/fs"
	"strings"
	"testing"
	"testing/fstest"
	"time"
)

//go:embed testdata/*.sql
var testdataFS embed.FS

// useMigrations swaps the migration source for the duration of a test.
func useMigrations(t *testing.T, fsys fs.FS) {
	t.Helper()
	orig := MigrationsFS
	t.Cleanup(func() { MigrationsFS = orig })
	MigrationsFS = fsys
}

func testMigrations(t *testing.T) fs.FS {
	t.Helper()
	sub, err := fs.Sub(testdataFS, "testdata")
	if err != nil {
		t.Fatalf("fs.Sub() error = %v", err)
	}
	return sub
}

// TestMigrate verifies migration application.
func TestMigrate(t *testing.T) {
	useMigrations(t, testMigrations(t))

	db := openTestDB(t)
	defer db.Close() //nolint:errcheck // Test cleanup

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	var tableName string
	err := db.QueryRowContext(ctx,
		"SELECT name FROM sqlite_master WHERE type='table' AND name='test_users'",
	).Scan(&tableName)
	if err != nil {
		t.Fatalf("table test_users not created: %v", err)
	}

	pending, err := db.PendingMigrations(ctx)
	if err != nil {
		t.Fatalf("PendingMigrations() error = %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("expected 0 pending migrations, got %d", len(pending))
	}

	// Running again should be idempotent
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}
}

// TestMigrateNoMigrations verifies behaviour with no migrations.
func TestMigrateNoMigrations(t *testing.T) {
	useMigrations(t, nil)

	db := openTestDB(t)
	defer db.Close() //nolint:errcheck // Test cleanup

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() with no migrations error = %v", err)
	}
}

// TestMigrateFailureKeepsEarlier verifies a failing migration leaves
// earlier ones applied and is itself rolled back.
func TestMigrateFailureKeepsEarlier(t *testing.T) {
	useMigrations(t, fstest.MapFS{
		"20260101_000000_first.up.sql":  {Data: []byte("CREATE TABLE first (id INTEGER)")},
		"20260102_000000_broken.up.sql": {Data: []byte("CREATE TABLE oops (")},
	})

	db := openTestDB(t)
	defer db.Close() //nolint:errcheck // Test cleanup

	ctx := context.Background()
	err := db.Migrate(ctx)
	if err == nil || !strings.Contains(err.Error(), "20260102_000000") {
		t.Fatalf("Migrate() error = %v, want failure naming 20260102_000000", err)
	}

	pending, err := db.PendingMigrations(ctx)
	if err != nil {
		t.Fatalf("PendingMigrations() error = %v", err)
	}
	if len(pending) != 1 || pending[0].Name != "broken" {
		t.Errorf("pending = %+v, want only broken", pending)
	}
}

// TestPendingMigrations verifies pending migrations are reported before
// the first Migrate without creating any table.
func TestPendingMigrations(t *testing.T) {
	useMigrations(t, testMigrations(t))

	db := openTestDB(t)
	defer db.Close() //nolint:errcheck // Test cleanup

	ctx := context.Background()
	pending, err := db.PendingMigrations(ctx)
	if err != nil {
		t.Fatalf("PendingMigrations() error = %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected 1 pending, got %d", len(pending))
	}
	if pending[0].Version != "20260101_000000" || pending[0].Name != "create_users" {
		t.Errorf("pending[0] = %+v", pending[0])
	}

	var count int
	if err := db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE name='schema_migrations'",
	).Scan(&count); err != nil {
		t.Fatalf("query error: %v", err)
	}
	if count != 0 {
		t.Error("PendingMigrations() should not create schema_migrations")
	}
}

// TestHealthCheckPendingMigrations verifies the health check fails until
// embedded migrations are applied.
func TestHealthCheckPendingMigrations(t *testing.T) {
	useMigrations(t, testMigrations(t))

	db := openTestDB(t)
	defer db.Close() //nolint:errcheck // Test cleanup

	ctx := context.Background()
	err := db.HealthCheck(ctx)
	if err == nil || !strings.Contains(err.Error(), "1 pending migrations") {
		t.Fatalf("HealthCheck() error = %v, want pending migrations", err)
	}

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if err := db.HealthCheck(ctx); err != nil {
		t.Errorf("HealthCheck() after Migrate error = %v", err)
	}
}

// TestLoadMigrationsDuplicateVersion verifies two files sharing a version
// are rejected.
func TestLoadMigrationsDuplicateVersion(t *testing.T) {
	_, err := loadMigrations(fstest.MapFS{
		"20260101_000000_a.up.sql": {Data: []byte("SELECT 1")},
		"20260101_000000_b.up.sql": {Data: []byte("SELECT 1")},
	})
	if err == nil {
		t.Fatal("loadMigrations() expected duplicate version error")
	}
}

// TestParseMigrationFilename verifies filename parsing.
func TestParseMigrationFilename(t *testing.T) {
	tests := []struct {
		filename    string
		wantVersion string
		wantName    string
		wantOk      bool
	}{
		{"20260301_090000_create_audit_logs.up.sql", "20260301_090000", "create_audit_logs", true},
		{"20260412_180000_add_duration_to_audit_logs.up.sql", "20260412_180000", "add_duration_to_audit_logs", true},
		{"20260301_090000_create_audit_logs.down.sql", "", "", false},
		{"20260301_090000_create_audit_logs.sql", "", "", false},
		{"20260301_090000.up.sql", "", "", false},
		{"2026030a_090000_bad_date.up.sql", "", "", false},
		{"invalid.up.sql", "", "", false},
		{"readme.txt", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			version, name, ok := parseMigrationFilename(tt.filename)
			if ok != tt.wantOk {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOk)
			}
			if version != tt.wantVersion || name != tt.wantName {
				t.Errorf("got (%q, %q), want (%q, %q)", version, name, tt.wantVersion, tt.wantName)
			}
		})
	}
}
