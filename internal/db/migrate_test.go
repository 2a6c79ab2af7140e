package db

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
)

func TestLatestMigrationVersion(t *testing.T) {
	if got := LatestMigrationVersion(); got != 2 {
		t.Errorf("LatestMigrationVersion() = %d, want 2", got)
	}
}

func TestNewDB_AppliesMigrations(t *testing.T) {
	db := setupTestDB(t)

	version, dirty, err := db.MigrateVersion()
	if err != nil {
		t.Fatalf("MigrateVersion: %v", err)
	}
	if version != LatestMigrationVersion() || dirty {
		t.Errorf("version = %d dirty = %v, want %d clean", version, dirty, LatestMigrationVersion())
	}

	for _, table := range []string{"presence_events", "command_log"} {
		var name string
		err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&name)
		if err != nil {
			t.Errorf("table %s missing: %v", table, err)
		}
	}
}

func TestMigrateUp_Idempotent(t *testing.T) {
	db := setupTestDB(t)
	if err := db.MigrateUp(); err != nil {
		t.Errorf("second MigrateUp() = %v, want nil", err)
	}
}

func TestMigrateDownAndTo(t *testing.T) {
	db := setupTestDB(t)

	if err := db.MigrateDown(); err != nil {
		t.Fatalf("MigrateDown: %v", err)
	}
	if v, _, _ := db.MigrateVersion(); v != 1 {
		t.Errorf("after down version = %d, want 1", v)
	}
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE name='command_log'`).Scan(&n); err != nil || n != 0 {
		t.Errorf("command_log still present after down (n=%d, err=%v)", n, err)
	}

	if err := db.MigrateTo(2); err != nil {
		t.Fatalf("MigrateTo(2): %v", err)
	}
	if v, _, _ := db.MigrateVersion(); v != 2 {
		t.Errorf("after MigrateTo version = %d, want 2", v)
	}
}

func TestMigrateVersion_Fresh(t *testing.T) {
	db, err := OpenDB(filepath.Join(t.TempDir(), "fresh.db"))
	if err != nil {
		t.Fatalf("OpenDB: %v", err)
	}
	defer db.Close()

	version, dirty, err := db.MigrateVersion()
	if err != nil || version != 0 || dirty {
		t.Errorf("MigrateVersion() = %d, %v, %v; want 0, false, nil", version, dirty, err)
	}
}

func TestMigrateForce(t *testing.T) {
	db := setupTestDB(t)
	if err := db.MigrateForce(1); err != nil {
		t.Fatalf("MigrateForce: %v", err)
	}
	if v, dirty, _ := db.MigrateVersion(); v != 1 || dirty {
		t.Errorf("version = %d dirty = %v, want 1 clean", v, dirty)
	}
}

func TestRunMigrateCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cli.db")

	tests := []struct {
		name    string
		args    []string
		wantErr bool
		want    string
	}{
		{"help", []string{"help"}, false, "Usage: presence migrate"},
		{"no args", nil, true, "Usage: presence migrate"},
		{"up", []string{"up"}, false, "Current version: 2"},
		{"status", []string{"status"}, false, "Latest version: 2"},
		{"down", []string{"down"}, false, "Current version: 1"},
		{"version", []string{"version", "2"}, false, "Migrated to version 2"},
		{"version missing arg", []string{"version"}, true, ""},
		{"version bad arg", []string{"version", "x"}, true, ""},
		{"force", []string{"force", "2"}, false, "forced to 2"},
		{"unknown", []string{"sideways"}, true, "Usage: presence migrate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			err := RunMigrateCommand(tt.args, path, &out)
			if (err != nil) != tt.wantErr {
				t.Fatalf("RunMigrateCommand(%v) error = %v, wantErr %v", tt.args, err, tt.wantErr)
			}
			if !strings.Contains(out.String(), tt.want) {
				t.Errorf("output %q does not contain %q", out.String(), tt.want)
			}
		})
	}
}
