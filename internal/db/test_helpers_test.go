package db

import (
	"path/filepath"
	"testing"
	"time"
)

var testEpoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

// setupTestDB opens a migrated database in a per-test temp directory.
func setupTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "presence.db"))
	if err != nil {
		t.Fatalf("failed to create test DB: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func recordAt(t *testing.T, db *DB, present bool, at time.Time) string {
	t.Helper()
	id, err := db.RecordPresence(PresenceEvent{SessionID: "session-1", Present: present, Timestamp: at})
	if err != nil {
		t.Fatalf("RecordPresence: %v", err)
	}
	return id
}
