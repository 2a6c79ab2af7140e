// Package db stores presence transitions and the sensor command log in
// SQLite. The schema is managed by embedded golang-migrate migrations.
package db

import (
	"compress/gzip"
	"database/sql"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/tailscale/tailsql/server/tailsql"
	_ "modernc.org/sqlite"
	"tailscale.com/tsweb"

	"github.com/banshee-data/presence.report/internal/monitoring"
)

type DB struct {
	*sql.DB
}

// pragmas applied to every connection opened by NewDB.
var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA foreign_keys=ON",
}

// OpenDB opens the database without touching the schema.
func OpenDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite allows one writer; a single connection keeps in-memory
	// databases shared and avoids SQLITE_BUSY between our own goroutines.
	db.SetMaxOpenConns(1)

	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}
	return &DB{db}, nil
}

// NewDB opens the database and applies all pending migrations.
func NewDB(path string) (*DB, error) {
	db, err := OpenDB(path)
	if err != nil {
		return nil, err
	}
	if err := db.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func toNanos(t time.Time) int64 {
	return t.UnixNano()
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

// AttachAdminRoutes mounts the database debug pages on the tsweb debugger:
// a tailsql console at /debug/tailsql/, /debug/backup and /debug/migrations.
func (db *DB) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		monitoring.Logf("failed to create tailsql server: %v", err)
	} else {
		tsql.SetDB("sqlite://presence.db", db.DB, &tailsql.DBOptions{
			Label: "Presence DB",
		})
		debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())
	}

	debug.Handle("backup", "Download a gzipped backup of the database", http.HandlerFunc(db.handleBackup))
	debug.Handle("migrations", "Schema migration version", http.HandlerFunc(db.handleMigrations))
}

func (db *DB) handleMigrations(w http.ResponseWriter, r *http.Request) {
	version, dirty, err := db.MigrateVersion()
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to read migration version: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintf(w, "version: %d\ndirty: %v\nlatest: %d\n", version, dirty, LatestMigrationVersion())
}

// handleBackup writes a gzip-compressed copy of the database made with
// VACUUM INTO.
func (db *DB) handleBackup(w http.ResponseWriter, r *http.Request) {
	unixTime := time.Now().Unix()
	backupName := fmt.Sprintf("presence-backup-%d.db", unixTime)
	backupPath := filepath.Join(os.TempDir(), backupName)
	if _, err := db.DB.Exec("VACUUM INTO ?", backupPath); err != nil {
		http.Error(w, fmt.Sprintf("Failed to create backup: %v", err), http.StatusInternalServerError)
		return
	}

	// close the backup file after sending it
	// and remove it from the filesystem
	backupFile, err := os.Open(backupPath)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to open backup file: %v", err), http.StatusInternalServerError)
		return
	}
	defer func() {
		backupFile.Close()
		if err := os.Remove(backupPath); err != nil {
			monitoring.Logf("Failed to remove backup file: %v", err)
		}
	}()

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.gz", backupName))
	w.Header().Set("Content-Type", "application/gzip")

	gzipWriter := gzip.NewWriter(w)
	defer gzipWriter.Close()
	if _, err := io.Copy(gzipWriter, backupFile); err != nil {
		monitoring.Logf("Failed to write backup file: %v", err)
	}
}
