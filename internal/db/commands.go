package db

import (
	"fmt"
	"time"
)

// CommandRecord is one command sent to the sensor, with its outcome.
type CommandRecord struct {
	ID        int64     `json:"id"`
	Command   string    `json:"command"`
	Source    string    `json:"source"`
	Success   bool      `json:"success"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// RecordCommand appends an entry to the command log. cmdErr may be nil.
func (db *DB) RecordCommand(command, source string, cmdErr error, at time.Time) (int64, error) {
	msg := ""
	if cmdErr != nil {
		msg = cmdErr.Error()
	}
	res, err := db.Exec(
		`INSERT INTO command_log (command, source, success, error, ts_unix_nanos) VALUES (?, ?, ?, ?, ?)`,
		command, source, boolToInt(cmdErr == nil), msg, toNanos(at),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to record command %q: %w", command, err)
	}
	return res.LastInsertId()
}

// RecentCommands returns the newest command log entries first.
func (db *DB) RecentCommands(limit int) ([]CommandRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(
		`SELECT command_id, command, source, success, error, ts_unix_nanos FROM command_log
		ORDER BY command_id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []CommandRecord{}
	for rows.Next() {
		var (
			r       CommandRecord
			success int
			nanos   int64
		)
		if err := rows.Scan(&r.ID, &r.Command, &r.Source, &success, &r.Error, &nanos); err != nil {
			return nil, err
		}
		r.Success = success != 0
		r.Timestamp = fromNanos(nanos)
		records = append(records, r)
	}
	return records, rows.Err()
}
