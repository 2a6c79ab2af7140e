package db

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// PresenceEvent is one presence transition observed by the monitor.
type PresenceEvent struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Present   bool      `json:"present"`
	Timestamp time.Time `json:"timestamp"`
}

// RecordPresence stores a presence transition. An empty ID is replaced with
// a fresh UUID and the stored ID is returned.
func (db *DB) RecordPresence(e PresenceEvent) (string, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.SessionID == "" {
		return "", fmt.Errorf("presence event %s has no session id", e.ID)
	}
	_, err := db.Exec(
		`INSERT INTO presence_events (event_id, session_id, present, ts_unix_nanos) VALUES (?, ?, ?, ?)`,
		e.ID, e.SessionID, boolToInt(e.Present), toNanos(e.Timestamp),
	)
	if err != nil {
		return "", fmt.Errorf("failed to record presence event: %w", err)
	}
	return e.ID, nil
}

// PresenceEvents returns the most recent events, newest first.
func (db *DB) PresenceEvents(limit int) ([]PresenceEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	return db.queryPresence(
		`SELECT event_id, session_id, present, ts_unix_nanos FROM presence_events
		ORDER BY ts_unix_nanos DESC, rowid DESC LIMIT ?`, limit)
}

// PresenceEventsBetween returns events with from <= ts < to, oldest first.
func (db *DB) PresenceEventsBetween(from, to time.Time) ([]PresenceEvent, error) {
	return db.queryPresence(
		`SELECT event_id, session_id, present, ts_unix_nanos FROM presence_events
		WHERE ts_unix_nanos >= ? AND ts_unix_nanos < ?
		ORDER BY ts_unix_nanos ASC, rowid ASC`, toNanos(from), toNanos(to))
}

// LastPresenceBefore returns the latest event strictly before t. ok is
// false when there is none.
func (db *DB) LastPresenceBefore(t time.Time) (e PresenceEvent, ok bool, err error) {
	events, err := db.queryPresence(
		`SELECT event_id, session_id, present, ts_unix_nanos FROM presence_events
		WHERE ts_unix_nanos < ?
		ORDER BY ts_unix_nanos DESC, rowid DESC LIMIT 1`, toNanos(t))
	if err != nil || len(events) == 0 {
		return PresenceEvent{}, false, err
	}
	return events[0], true, nil
}

func (db *DB) queryPresence(query string, args ...any) ([]PresenceEvent, error) {
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := []PresenceEvent{}
	for rows.Next() {
		var (
			e       PresenceEvent
			present int
			nanos   int64
		)
		if err := rows.Scan(&e.ID, &e.SessionID, &present, &nanos); err != nil {
			return nil, err
		}
		e.Present = present != 0
		e.Timestamp = fromNanos(nanos)
		events = append(events, e)
	}
	return events, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
