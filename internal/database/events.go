package database

import (
	"fmt"
	"time"
)

// PauseEvent records one pause/resume transition applied to the download clients
type PauseEvent struct {
	ID          int64
	Action      string // "pause" or "resume"
	Source      string // "webhook" or "poller"
	Detail      string // human-readable trigger description
	ClientCount int
	ErrorCount  int
	CreatedAt   time.Time
}

// RecordPauseEvent inserts a pause/resume transition into the history
func (db *DB) RecordPauseEvent(e *PauseEvent) error {
	result, err := db.Exec(`
		INSERT INTO pause_events (action, source, detail, client_count, error_count)
		VALUES (?, ?, ?, ?, ?)
	`, e.Action, e.Source, e.Detail, e.ClientCount, e.ErrorCount)
	if err != nil {
		return fmt.Errorf("failed to record pause event: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get pause event id: %w", err)
	}
	e.ID = id
	return nil
}

// ListPauseEvents returns the most recent pause events, newest first
func (db *DB) ListPauseEvents(limit int) ([]*PauseEvent, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := db.Query(`
		SELECT id, action, source, detail, client_count, error_count, created_at
		FROM pause_events ORDER BY created_at DESC, id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list pause events: %w", err)
	}
	defer rows.Close()

	var events []*PauseEvent
	for rows.Next() {
		e := &PauseEvent{}
		if err := rows.Scan(&e.ID, &e.Action, &e.Source, &e.Detail, &e.ClientCount, &e.ErrorCount, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan pause event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// CleanupPauseEvents deletes pause events older than the given number of days.
// A zero or negative value keeps history forever.
func (db *DB) CleanupPauseEvents(days int) (int64, error) {
	if days <= 0 {
		return 0, nil
	}

	cutoff := time.Now().AddDate(0, 0, -days)
	result, err := db.Exec("DELETE FROM pause_events WHERE created_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup pause events: %w", err)
	}
	return result.RowsAffected()
}
