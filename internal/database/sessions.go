package database

import (
	"fmt"
	"time"
)

// ActiveSession mirrors a currently active playback session for the status API
type ActiveSession struct {
	ID         string
	ServerType string
	ServerID   string
	Username   string
	MediaTitle string
	MediaType  string
	Player     string
	UpdatedAt  time.Time
}

// UpsertActiveSession inserts or updates an active session
func (db *DB) UpsertActiveSession(s *ActiveSession) error {
	_, err := db.Exec(`
		INSERT INTO active_sessions (id, server_type, server_id, username, media_title, media_type, player, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			username = excluded.username,
			media_title = excluded.media_title,
			media_type = excluded.media_type,
			player = excluded.player,
			updated_at = excluded.updated_at
	`, s.ID, s.ServerType, s.ServerID, s.Username, s.MediaTitle, s.MediaType, s.Player, time.Now())
	if err != nil {
		return fmt.Errorf("failed to upsert active session: %w", err)
	}
	return nil
}

// ListActiveSessions returns all active sessions
func (db *DB) ListActiveSessions() ([]*ActiveSession, error) {
	rows, err := db.Query(`
		SELECT id, server_type, server_id, username, media_title, media_type, player, updated_at
		FROM active_sessions ORDER BY server_type, username
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list active sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*ActiveSession
	for rows.Next() {
		s := &ActiveSession{}
		if err := rows.Scan(&s.ID, &s.ServerType, &s.ServerID, &s.Username, &s.MediaTitle, &s.MediaType, &s.Player, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan active session: %w", err)
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// DeleteActiveSession removes a session by ID
func (db *DB) DeleteActiveSession(id string) error {
	_, err := db.Exec("DELETE FROM active_sessions WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete active session: %w", err)
	}
	return nil
}

// DeleteActiveSessionsForServer removes all sessions for a server
func (db *DB) DeleteActiveSessionsForServer(serverID string) error {
	_, err := db.Exec("DELETE FROM active_sessions WHERE server_id = ?", serverID)
	if err != nil {
		return fmt.Errorf("failed to delete sessions for server: %w", err)
	}
	return nil
}

// ClearActiveSessions removes all active sessions (used on startup)
func (db *DB) ClearActiveSessions() error {
	_, err := db.Exec("DELETE FROM active_sessions")
	if err != nil {
		return fmt.Errorf("failed to clear active sessions: %w", err)
	}
	return nil
}
