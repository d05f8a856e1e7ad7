package database

import (
	"database/sql"
	"fmt"
	"time"
)

// ServerType identifies the kind of media server
type ServerType string

const (
	ServerTypePlex     ServerType = "plex"
	ServerTypeEmby     ServerType = "emby"
	ServerTypeJellyfin ServerType = "jellyfin"
)

// SessionMode controls how playback sessions are observed for a server
type SessionMode string

const (
	// SessionModePolling queries the sessions endpoint on the poll interval
	SessionModePolling SessionMode = "polling"
	// SessionModeWebSocket keeps a WebSocket open for real-time updates
	SessionModeWebSocket SessionMode = "websocket"
)

// MediaServer is a configured media server row
type MediaServer struct {
	ID          int64
	Name        string
	Type        ServerType
	URL         string
	APIKey      string
	SessionMode SessionMode
	Enabled     bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// CreateMediaServer inserts a new media server
func (db *DB) CreateMediaServer(s *MediaServer) error {
	result, err := db.Exec(`
		INSERT INTO media_servers (name, type, url, api_key, session_mode, enabled)
		VALUES (?, ?, ?, ?, ?, ?)
	`, s.Name, s.Type, s.URL, s.APIKey, s.SessionMode, s.Enabled)
	if err != nil {
		return fmt.Errorf("failed to create media server: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get media server id: %w", err)
	}
	s.ID = id
	return nil
}

// GetMediaServer retrieves a media server by ID
func (db *DB) GetMediaServer(id int64) (*MediaServer, error) {
	s := &MediaServer{}
	err := db.QueryRow(`
		SELECT id, name, type, url, api_key, session_mode, enabled, created_at, updated_at
		FROM media_servers WHERE id = ?
	`, id).Scan(&s.ID, &s.Name, &s.Type, &s.URL, &s.APIKey, &s.SessionMode, &s.Enabled, &s.CreatedAt, &s.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get media server: %w", err)
	}
	return s, nil
}

// GetMediaServerByName retrieves a media server by its unique name
func (db *DB) GetMediaServerByName(name string) (*MediaServer, error) {
	s := &MediaServer{}
	err := db.QueryRow(`
		SELECT id, name, type, url, api_key, session_mode, enabled, created_at, updated_at
		FROM media_servers WHERE name = ?
	`, name).Scan(&s.ID, &s.Name, &s.Type, &s.URL, &s.APIKey, &s.SessionMode, &s.Enabled, &s.CreatedAt, &s.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get media server by name: %w", err)
	}
	return s, nil
}

// ListMediaServers returns all media servers
func (db *DB) ListMediaServers() ([]*MediaServer, error) {
	return db.listMediaServers("SELECT id, name, type, url, api_key, session_mode, enabled, created_at, updated_at FROM media_servers ORDER BY name")
}

// ListEnabledMediaServers returns all enabled media servers
func (db *DB) ListEnabledMediaServers() ([]*MediaServer, error) {
	return db.listMediaServers("SELECT id, name, type, url, api_key, session_mode, enabled, created_at, updated_at FROM media_servers WHERE enabled = true ORDER BY name")
}

func (db *DB) listMediaServers(query string) ([]*MediaServer, error) {
	rows, err := db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to list media servers: %w", err)
	}
	defer rows.Close()

	var servers []*MediaServer
	for rows.Next() {
		s := &MediaServer{}
		if err := rows.Scan(&s.ID, &s.Name, &s.Type, &s.URL, &s.APIKey, &s.SessionMode, &s.Enabled, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan media server: %w", err)
		}
		servers = append(servers, s)
	}
	return servers, rows.Err()
}

// UpdateMediaServer updates an existing media server
func (db *DB) UpdateMediaServer(s *MediaServer) error {
	_, err := db.Exec(`
		UPDATE media_servers
		SET name = ?, type = ?, url = ?, api_key = ?, session_mode = ?, enabled = ?, updated_at = ?
		WHERE id = ?
	`, s.Name, s.Type, s.URL, s.APIKey, s.SessionMode, s.Enabled, time.Now(), s.ID)
	if err != nil {
		return fmt.Errorf("failed to update media server: %w", err)
	}
	return nil
}

// UpsertMediaServerByName inserts or updates a media server keyed by name.
// Used by env-var seeding and config file reloads.
func (db *DB) UpsertMediaServerByName(s *MediaServer) error {
	existing, err := db.GetMediaServerByName(s.Name)
	if err != nil {
		return err
	}
	if existing == nil {
		return db.CreateMediaServer(s)
	}
	s.ID = existing.ID
	return db.UpdateMediaServer(s)
}

// DeleteMediaServer removes a media server
func (db *DB) DeleteMediaServer(id int64) error {
	_, err := db.Exec("DELETE FROM media_servers WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete media server: %w", err)
	}
	return nil
}
