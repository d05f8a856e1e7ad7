package database

import (
	"database/sql"
	"fmt"
	"time"
)

// ClientType identifies the kind of download client
type ClientType string

const (
	ClientTypeSABnzbd     ClientType = "sabnzbd"
	ClientTypeDeluge      ClientType = "deluge"
	ClientTypeQBittorrent ClientType = "qbittorrent"
)

// DownloadClient is a configured download client row
type DownloadClient struct {
	ID        int64
	Name      string
	Type      ClientType
	Host      string
	Port      int
	Username  string
	Password  string
	APIKey    string
	UseSSL    bool
	Enabled   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// BaseURL returns the client's HTTP base URL
func (c *DownloadClient) BaseURL() string {
	scheme := "http"
	if c.UseSSL {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, c.Host, c.Port)
}

// CreateDownloadClient inserts a new download client
func (db *DB) CreateDownloadClient(c *DownloadClient) error {
	result, err := db.Exec(`
		INSERT INTO download_clients (name, type, host, port, username, password, api_key, use_ssl, enabled)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, c.Name, c.Type, c.Host, c.Port, c.Username, c.Password, c.APIKey, c.UseSSL, c.Enabled)
	if err != nil {
		return fmt.Errorf("failed to create download client: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get download client id: %w", err)
	}
	c.ID = id
	return nil
}

// GetDownloadClient retrieves a download client by ID
func (db *DB) GetDownloadClient(id int64) (*DownloadClient, error) {
	c := &DownloadClient{}
	err := db.QueryRow(`
		SELECT id, name, type, host, port, username, password, api_key, use_ssl, enabled, created_at, updated_at
		FROM download_clients WHERE id = ?
	`, id).Scan(&c.ID, &c.Name, &c.Type, &c.Host, &c.Port, &c.Username, &c.Password, &c.APIKey, &c.UseSSL, &c.Enabled, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get download client: %w", err)
	}
	return c, nil
}

// GetDownloadClientByName retrieves a download client by its unique name
func (db *DB) GetDownloadClientByName(name string) (*DownloadClient, error) {
	c := &DownloadClient{}
	err := db.QueryRow(`
		SELECT id, name, type, host, port, username, password, api_key, use_ssl, enabled, created_at, updated_at
		FROM download_clients WHERE name = ?
	`, name).Scan(&c.ID, &c.Name, &c.Type, &c.Host, &c.Port, &c.Username, &c.Password, &c.APIKey, &c.UseSSL, &c.Enabled, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get download client by name: %w", err)
	}
	return c, nil
}

// ListDownloadClients returns all download clients
func (db *DB) ListDownloadClients() ([]*DownloadClient, error) {
	return db.listDownloadClients("SELECT id, name, type, host, port, username, password, api_key, use_ssl, enabled, created_at, updated_at FROM download_clients ORDER BY name")
}

// ListEnabledDownloadClients returns all enabled download clients
func (db *DB) ListEnabledDownloadClients() ([]*DownloadClient, error) {
	return db.listDownloadClients("SELECT id, name, type, host, port, username, password, api_key, use_ssl, enabled, created_at, updated_at FROM download_clients WHERE enabled = true ORDER BY name")
}

func (db *DB) listDownloadClients(query string) ([]*DownloadClient, error) {
	rows, err := db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to list download clients: %w", err)
	}
	defer rows.Close()

	var clients []*DownloadClient
	for rows.Next() {
		c := &DownloadClient{}
		if err := rows.Scan(&c.ID, &c.Name, &c.Type, &c.Host, &c.Port, &c.Username, &c.Password, &c.APIKey, &c.UseSSL, &c.Enabled, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan download client: %w", err)
		}
		clients = append(clients, c)
	}
	return clients, rows.Err()
}

// UpdateDownloadClient updates an existing download client
func (db *DB) UpdateDownloadClient(c *DownloadClient) error {
	_, err := db.Exec(`
		UPDATE download_clients
		SET name = ?, type = ?, host = ?, port = ?, username = ?, password = ?, api_key = ?, use_ssl = ?, enabled = ?, updated_at = ?
		WHERE id = ?
	`, c.Name, c.Type, c.Host, c.Port, c.Username, c.Password, c.APIKey, c.UseSSL, c.Enabled, time.Now(), c.ID)
	if err != nil {
		return fmt.Errorf("failed to update download client: %w", err)
	}
	return nil
}

// UpsertDownloadClientByName inserts or updates a download client keyed by name.
// Used by env-var seeding and config file reloads.
func (db *DB) UpsertDownloadClientByName(c *DownloadClient) error {
	existing, err := db.GetDownloadClientByName(c.Name)
	if err != nil {
		return err
	}
	if existing == nil {
		return db.CreateDownloadClient(c)
	}
	c.ID = existing.ID
	return db.UpdateDownloadClient(c)
}

// DeleteDownloadClient removes a download client
func (db *DB) DeleteDownloadClient(id int64) error {
	_, err := db.Exec("DELETE FROM download_clients WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete download client: %w", err)
	}
	return nil
}
