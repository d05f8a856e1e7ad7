package downloader

import (
	"context"
	"fmt"
	"sync"

	"github.com/pausarr/pausarr/internal/database"
)

// Client is the interface implemented by all download client integrations
type Client interface {
	// Name returns the configured client name
	Name() string

	// Type returns the client type
	Type() database.ClientType

	// Pause pauses all downloads
	Pause(ctx context.Context) error

	// Resume resumes all downloads
	Resume(ctx context.Context) error

	// TestConnection verifies connectivity and credentials
	TestConnection(ctx context.Context) error
}

// Manager creates and caches download client instances from database rows
type Manager struct {
	db *database.DB

	mu      sync.RWMutex
	clients map[int64]Client
}

// NewManager creates a new download client manager
func NewManager(db *database.DB) *Manager {
	return &Manager{
		db:      db,
		clients: make(map[int64]Client),
	}
}

// Get returns a cached client instance, creating one from the database row if needed
func (m *Manager) Get(row *database.DownloadClient) (Client, error) {
	m.mu.RLock()
	if c, ok := m.clients[row.ID]; ok {
		m.mu.RUnlock()
		return c, nil
	}
	m.mu.RUnlock()

	c, err := New(row)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.clients[row.ID] = c
	m.mu.Unlock()

	return c, nil
}

// Invalidate drops a cached instance so the next Get rebuilds it
func (m *Manager) Invalidate(clientID int64) {
	m.mu.Lock()
	delete(m.clients, clientID)
	m.mu.Unlock()
}

// InvalidateAll drops all cached instances, typically after a config reload
func (m *Manager) InvalidateAll() {
	m.mu.Lock()
	m.clients = make(map[int64]Client)
	m.mu.Unlock()
}

// ListEnabled returns instances for all enabled download clients
func (m *Manager) ListEnabled() ([]Client, error) {
	rows, err := m.db.ListEnabledDownloadClients()
	if err != nil {
		return nil, err
	}

	clients := make([]Client, 0, len(rows))
	for _, row := range rows {
		c, err := m.Get(row)
		if err != nil {
			return nil, err
		}
		clients = append(clients, c)
	}

	return clients, nil
}

// New creates a download client instance for a database row
func New(row *database.DownloadClient) (Client, error) {
	switch row.Type {
	case database.ClientTypeSABnzbd:
		return NewSABnzbdClient(row), nil
	case database.ClientTypeDeluge:
		return NewDelugeClient(row), nil
	case database.ClientTypeQBittorrent:
		return NewQBittorrentClient(row), nil
	default:
		return nil, fmt.Errorf("unknown download client type: %s", row.Type)
	}
}
