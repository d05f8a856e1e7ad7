package mediaserver

import (
	"context"
	"fmt"
	"sync"

	"github.com/pausarr/pausarr/internal/database"
)

// Session represents an active playback session on a media server
type Session struct {
	ID         string `json:"id"`
	ServerID   int64  `json:"server_id"`
	ServerType string `json:"server_type"`
	Username   string `json:"username"`
	MediaTitle string `json:"media_title"`
	MediaType  string `json:"media_type"`
	Player     string `json:"player"`
	Paused     bool   `json:"paused"`
}

// Server is the interface implemented by all media server integrations
type Server interface {
	// Name returns the configured server name
	Name() string

	// Type returns the server type
	Type() database.ServerType

	// GetSessions returns the current playback sessions
	GetSessions(ctx context.Context) ([]Session, error)

	// TestConnection verifies connectivity and credentials
	TestConnection(ctx context.Context) error

	// SupportsWebSocket reports whether WatchSessions is available
	SupportsWebSocket() bool

	// WatchSessions streams session updates until the context is cancelled.
	// Servers that do not support WebSocket notifications return an error.
	WatchSessions(ctx context.Context, callback func(sessions []Session)) error
}

// Manager creates and caches media server instances from database rows
type Manager struct {
	db *database.DB

	mu      sync.RWMutex
	servers map[int64]Server
}

// NewManager creates a new media server manager
func NewManager(db *database.DB) *Manager {
	return &Manager{
		db:      db,
		servers: make(map[int64]Server),
	}
}

// Get returns a cached server instance, creating one from the database row if needed
func (m *Manager) Get(row *database.MediaServer) (Server, error) {
	m.mu.RLock()
	if srv, ok := m.servers[row.ID]; ok {
		m.mu.RUnlock()
		return srv, nil
	}
	m.mu.RUnlock()

	srv, err := New(row)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.servers[row.ID] = srv
	m.mu.Unlock()

	return srv, nil
}

// Invalidate drops a cached instance so the next Get rebuilds it
func (m *Manager) Invalidate(serverID int64) {
	m.mu.Lock()
	delete(m.servers, serverID)
	m.mu.Unlock()
}

// InvalidateAll drops all cached instances, typically after a config reload
func (m *Manager) InvalidateAll() {
	m.mu.Lock()
	m.servers = make(map[int64]Server)
	m.mu.Unlock()
}

// ListEnabled returns instances for all enabled media servers
func (m *Manager) ListEnabled() ([]Server, error) {
	rows, err := m.db.ListEnabledMediaServers()
	if err != nil {
		return nil, err
	}

	servers := make([]Server, 0, len(rows))
	for _, row := range rows {
		srv, err := m.Get(row)
		if err != nil {
			return nil, err
		}
		servers = append(servers, srv)
	}

	return servers, nil
}

// New creates a media server instance for a database row
func New(row *database.MediaServer) (Server, error) {
	switch row.Type {
	case database.ServerTypePlex:
		return NewPlexServer(row), nil
	case database.ServerTypeEmby:
		return NewEmbyServer(row), nil
	case database.ServerTypeJellyfin:
		return NewJellyfinServer(row), nil
	default:
		return nil, fmt.Errorf("unknown media server type: %s", row.Type)
	}
}
