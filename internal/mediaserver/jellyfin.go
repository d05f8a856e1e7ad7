package mediaserver

import (
	"fmt"
	"net/http"
	"net/url"

	"github.com/pausarr/pausarr/internal/database"
)

// JellyfinServer implements the Server interface for Jellyfin Media Server.
// It wraps MediaBrowserServer with Jellyfin-specific configuration
type JellyfinServer struct {
	*MediaBrowserServer
}

// NewJellyfinServer creates a new Jellyfin server instance
func NewJellyfinServer(row *database.MediaServer) *JellyfinServer {
	config := MediaBrowserConfig{
		ServerName: "Jellyfin",
		ServerType: database.ServerTypeJellyfin,
		SetAuthHeader: func(req *http.Request, apiKey string) {
			req.Header.Set("Authorization", fmt.Sprintf(`MediaBrowser Token="%s", Client="Pausarr", Device="Pausarr", DeviceId="pausarr", Version="1.0"`, apiKey))
		},
		WebSocketPath: "/socket",
		WebSocketQueryParams: func(apiKey string) url.Values {
			q := url.Values{}
			q.Set("api_key", apiKey)
			q.Set("deviceId", "pausarr")
			return q
		},
		// Format: "InitialDelay,Interval" in ms
		SessionsStartData: "0,1500",
	}

	return &JellyfinServer{
		MediaBrowserServer: NewMediaBrowserServer(row, config),
	}
}

// Type returns the server type (override to ensure correct type is returned)
func (s *JellyfinServer) Type() database.ServerType {
	return database.ServerTypeJellyfin
}
