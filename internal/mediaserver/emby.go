package mediaserver

import (
	"net/http"
	"net/url"

	"github.com/pausarr/pausarr/internal/database"
)

// EmbyServer implements the Server interface for Emby Media Server.
// It wraps MediaBrowserServer with Emby-specific configuration
type EmbyServer struct {
	*MediaBrowserServer
}

// NewEmbyServer creates a new Emby server instance
func NewEmbyServer(row *database.MediaServer) *EmbyServer {
	config := MediaBrowserConfig{
		ServerName: "Emby",
		ServerType: database.ServerTypeEmby,
		SetAuthHeader: func(req *http.Request, apiKey string) {
			req.Header.Set("X-Emby-Token", apiKey)
		},
		WebSocketPath: "/embywebsocket",
		WebSocketQueryParams: func(apiKey string) url.Values {
			q := url.Values{}
			q.Set("api_key", apiKey)
			q.Set("deviceId", "pausarr")
			return q
		},
		// Format: "InitialDelay,Interval,InactiveSessionThreshold" in ms
		SessionsStartData: "0,1500,300",
	}

	return &EmbyServer{
		MediaBrowserServer: NewMediaBrowserServer(row, config),
	}
}

// Type returns the server type (override to ensure correct type is returned)
func (s *EmbyServer) Type() database.ServerType {
	return database.ServerTypeEmby
}
