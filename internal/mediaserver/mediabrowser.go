package mediaserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/pausarr/pausarr/internal/config"
	"github.com/pausarr/pausarr/internal/database"
)

// MediaBrowserConfig holds configuration specific to each media server type.
// Named after MediaBrowser, the original project that both Emby and Jellyfin forked from
type MediaBrowserConfig struct {
	// ServerName is used in log messages (e.g., "Emby", "Jellyfin")
	ServerName string

	// ServerType is the database server type
	ServerType database.ServerType

	// SetAuthHeader sets the appropriate authentication header for requests
	SetAuthHeader func(req *http.Request, apiKey string)

	// WebSocketPath is the path for WebSocket connections (e.g., "/embywebsocket", "/socket")
	WebSocketPath string

	// WebSocketQueryParams returns additional query params for WebSocket URL
	WebSocketQueryParams func(apiKey string) url.Values

	// SessionsStartData is the data field for the SessionsStart WebSocket message
	SessionsStartData string
}

// MediaBrowserServer is a shared base implementation for Emby and Jellyfin.
// Both media servers share nearly identical APIs, so this consolidates the common code
type MediaBrowserServer struct {
	row    *database.MediaServer
	client *http.Client
	config MediaBrowserConfig
}

// NewMediaBrowserServer creates a new media server instance with the given configuration
func NewMediaBrowserServer(row *database.MediaServer, cfg MediaBrowserConfig) *MediaBrowserServer {
	return &MediaBrowserServer{
		row: row,
		client: &http.Client{
			Timeout: config.GetTimeouts().HTTPClient,
		},
		config: cfg,
	}
}

// Name returns the configured server name
func (s *MediaBrowserServer) Name() string {
	return s.row.Name
}

// Type returns the server type
func (s *MediaBrowserServer) Type() database.ServerType {
	return s.config.ServerType
}

// SupportsWebSocket returns true as both Emby and Jellyfin support WebSocket notifications
func (s *MediaBrowserServer) SupportsWebSocket() bool {
	return true
}

// setHeaders sets the authentication headers for requests
func (s *MediaBrowserServer) setHeaders(req *http.Request) {
	s.config.SetAuthHeader(req, s.row.APIKey)
	req.Header.Set("Accept", "application/json")
}

// TestConnection verifies the connection to the media server
func (s *MediaBrowserServer) TestConnection(ctx context.Context) error {
	testURL := fmt.Sprintf("%s/System/Info", strings.TrimRight(s.row.URL, "/"))

	req, err := http.NewRequestWithContext(ctx, "GET", testURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	s.setHeaders(req)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("connection failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("invalid API key")
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned status %d", resp.StatusCode)
	}

	return nil
}

// GetSessions returns active playback sessions from the media server
func (s *MediaBrowserServer) GetSessions(ctx context.Context) ([]Session, error) {
	sessionsURL := fmt.Sprintf("%s/Sessions", strings.TrimRight(s.row.URL, "/"))

	req, err := http.NewRequestWithContext(ctx, "GET", sessionsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	s.setHeaders(req)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("server returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	log.Trace().
		Str("server", s.Name()).
		RawJSON("response", body).
		Msg("Fetched sessions via polling")

	var serverSessions []mediaBrowserSession
	if err := json.Unmarshal(body, &serverSessions); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	sessions := make([]Session, 0)
	for _, ss := range serverSessions {
		// Only include sessions with active playback
		if ss.NowPlayingItem.Name == "" {
			continue
		}

		session := Session{
			ID:         ss.ID,
			ServerID:   s.row.ID,
			ServerType: string(s.config.ServerType),
			Username:   ss.UserName,
			MediaType:  ss.NowPlayingItem.Type,
			Player:     ss.Client,
			Paused:     ss.PlayState.IsPaused,
		}

		// Format title: "Show Name - Episode Name" for episodes with SeriesName
		if ss.NowPlayingItem.Type == "Episode" && ss.NowPlayingItem.SeriesName != "" {
			session.MediaTitle = ss.NowPlayingItem.SeriesName + " - " + ss.NowPlayingItem.Name
		} else {
			session.MediaTitle = ss.NowPlayingItem.Name
		}

		sessions = append(sessions, session)
	}

	return sessions, nil
}

// Media server JSON structures (shared by Emby and Jellyfin)
type mediaBrowserSession struct {
	ID             string                 `json:"Id"`
	UserName       string                 `json:"UserName"`
	Client         string                 `json:"Client"`
	NowPlayingItem mediaBrowserNowPlaying `json:"NowPlayingItem"`
	PlayState      mediaBrowserPlayState  `json:"PlayState"`
}

type mediaBrowserNowPlaying struct {
	Name       string `json:"Name"`
	SeriesName string `json:"SeriesName"` // Show name for episodes
	Type       string `json:"Type"`
}

type mediaBrowserPlayState struct {
	IsPaused   bool   `json:"IsPaused"`
	PlayMethod string `json:"PlayMethod"`
}

// WatchSessions starts a WebSocket connection to the media server for real-time session updates.
// It calls the callback whenever session state changes.
// The function blocks until the context is cancelled or an unrecoverable error occurs
func (s *MediaBrowserServer) WatchSessions(ctx context.Context, callback func(sessions []Session)) error {
	const (
		initialBackoff = 1 * time.Second
		maxBackoff     = 5 * time.Minute
	)

	pingInterval := config.GetTimeouts().WebSocketPing
	backoff := initialBackoff

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := s.watchSessionsOnce(ctx, callback, pingInterval)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			log.Warn().
				Err(err).
				Str("server", s.Name()).
				Dur("backoff", backoff).
				Msgf("%s WebSocket disconnected, reconnecting", s.config.ServerName)

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}

			// Exponential backoff with cap
			backoff = min(backoff*2, maxBackoff)
		} else {
			// Reset backoff on successful connection that ended gracefully
			backoff = initialBackoff
		}
	}
}

// watchSessionsOnce establishes a single WebSocket connection and handles messages
func (s *MediaBrowserServer) watchSessionsOnce(ctx context.Context, callback func(sessions []Session), pingInterval time.Duration) error {
	wsURL, err := s.buildWebSocketURL()
	if err != nil {
		return fmt.Errorf("failed to build WebSocket URL: %w", err)
	}

	log.Debug().
		Str("server", s.Name()).
		Str("url", wsURL).
		Msgf("Connecting to %s WebSocket", s.config.ServerName)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("WebSocket dial failed: %w", err)
	}
	defer conn.Close()

	log.Info().
		Str("server", s.Name()).
		Msgf("Connected to %s WebSocket", s.config.ServerName)

	// Subscribe to session updates
	subscribeMsg := mediaBrowserWSMessage{
		MessageType: "SessionsStart",
		Data:        s.config.SessionsStartData,
	}
	if err := conn.WriteJSON(subscribeMsg); err != nil {
		return fmt.Errorf("failed to send subscription message: %w", err)
	}

	// Fetch initial sessions
	sessions, err := s.GetSessions(ctx)
	if err != nil {
		log.Warn().Err(err).Str("server", s.Name()).Msg("Failed to fetch initial sessions")
	} else {
		callback(sessions)
	}

	pingTicker := time.NewTicker(pingInterval)
	defer pingTicker.Stop()

	readErrCh := make(chan error, 1)

	go func() {
		for {
			_, message, err := conn.ReadMessage()
			if err != nil {
				readErrCh <- err
				return
			}

			log.Trace().
				Str("server", s.Name()).
				RawJSON("message", message).
				Msg("Received WebSocket message")

			var msg mediaBrowserWSResponse
			if err := json.Unmarshal(message, &msg); err != nil {
				log.Debug().
					Err(err).
					Str("server", s.Name()).
					Msg("Failed to parse WebSocket message")
				continue
			}

			if s.isSessionMessage(msg.MessageType) {
				log.Debug().
					Str("server", s.Name()).
					Str("type", msg.MessageType).
					Msg("Received session notification, fetching sessions")

				sessions, err := s.GetSessions(ctx)
				if err != nil {
					log.Warn().
						Err(err).
						Str("server", s.Name()).
						Msg("Failed to fetch sessions after notification")
					continue
				}
				callback(sessions)
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return ctx.Err()
		case err := <-readErrCh:
			return err
		case <-pingTicker.C:
			keepAlive := mediaBrowserWSMessage{MessageType: "KeepAlive"}
			if err := conn.WriteJSON(keepAlive); err != nil {
				return fmt.Errorf("keep-alive failed: %w", err)
			}
		}
	}
}

// buildWebSocketURL constructs the WebSocket URL for the media server
func (s *MediaBrowserServer) buildWebSocketURL() (string, error) {
	parsed, err := url.Parse(s.row.URL)
	if err != nil {
		return "", fmt.Errorf("failed to parse URL: %w", err)
	}

	switch parsed.Scheme {
	case "https":
		parsed.Scheme = "wss"
	default:
		parsed.Scheme = "ws"
	}

	parsed.Path = s.config.WebSocketPath
	parsed.RawQuery = s.config.WebSocketQueryParams(s.row.APIKey).Encode()

	return parsed.String(), nil
}

// isSessionMessage checks if the message type is related to sessions
func (s *MediaBrowserServer) isSessionMessage(messageType string) bool {
	return messageType == "Sessions" ||
		messageType == "SessionEnded" ||
		messageType == "PlaybackStart" ||
		messageType == "PlaybackStopped" ||
		messageType == "PlaybackProgress"
}

// WebSocket message structures
type mediaBrowserWSMessage struct {
	MessageType string `json:"MessageType"`
	Data        string `json:"Data,omitempty"`
}

type mediaBrowserWSResponse struct {
	MessageType string          `json:"MessageType"`
	Data        json.RawMessage `json:"Data,omitempty"`
}
