package mediaserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/pausarr/pausarr/internal/config"
	"github.com/pausarr/pausarr/internal/database"
)

// PlexServer implements the Server interface for Plex Media Server
type PlexServer struct {
	row    *database.MediaServer
	client *http.Client
}

// NewPlexServer creates a new Plex server instance
func NewPlexServer(row *database.MediaServer) *PlexServer {
	return &PlexServer{
		row: row,
		client: &http.Client{
			Timeout: config.GetTimeouts().HTTPClient,
		},
	}
}

// Name returns the configured server name
func (s *PlexServer) Name() string {
	return s.row.Name
}

// Type returns the server type
func (s *PlexServer) Type() database.ServerType {
	return database.ServerTypePlex
}

// SupportsWebSocket returns false; Plex session state is polled
func (s *PlexServer) SupportsWebSocket() bool {
	return false
}

// WatchSessions is not supported for Plex
func (s *PlexServer) WatchSessions(ctx context.Context, callback func(sessions []Session)) error {
	return fmt.Errorf("plex does not support websocket session monitoring")
}

func (s *PlexServer) setHeaders(req *http.Request) {
	req.Header.Set("X-Plex-Token", s.row.APIKey)
	req.Header.Set("Accept", "application/json")
}

// TestConnection verifies the connection to the Plex server
func (s *PlexServer) TestConnection(ctx context.Context) error {
	testURL := strings.TrimRight(s.row.URL, "/") + "/identity"

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
		return fmt.Errorf("invalid Plex token")
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned status %d", resp.StatusCode)
	}

	return nil
}

// GetSessions returns active playback sessions from Plex
func (s *PlexServer) GetSessions(ctx context.Context) ([]Session, error) {
	sessionsURL := strings.TrimRight(s.row.URL, "/") + "/status/sessions"

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

	var sessionsResp plexSessionsResponse
	if err := json.Unmarshal(body, &sessionsResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	sessions := make([]Session, 0, len(sessionsResp.MediaContainer.Metadata))

	for _, item := range sessionsResp.MediaContainer.Metadata {
		session := Session{
			ID:         item.SessionKey,
			ServerID:   s.row.ID,
			ServerType: string(database.ServerTypePlex),
			MediaType:  item.Type,
			Paused:     item.Player.State == "paused",
		}

		// Format title: "Show Name - Episode Name" for episodes with grandparentTitle
		if item.Type == "episode" && item.GrandparentTitle != "" {
			session.MediaTitle = item.GrandparentTitle + " - " + item.Title
		} else {
			session.MediaTitle = item.Title
		}

		if item.User.Title != "" {
			session.Username = item.User.Title
		}

		if item.Player.Product != "" {
			session.Player = item.Player.Product
		}

		sessions = append(sessions, session)
	}

	return sessions, nil
}

// Plex JSON structures
type plexSessionsResponse struct {
	MediaContainer plexMediaContainer `json:"MediaContainer"`
}

type plexMediaContainer struct {
	Size     int                   `json:"size"`
	Metadata []plexSessionMetadata `json:"Metadata"`
}

type plexSessionMetadata struct {
	SessionKey       string     `json:"sessionKey"`
	Title            string     `json:"title"`
	GrandparentTitle string     `json:"grandparentTitle"`
	Type             string     `json:"type"`
	User             plexUser   `json:"User"`
	Player           plexPlayer `json:"Player"`
}

type plexUser struct {
	Title string `json:"title"`
}

type plexPlayer struct {
	Product string `json:"product"`
	State   string `json:"state"`
}
