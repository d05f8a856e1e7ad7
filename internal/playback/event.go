package playback

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Vendor identifies which media server produced a webhook payload
type Vendor string

const (
	VendorPlex     Vendor = "plex"
	VendorJellyfin Vendor = "jellyfin"
	VendorEmby     Vendor = "emby"
)

// Action is the normalized playback state change carried by an event
type Action string

const (
	// ActionStart means playback began or resumed for a session
	ActionStart Action = "start"

	// ActionStop means playback paused or stopped for a session
	ActionStop Action = "stop"
)

// Event is a normalized playback event parsed from a vendor webhook
type Event struct {
	Vendor     Vendor `json:"vendor"`
	ServerUID  string `json:"server_uid"`
	Username   string `json:"username"`
	Action     Action `json:"action"`
	MediaTitle string `json:"media_title"`
	MediaType  string `json:"media_type"`
	Player     string `json:"player"`
}

// SessionKey identifies the session an event belongs to within its server.
// Vendor payloads do not carry a stable session ID, so the username stands in
// for one: a user is either watching something on a server or not.
func (e Event) SessionKey() string {
	if e.Username != "" {
		return e.Username
	}
	return "unknown"
}

// ServerKey identifies the originating server across event sources
func (e Event) ServerKey() string {
	return string(e.Vendor) + ":" + e.ServerUID
}

// maxPayloadBytes caps webhook bodies; vendor payloads are a few KB at most
const maxPayloadBytes = 1 << 20

// ErrIgnoredEvent is returned for event types that do not affect playback state
// (library updates, ratings, item added, and so on)
var ErrIgnoredEvent = fmt.Errorf("event type does not affect playback state")

// ParseRequest detects the webhook vendor from the request shape and parses it.
// Plex sends multipart form data; Jellyfin and Emby send JSON bodies that are
// told apart by their distinctive top-level fields.
func ParseRequest(r *http.Request) (*Event, error) {
	contentType := r.Header.Get("Content-Type")

	if strings.HasPrefix(contentType, "multipart/form-data") {
		return ParsePlexRequest(r)
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxPayloadBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read request body: %w", err)
	}

	return ParseJSON(body)
}

// ParseJSON parses a JSON webhook body from Jellyfin or Emby
func ParseJSON(body []byte) (*Event, error) {
	var probe struct {
		NotificationType string          `json:"NotificationType"`
		Event            json.RawMessage `json:"Event"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		return nil, fmt.Errorf("failed to parse webhook payload: %w", err)
	}

	if probe.NotificationType != "" {
		return ParseJellyfin(body)
	}
	if len(probe.Event) > 0 {
		return ParseEmby(body)
	}

	return nil, fmt.Errorf("unrecognized webhook payload")
}

// ParsePlexRequest parses a Plex webhook request.
// Plex posts multipart form data with the JSON event in a "payload" part.
func ParsePlexRequest(r *http.Request) (*Event, error) {
	if err := r.ParseMultipartForm(maxPayloadBytes); err != nil {
		return nil, fmt.Errorf("failed to parse multipart form: %w", err)
	}

	payload := r.FormValue("payload")
	if payload == "" {
		return nil, fmt.Errorf("missing payload field")
	}

	return ParsePlex([]byte(payload))
}

// ParsePlex parses the JSON payload of a Plex webhook
func ParsePlex(payload []byte) (*Event, error) {
	var p plexPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("failed to parse plex payload: %w", err)
	}

	var action Action
	switch p.Event {
	case "media.play", "media.resume":
		action = ActionStart
	case "media.pause", "media.stop":
		action = ActionStop
	default:
		return nil, ErrIgnoredEvent
	}

	event := &Event{
		Vendor:    VendorPlex,
		ServerUID: p.Server.UUID,
		Username:  p.Account.Title,
		Action:    action,
		MediaType: p.Metadata.Type,
		Player:    p.Player.Title,
	}

	if p.Metadata.Type == "episode" && p.Metadata.GrandparentTitle != "" {
		event.MediaTitle = p.Metadata.GrandparentTitle + " - " + p.Metadata.Title
	} else {
		event.MediaTitle = p.Metadata.Title
	}

	return event, nil
}

// ParseJellyfin parses a Jellyfin webhook plugin payload
func ParseJellyfin(body []byte) (*Event, error) {
	var p jellyfinPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("failed to parse jellyfin payload: %w", err)
	}

	var action Action
	switch p.NotificationType {
	case "PlaybackStart":
		action = ActionStart
	case "PlaybackStop":
		action = ActionStop
	default:
		return nil, ErrIgnoredEvent
	}

	event := &Event{
		Vendor:    VendorJellyfin,
		ServerUID: p.ServerID,
		Username:  p.NotificationUsername,
		Action:    action,
		MediaType: p.ItemType,
		Player:    p.ClientName,
	}

	if p.ItemType == "Episode" && p.SeriesName != "" {
		event.MediaTitle = p.SeriesName + " - " + p.Name
	} else {
		event.MediaTitle = p.Name
	}

	return event, nil
}

// ParseEmby parses an Emby webhook payload
func ParseEmby(body []byte) (*Event, error) {
	var p embyPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("failed to parse emby payload: %w", err)
	}

	var action Action
	switch p.Event {
	case "playback.start", "playback.unpause":
		action = ActionStart
	case "playback.stop", "playback.pause":
		action = ActionStop
	default:
		return nil, ErrIgnoredEvent
	}

	event := &Event{
		Vendor:    VendorEmby,
		ServerUID: p.Server.ID,
		Username:  p.User.Name,
		Action:    action,
		MediaType: p.Item.Type,
	}

	if p.Item.Type == "Episode" && p.Item.SeriesName != "" {
		event.MediaTitle = p.Item.SeriesName + " - " + p.Item.Name
	} else {
		event.MediaTitle = p.Item.Name
	}

	return event, nil
}

// Vendor payload structures

type plexPayload struct {
	Event   string `json:"event"`
	Account struct {
		Title string `json:"title"`
	} `json:"Account"`
	Server struct {
		Title string `json:"title"`
		UUID  string `json:"uuid"`
	} `json:"Server"`
	Player struct {
		Title string `json:"title"`
	} `json:"Player"`
	Metadata struct {
		Type             string `json:"type"`
		Title            string `json:"title"`
		GrandparentTitle string `json:"grandparentTitle"`
	} `json:"Metadata"`
}

type jellyfinPayload struct {
	NotificationType     string `json:"NotificationType"`
	NotificationUsername string `json:"NotificationUsername"`
	ServerID             string `json:"ServerId"`
	ClientName           string `json:"ClientName"`
	ItemType             string `json:"ItemType"`
	Name                 string `json:"Name"`
	SeriesName           string `json:"SeriesName"`
}

type embyPayload struct {
	Event string `json:"Event"`
	User  struct {
		Name string `json:"Name"`
	} `json:"User"`
	Server struct {
		ID   string `json:"Id"`
		Name string `json:"Name"`
	} `json:"Server"`
	Item struct {
		Name       string `json:"Name"`
		Type       string `json:"Type"`
		SeriesName string `json:"SeriesName"`
	} `json:"Item"`
}
