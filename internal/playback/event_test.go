package playback

import (
	"bytes"
	"errors"
	"mime/multipart"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestParsePlex_PlayEvent(t *testing.T) {
	payload := `{
		"event": "media.play",
		"Account": {"title": "alice"},
		"Server": {"title": "home", "uuid": "abc123"},
		"Player": {"title": "Living Room TV"},
		"Metadata": {"type": "movie", "title": "Inception"}
	}`

	event, err := ParsePlex([]byte(payload))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if event.Vendor != VendorPlex {
		t.Errorf("expected vendor plex, got %s", event.Vendor)
	}
	if event.Action != ActionStart {
		t.Errorf("expected action start, got %s", event.Action)
	}
	if event.Username != "alice" {
		t.Errorf("expected username alice, got %q", event.Username)
	}
	if event.ServerUID != "abc123" {
		t.Errorf("expected server uid abc123, got %q", event.ServerUID)
	}
	if event.MediaTitle != "Inception" {
		t.Errorf("expected media title Inception, got %q", event.MediaTitle)
	}
}

func TestParsePlex_EpisodeTitleIncludesShow(t *testing.T) {
	payload := `{
		"event": "media.stop",
		"Account": {"title": "bob"},
		"Server": {"uuid": "abc123"},
		"Metadata": {"type": "episode", "title": "Pilot", "grandparentTitle": "Severance"}
	}`

	event, err := ParsePlex([]byte(payload))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if event.Action != ActionStop {
		t.Errorf("expected action stop, got %s", event.Action)
	}
	if event.MediaTitle != "Severance - Pilot" {
		t.Errorf("expected combined episode title, got %q", event.MediaTitle)
	}
}

func TestParsePlex_ActionMapping(t *testing.T) {
	tests := []struct {
		event  string
		action Action
	}{
		{"media.play", ActionStart},
		{"media.resume", ActionStart},
		{"media.pause", ActionStop},
		{"media.stop", ActionStop},
	}

	for _, tt := range tests {
		payload := `{"event": "` + tt.event + `", "Account": {"title": "u"}, "Server": {"uuid": "s"}}`
		event, err := ParsePlex([]byte(payload))
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tt.event, err)
		}
		if event.Action != tt.action {
			t.Errorf("%s: expected action %s, got %s", tt.event, tt.action, event.Action)
		}
	}
}

func TestParsePlex_IgnoresLibraryEvents(t *testing.T) {
	payload := `{"event": "library.new", "Server": {"uuid": "s"}}`

	_, err := ParsePlex([]byte(payload))
	if !errors.Is(err, ErrIgnoredEvent) {
		t.Fatalf("expected ErrIgnoredEvent, got %v", err)
	}
}

func TestParseJellyfin_PlaybackStart(t *testing.T) {
	payload := `{
		"NotificationType": "PlaybackStart",
		"NotificationUsername": "carol",
		"ServerId": "jf-1",
		"ClientName": "Jellyfin Web",
		"ItemType": "Episode",
		"Name": "Part One",
		"SeriesName": "The Expanse"
	}`

	event, err := ParseJellyfin([]byte(payload))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if event.Vendor != VendorJellyfin {
		t.Errorf("expected vendor jellyfin, got %s", event.Vendor)
	}
	if event.Action != ActionStart {
		t.Errorf("expected action start, got %s", event.Action)
	}
	if event.Username != "carol" {
		t.Errorf("expected username carol, got %q", event.Username)
	}
	if event.MediaTitle != "The Expanse - Part One" {
		t.Errorf("expected combined episode title, got %q", event.MediaTitle)
	}
}

func TestParseJellyfin_IgnoresItemAdded(t *testing.T) {
	payload := `{"NotificationType": "ItemAdded", "ServerId": "jf-1"}`

	_, err := ParseJellyfin([]byte(payload))
	if !errors.Is(err, ErrIgnoredEvent) {
		t.Fatalf("expected ErrIgnoredEvent, got %v", err)
	}
}

func TestParseEmby_ActionMapping(t *testing.T) {
	tests := []struct {
		event  string
		action Action
	}{
		{"playback.start", ActionStart},
		{"playback.unpause", ActionStart},
		{"playback.pause", ActionStop},
		{"playback.stop", ActionStop},
	}

	for _, tt := range tests {
		payload := `{"Event": "` + tt.event + `", "User": {"Name": "dave"}, "Server": {"Id": "em-1"}, "Item": {"Name": "Dune", "Type": "Movie"}}`
		event, err := ParseEmby([]byte(payload))
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tt.event, err)
		}
		if event.Action != tt.action {
			t.Errorf("%s: expected action %s, got %s", tt.event, tt.action, event.Action)
		}
		if event.Username != "dave" {
			t.Errorf("%s: expected username dave, got %q", tt.event, event.Username)
		}
	}
}

func TestParseJSON_DetectsVendor(t *testing.T) {
	jellyfin := `{"NotificationType": "PlaybackStart", "NotificationUsername": "u", "ServerId": "s"}`
	event, err := ParseJSON([]byte(jellyfin))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if event.Vendor != VendorJellyfin {
		t.Errorf("expected jellyfin, got %s", event.Vendor)
	}

	emby := `{"Event": "playback.start", "User": {"Name": "u"}, "Server": {"Id": "s"}}`
	event, err = ParseJSON([]byte(emby))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if event.Vendor != VendorEmby {
		t.Errorf("expected emby, got %s", event.Vendor)
	}
}

func TestParseJSON_RejectsUnknownPayload(t *testing.T) {
	if _, err := ParseJSON([]byte(`{"hello": "world"}`)); err == nil {
		t.Fatal("expected error for unknown payload")
	}
}

func TestParseRequest_PlexMultipart(t *testing.T) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("payload", `{"event": "media.play", "Account": {"title": "alice"}, "Server": {"uuid": "s1"}}`); err != nil {
		t.Fatalf("failed to write field: %v", err)
	}
	mw.Close()

	req := httptest.NewRequest("POST", "/api/v1/media-events", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	event, err := ParseRequest(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if event.Vendor != VendorPlex {
		t.Errorf("expected plex, got %s", event.Vendor)
	}
	if event.Action != ActionStart {
		t.Errorf("expected start, got %s", event.Action)
	}
}

func TestParseRequest_JSONBody(t *testing.T) {
	body := `{"NotificationType": "PlaybackStop", "NotificationUsername": "u", "ServerId": "s"}`
	req := httptest.NewRequest("POST", "/api/v1/media-events", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	event, err := ParseRequest(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if event.Vendor != VendorJellyfin {
		t.Errorf("expected jellyfin, got %s", event.Vendor)
	}
	if event.Action != ActionStop {
		t.Errorf("expected stop, got %s", event.Action)
	}
}

func TestSessionKey_FallsBackWhenUsernameMissing(t *testing.T) {
	event := Event{Vendor: VendorPlex, ServerUID: "s"}
	if event.SessionKey() != "unknown" {
		t.Errorf("expected fallback session key, got %q", event.SessionKey())
	}
}
