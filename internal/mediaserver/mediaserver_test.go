package mediaserver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pausarr/pausarr/internal/database"
)

func TestPlexServer_GetSessions(t *testing.T) {
	var gotToken string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/status/sessions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		gotToken = r.Header.Get("X-Plex-Token")
		w.Write([]byte(`{
			"MediaContainer": {
				"size": 2,
				"Metadata": [
					{
						"sessionKey": "1",
						"title": "Inception",
						"type": "movie",
						"User": {"title": "alice"},
						"Player": {"product": "Plex Web", "state": "playing"}
					},
					{
						"sessionKey": "2",
						"title": "Pilot",
						"grandparentTitle": "Severance",
						"type": "episode",
						"User": {"title": "bob"},
						"Player": {"product": "Plex for TV", "state": "paused"}
					}
				]
			}
		}`))
	}))
	defer ts.Close()

	server := NewPlexServer(&database.MediaServer{
		Name:   "plex",
		Type:   database.ServerTypePlex,
		URL:    ts.URL,
		APIKey: "plex-token",
	})

	sessions, err := server.GetSessions(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gotToken != "plex-token" {
		t.Errorf("expected token header, got %q", gotToken)
	}
	if len(sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(sessions))
	}

	if sessions[0].Username != "alice" || sessions[0].MediaTitle != "Inception" || sessions[0].Paused {
		t.Errorf("unexpected first session %+v", sessions[0])
	}
	if sessions[1].MediaTitle != "Severance - Pilot" {
		t.Errorf("expected combined episode title, got %q", sessions[1].MediaTitle)
	}
	if !sessions[1].Paused {
		t.Error("expected second session to be paused")
	}
}

func TestPlexServer_TestConnectionRejectsBadToken(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer ts.Close()

	server := NewPlexServer(&database.MediaServer{URL: ts.URL, APIKey: "bad"})
	if err := server.TestConnection(context.Background()); err == nil {
		t.Fatal("expected error for invalid token")
	}
}

func TestPlexServer_NoWebSocket(t *testing.T) {
	server := NewPlexServer(&database.MediaServer{})

	if server.SupportsWebSocket() {
		t.Error("expected plex to not support websocket monitoring")
	}
	if err := server.WatchSessions(context.Background(), nil); err == nil {
		t.Error("expected WatchSessions to fail for plex")
	}
}

func TestMediaBrowserServer_GetSessionsSkipsIdle(t *testing.T) {
	var gotAuth string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/Sessions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		gotAuth = r.Header.Get("X-Emby-Token")
		w.Write([]byte(`[
			{
				"Id": "s1",
				"UserName": "carol",
				"Client": "Emby Web",
				"NowPlayingItem": {"Name": "Part One", "SeriesName": "The Expanse", "Type": "Episode"},
				"PlayState": {"IsPaused": false}
			},
			{
				"Id": "s2",
				"UserName": "dave",
				"Client": "Emby Theater",
				"NowPlayingItem": {},
				"PlayState": {}
			}
		]`))
	}))
	defer ts.Close()

	server := NewEmbyServer(&database.MediaServer{
		Name:   "emby",
		Type:   database.ServerTypeEmby,
		URL:    ts.URL,
		APIKey: "emby-key",
	})

	sessions, err := server.GetSessions(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gotAuth != "emby-key" {
		t.Errorf("expected emby token header, got %q", gotAuth)
	}

	// The idle session without a NowPlayingItem is dropped
	if len(sessions) != 1 {
		t.Fatalf("expected 1 session, got %d", len(sessions))
	}
	if sessions[0].Username != "carol" || sessions[0].MediaTitle != "The Expanse - Part One" {
		t.Errorf("unexpected session %+v", sessions[0])
	}
}

func TestMediaBrowserServer_SupportsWebSocket(t *testing.T) {
	emby := NewEmbyServer(&database.MediaServer{URL: "http://emby:8096"})
	if !emby.SupportsWebSocket() {
		t.Error("expected emby to support websocket monitoring")
	}

	jellyfin := NewJellyfinServer(&database.MediaServer{URL: "http://jf:8096"})
	if !jellyfin.SupportsWebSocket() {
		t.Error("expected jellyfin to support websocket monitoring")
	}
}

func TestNew_CreatesServerByType(t *testing.T) {
	tests := []struct {
		serverType database.ServerType
	}{
		{database.ServerTypePlex},
		{database.ServerTypeEmby},
		{database.ServerTypeJellyfin},
	}

	for _, tt := range tests {
		row := &database.MediaServer{Name: "x", Type: tt.serverType, URL: "http://x"}
		server, err := New(row)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tt.serverType, err)
		}
		if server.Type() != tt.serverType {
			t.Errorf("expected type %s, got %s", tt.serverType, server.Type())
		}
	}

	if _, err := New(&database.MediaServer{Type: "kodi"}); err == nil {
		t.Fatal("expected error for unknown server type")
	}
}
