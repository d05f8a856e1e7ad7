package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pausarr/pausarr/internal/controller"
	"github.com/pausarr/pausarr/internal/database"
	"github.com/pausarr/pausarr/internal/downloader"
	"github.com/pausarr/pausarr/internal/playback"
)

type fakeClient struct {
	name        string
	pauseCalls  int
	resumeCalls int
}

func (f *fakeClient) Name() string                             { return f.name }
func (f *fakeClient) Type() database.ClientType                { return database.ClientTypeSABnzbd }
func (f *fakeClient) Pause(ctx context.Context) error          { f.pauseCalls++; return nil }
func (f *fakeClient) Resume(ctx context.Context) error         { f.resumeCalls++; return nil }
func (f *fakeClient) TestConnection(ctx context.Context) error { return nil }

type fakeSource struct {
	clients []downloader.Client
}

func (s *fakeSource) ListEnabled() ([]downloader.Client, error) {
	return s.clients, nil
}

func setup(t *testing.T) (*Handlers, *database.DB, *fakeClient) {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := database.New(dbPath)
	if err != nil {
		t.Fatalf("failed to create database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}
	if err := db.InitializeDefaults(); err != nil {
		t.Fatalf("failed to initialize defaults: %v", err)
	}

	client := &fakeClient{name: "sab"}
	tracker := playback.NewTracker()
	ctrl := controller.New(db, &fakeSource{clients: []downloader.Client{client}}, nil)

	h := New(db, tracker, ctrl, nil, nil, nil)
	return h, db, client
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return body
}

func TestMediaEventJellyfin_PausesDownloads(t *testing.T) {
	h, _, client := setup(t)

	payload := `{"NotificationType": "PlaybackStart", "NotificationUsername": "alice", "ServerId": "jf-1"}`
	req := httptest.NewRequest("POST", "/api/v1/media-events/jellyfin", strings.NewReader(payload))
	rec := httptest.NewRecorder()

	h.MediaEventJellyfin(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	body := decode(t, rec)
	if body["status"] != "ok" || body["action"] != "start" {
		t.Errorf("unexpected response %v", body)
	}
	if body["active_sessions"].(float64) != 1 {
		t.Errorf("expected 1 active session, got %v", body["active_sessions"])
	}
	if client.pauseCalls != 1 {
		t.Errorf("expected one pause call, got %d", client.pauseCalls)
	}
}

func TestMediaEvent_StopResumesDownloads(t *testing.T) {
	h, _, client := setup(t)

	start := `{"NotificationType": "PlaybackStart", "NotificationUsername": "alice", "ServerId": "jf-1"}`
	stop := `{"NotificationType": "PlaybackStop", "NotificationUsername": "alice", "ServerId": "jf-1"}`

	for _, payload := range []string{start, stop} {
		req := httptest.NewRequest("POST", "/api/v1/media-events", strings.NewReader(payload))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		h.MediaEvent(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
	}

	if client.pauseCalls != 1 || client.resumeCalls != 1 {
		t.Errorf("expected one pause and one resume, got %d/%d", client.pauseCalls, client.resumeCalls)
	}
}

func TestMediaEvent_IgnoredEventReturnsOK(t *testing.T) {
	h, _, client := setup(t)

	payload := `{"NotificationType": "ItemAdded", "ServerId": "jf-1"}`
	req := httptest.NewRequest("POST", "/api/v1/media-events/jellyfin", strings.NewReader(payload))
	rec := httptest.NewRecorder()

	h.MediaEventJellyfin(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for ignored event, got %d", rec.Code)
	}
	if body := decode(t, rec); body["status"] != "ignored" {
		t.Errorf("expected ignored status, got %v", body)
	}
	if client.pauseCalls != 0 {
		t.Errorf("expected no pause calls for ignored event, got %d", client.pauseCalls)
	}
}

func TestMediaEvent_MalformedPayloadIsRejected(t *testing.T) {
	h, _, _ := setup(t)

	req := httptest.NewRequest("POST", "/api/v1/media-events/jellyfin", strings.NewReader("not json"))
	rec := httptest.NewRecorder()

	h.MediaEventJellyfin(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestStatus(t *testing.T) {
	h, db, _ := setup(t)

	server := &database.MediaServer{Name: "plex", Type: database.ServerTypePlex, URL: "http://plex:32400", Enabled: true, SessionMode: database.SessionModePolling}
	if err := db.CreateMediaServer(server); err != nil {
		t.Fatalf("failed to create server: %v", err)
	}

	req := httptest.NewRequest("GET", "/api/v1/status", nil)
	rec := httptest.NewRecorder()
	h.Status(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	body := decode(t, rec)
	if body["paused"] != false {
		t.Errorf("expected unpaused, got %v", body["paused"])
	}
	if body["media_servers"].(float64) != 1 {
		t.Errorf("expected 1 media server, got %v", body["media_servers"])
	}
	if body["poller_running"] != false {
		t.Errorf("expected poller not running, got %v", body["poller_running"])
	}
}

func TestHistory(t *testing.T) {
	h, db, _ := setup(t)

	if err := db.RecordPauseEvent(&database.PauseEvent{Action: "pause", Source: "webhook", ClientCount: 1}); err != nil {
		t.Fatalf("failed to record event: %v", err)
	}

	req := httptest.NewRequest("GET", "/api/v1/history", nil)
	rec := httptest.NewRecorder()
	h.History(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	body := decode(t, rec)
	events, ok := body["events"].([]any)
	if !ok || len(events) != 1 {
		t.Fatalf("expected 1 history event, got %v", body["events"])
	}
	first := events[0].(map[string]any)
	if first["action"] != "pause" || first["source"] != "webhook" {
		t.Errorf("unexpected event %v", first)
	}
}

func TestHealthz(t *testing.T) {
	h, _, _ := setup(t)

	req := httptest.NewRequest("GET", "/healthz", nil)
	rec := httptest.NewRecorder()
	h.Healthz(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
