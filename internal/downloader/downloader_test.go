package downloader

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/pausarr/pausarr/internal/database"
)

// rowFor builds a client row pointing at a test server
func rowFor(t *testing.T, ts *httptest.Server, clientType database.ClientType) *database.DownloadClient {
	t.Helper()

	host, portStr, err := net.SplitHostPort(strings.TrimPrefix(ts.URL, "http://"))
	if err != nil {
		t.Fatalf("failed to parse test server URL: %v", err)
	}
	port, _ := strconv.Atoi(portStr)

	return &database.DownloadClient{
		Name:     "test-" + string(clientType),
		Type:     clientType,
		Host:     host,
		Port:     port,
		Username: "admin",
		Password: "secret",
		APIKey:   "key123",
		Enabled:  true,
	}
}

func TestSABnzbdClient_Pause(t *testing.T) {
	var gotMode, gotKey string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		gotMode = r.URL.Query().Get("mode")
		gotKey = r.URL.Query().Get("apikey")
		w.Write([]byte(`{"status": true}`))
	}))
	defer ts.Close()

	client := NewSABnzbdClient(rowFor(t, ts, database.ClientTypeSABnzbd))
	if err := client.Pause(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gotMode != "pause" {
		t.Errorf("expected mode pause, got %q", gotMode)
	}
	if gotKey != "key123" {
		t.Errorf("expected api key to be sent, got %q", gotKey)
	}
}

func TestSABnzbdClient_ErrorInBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status": false, "error": "API Key Incorrect"}`))
	}))
	defer ts.Close()

	client := NewSABnzbdClient(rowFor(t, ts, database.ClientTypeSABnzbd))
	err := client.Resume(context.Background())
	if err == nil {
		t.Fatal("expected error for API error response")
	}
	if !strings.Contains(err.Error(), "API Key Incorrect") {
		t.Errorf("expected error to carry the API message, got %v", err)
	}
}

func TestQBittorrentClient_LoginAndPause(t *testing.T) {
	var loginCount, pauseCount int
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v2/auth/login":
			loginCount++
			if r.FormValue("username") != "admin" || r.FormValue("password") != "secret" {
				w.Write([]byte("Fails."))
				return
			}
			http.SetCookie(w, &http.Cookie{Name: "SID", Value: "abc"})
			w.Write([]byte("Ok."))
		case "/api/v2/torrents/pause", "/api/v2/torrents/resume":
			pauseCount++
			if r.FormValue("hashes") != "all" {
				t.Errorf("expected hashes=all, got %q", r.FormValue("hashes"))
			}
			w.WriteHeader(http.StatusOK)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer ts.Close()

	client := NewQBittorrentClient(rowFor(t, ts, database.ClientTypeQBittorrent))
	if err := client.Pause(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if loginCount != 1 {
		t.Errorf("expected one login, got %d", loginCount)
	}
	if pauseCount != 1 {
		t.Errorf("expected one pause call, got %d", pauseCount)
	}

	// Cached session means no second login
	if err := client.Resume(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if loginCount != 1 {
		t.Errorf("expected session reuse, got %d logins", loginCount)
	}
}

func TestQBittorrentClient_BadCredentials(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Fails."))
	}))
	defer ts.Close()

	client := NewQBittorrentClient(rowFor(t, ts, database.ClientTypeQBittorrent))
	if err := client.TestConnection(context.Background()); err == nil {
		t.Fatal("expected authentication error")
	}
}

func TestQBittorrentClient_RetriesAfterExpiredSession(t *testing.T) {
	var loginCount, actionCount int
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v2/auth/login":
			loginCount++
			w.Write([]byte("Ok."))
		case "/api/v2/torrents/resume":
			actionCount++
			// First attempt fails as an expired session
			if actionCount == 1 {
				w.WriteHeader(http.StatusForbidden)
				return
			}
			w.WriteHeader(http.StatusOK)
		}
	}))
	defer ts.Close()

	client := NewQBittorrentClient(rowFor(t, ts, database.ClientTypeQBittorrent))
	if err := client.Resume(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if loginCount != 2 {
		t.Errorf("expected re-login after 403, got %d logins", loginCount)
	}
	if actionCount != 2 {
		t.Errorf("expected retried action, got %d calls", actionCount)
	}
}

func TestDelugeClient_LoginAndPause(t *testing.T) {
	var methods []string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/json" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}

		var req struct {
			Method string        `json:"method"`
			Params []interface{} `json:"params"`
			ID     int64         `json:"id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}
		methods = append(methods, req.Method)

		resp := map[string]interface{}{"id": req.ID, "error": nil}
		switch req.Method {
		case "auth.login":
			if len(req.Params) != 1 || req.Params[0] != "secret" {
				resp["result"] = false
			} else {
				resp["result"] = true
			}
		case "core.pause_all_torrents":
			resp["result"] = nil
		default:
			t.Errorf("unexpected method %s", req.Method)
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer ts.Close()

	client := NewDelugeClient(rowFor(t, ts, database.ClientTypeDeluge))
	if err := client.Pause(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(methods) != 2 || methods[0] != "auth.login" || methods[1] != "core.pause_all_torrents" {
		t.Fatalf("expected login then pause, got %v", methods)
	}
}

func TestDelugeClient_WrongPassword(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"id": 1, "result": false, "error": nil})
	}))
	defer ts.Close()

	client := NewDelugeClient(rowFor(t, ts, database.ClientTypeDeluge))
	if err := client.TestConnection(context.Background()); err == nil {
		t.Fatal("expected authentication error")
	}
}

func TestDelugeClient_RPCError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string `json:"method"`
			ID     int64  `json:"id"`
		}
		json.NewDecoder(r.Body).Decode(&req)

		if req.Method == "auth.login" {
			json.NewEncoder(w).Encode(map[string]interface{}{"id": req.ID, "result": true, "error": nil})
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id":     req.ID,
			"result": nil,
			"error":  map[string]interface{}{"message": "not connected to daemon", "code": 1},
		})
	}))
	defer ts.Close()

	client := NewDelugeClient(rowFor(t, ts, database.ClientTypeDeluge))
	err := client.Resume(context.Background())
	if err == nil {
		t.Fatal("expected RPC error")
	}
	if !strings.Contains(err.Error(), "not connected to daemon") {
		t.Errorf("expected daemon error message, got %v", err)
	}
}

func TestNew_UnknownType(t *testing.T) {
	if _, err := New(&database.DownloadClient{Type: "transmission"}); err == nil {
		t.Fatal("expected error for unknown client type")
	}
}
