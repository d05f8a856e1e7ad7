package middleware

import (
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/pausarr/pausarr/internal/auth"
	"github.com/pausarr/pausarr/internal/database"
)

func testAuthService(t *testing.T) (*auth.WebhookAuthService, *database.DB) {
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

	return auth.NewWebhookAuthService(db), db
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestAPIKeyAuth_DisabledAllowsAll(t *testing.T) {
	svc, _ := testAuthService(t)
	handler := APIKeyAuth(svc)(okHandler())

	req := httptest.NewRequest("POST", "/api/v1/media-events", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 when auth disabled, got %d", rec.Code)
	}
}

func TestAPIKeyAuth_RequiredRejectsMissingKey(t *testing.T) {
	svc, db := testAuthService(t)
	if _, err := svc.RotateKey(); err != nil {
		t.Fatalf("failed to rotate key: %v", err)
	}
	if err := db.SetSetting(auth.SettingRequireAPIKey, "true"); err != nil {
		t.Fatalf("failed to set setting: %v", err)
	}

	handler := APIKeyAuth(svc)(okHandler())

	req := httptest.NewRequest("POST", "/api/v1/media-events", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without key, got %d", rec.Code)
	}
}

func TestAPIKeyAuth_AcceptsHeaderAndQueryParam(t *testing.T) {
	svc, db := testAuthService(t)
	key, err := svc.RotateKey()
	if err != nil {
		t.Fatalf("failed to rotate key: %v", err)
	}
	if err := db.SetSetting(auth.SettingRequireAPIKey, "true"); err != nil {
		t.Fatalf("failed to set setting: %v", err)
	}

	handler := APIKeyAuth(svc)(okHandler())

	// Header
	req := httptest.NewRequest("POST", "/api/v1/media-events", nil)
	req.Header.Set("X-Api-Key", key)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with header key, got %d", rec.Code)
	}

	// Query parameter, which webhook plugins without header support use
	req = httptest.NewRequest("POST", "/api/v1/media-events?apikey="+key, nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with query key, got %d", rec.Code)
	}

	// Wrong key
	req = httptest.NewRequest("POST", "/api/v1/media-events", nil)
	req.Header.Set("X-Api-Key", "wrong")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with wrong key, got %d", rec.Code)
	}
}

func TestAllowSubnet(t *testing.T) {
	_, allowed, err := net.ParseCIDR("192.168.1.0/24")
	if err != nil {
		t.Fatalf("failed to parse CIDR: %v", err)
	}

	handler := AllowSubnet(allowed)(okHandler())

	req := httptest.NewRequest("GET", "/api/v1/status", nil)
	req.RemoteAddr = "192.168.1.42:51234"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for allowed IP, got %d", rec.Code)
	}

	req = httptest.NewRequest("GET", "/api/v1/status", nil)
	req.RemoteAddr = "10.0.0.5:51234"
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for outside IP, got %d", rec.Code)
	}
}

func TestAllowSubnet_NilAllowsAll(t *testing.T) {
	handler := AllowSubnet(nil)(okHandler())

	req := httptest.NewRequest("GET", "/api/v1/status", nil)
	req.RemoteAddr = "203.0.113.9:1234"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 without subnet restriction, got %d", rec.Code)
	}
}
