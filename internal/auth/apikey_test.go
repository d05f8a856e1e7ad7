package auth

import (
	"path/filepath"
	"testing"

	"github.com/pausarr/pausarr/internal/database"
)

func testDB(t *testing.T) *database.DB {
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

	return db
}

func TestGenerateAPIKey(t *testing.T) {
	key1, err := GenerateAPIKey()
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	if len(key1) != APIKeyLength*2 {
		t.Errorf("expected %d hex chars, got %d", APIKeyLength*2, len(key1))
	}

	key2, _ := GenerateAPIKey()
	if key1 == key2 {
		t.Fatal("expected unique keys")
	}
}

func TestWebhookAuthService_RotateAndValidate(t *testing.T) {
	svc := NewWebhookAuthService(testDB(t))

	key, err := svc.RotateKey()
	if err != nil {
		t.Fatalf("failed to rotate key: %v", err)
	}

	if !svc.Validate(key) {
		t.Fatal("expected freshly rotated key to validate")
	}
	if svc.Validate("wrong-key") {
		t.Fatal("expected wrong key to fail validation")
	}
	if svc.Validate("") {
		t.Fatal("expected empty key to fail validation")
	}
}

func TestWebhookAuthService_RotationInvalidatesOldKey(t *testing.T) {
	svc := NewWebhookAuthService(testDB(t))

	oldKey, err := svc.RotateKey()
	if err != nil {
		t.Fatalf("failed to rotate key: %v", err)
	}
	newKey, err := svc.RotateKey()
	if err != nil {
		t.Fatalf("failed to rotate key: %v", err)
	}

	if svc.Validate(oldKey) {
		t.Fatal("expected old key to stop working after rotation")
	}
	if !svc.Validate(newKey) {
		t.Fatal("expected new key to validate")
	}
}

func TestWebhookAuthService_SetKey(t *testing.T) {
	svc := NewWebhookAuthService(testDB(t))

	if err := svc.SetKey(""); err == nil {
		t.Fatal("expected error for empty key")
	}

	if err := svc.SetKey("my-chosen-key"); err != nil {
		t.Fatalf("failed to set key: %v", err)
	}
	if !svc.Validate("my-chosen-key") {
		t.Fatal("expected stored key to validate")
	}
}

func TestWebhookAuthService_Required(t *testing.T) {
	db := testDB(t)
	svc := NewWebhookAuthService(db)

	if svc.Required() {
		t.Fatal("expected auth to be optional by default")
	}

	if err := db.SetSetting(SettingRequireAPIKey, "true"); err != nil {
		t.Fatalf("failed to set setting: %v", err)
	}
	if !svc.Required() {
		t.Fatal("expected auth to be required after enabling")
	}
}

func TestWebhookAuthService_ValidateWithoutStoredKey(t *testing.T) {
	svc := NewWebhookAuthService(testDB(t))

	if svc.Validate("anything") {
		t.Fatal("expected validation to fail when no key is stored")
	}
}
