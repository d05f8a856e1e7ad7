package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/pausarr/pausarr/internal/database"
)

const (
	// APIKeyLength is the length of generated API keys in bytes (will be hex encoded)
	APIKeyLength = 32

	// Settings keys for webhook authentication
	SettingRequireAPIKey = "webhook.require_api_key"
	SettingAPIKeyHash    = "webhook.api_key_hash"
)

// WebhookAuthService manages the API key that protects inbound webhook endpoints.
// Only a bcrypt hash of the key is stored; the plaintext is shown once at
// generation time.
type WebhookAuthService struct {
	db *database.DB
}

// NewWebhookAuthService creates a new webhook auth service
func NewWebhookAuthService(db *database.DB) *WebhookAuthService {
	return &WebhookAuthService{db: db}
}

// GenerateAPIKey creates a new cryptographically secure API key
func GenerateAPIKey() (string, error) {
	bytes := make([]byte, APIKeyLength)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate api key: %w", err)
	}
	return hex.EncodeToString(bytes), nil
}

// RotateKey generates a new API key, stores its hash, and returns the plaintext.
// The previous key stops working immediately.
func (s *WebhookAuthService) RotateKey() (string, error) {
	apiKey, err := GenerateAPIKey()
	if err != nil {
		return "", err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(apiKey), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash api key: %w", err)
	}

	if err := s.db.SetSetting(SettingAPIKeyHash, string(hash)); err != nil {
		return "", fmt.Errorf("failed to store api key hash: %w", err)
	}

	return apiKey, nil
}

// SetKey stores the hash of a caller-supplied API key
func (s *WebhookAuthService) SetKey(apiKey string) error {
	if apiKey == "" {
		return fmt.Errorf("api key cannot be empty")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(apiKey), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash api key: %w", err)
	}

	return s.db.SetSetting(SettingAPIKeyHash, string(hash))
}

// Required reports whether webhook requests must carry a valid API key
func (s *WebhookAuthService) Required() bool {
	val, err := s.db.GetSetting(SettingRequireAPIKey)
	if err != nil {
		return false
	}
	return val == "true"
}

// Validate checks an API key against the stored hash
func (s *WebhookAuthService) Validate(apiKey string) bool {
	if apiKey == "" {
		return false
	}

	hash, err := s.db.GetSetting(SettingAPIKeyHash)
	if err != nil || hash == "" {
		return false
	}

	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(apiKey)) == nil
}
