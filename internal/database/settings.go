package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// GetSetting retrieves a setting value by key
func (db *DB) GetSetting(key string) (string, error) {
	var value string
	err := db.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get setting %s: %w", key, err)
	}
	return value, nil
}

// SetSetting stores a setting value
func (db *DB) SetSetting(key, value string) error {
	_, err := db.Exec(`
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value, time.Now())
	if err != nil {
		return fmt.Errorf("failed to set setting %s: %w", key, err)
	}
	return nil
}

// SetSettingJSON stores a setting as JSON
func (db *DB) SetSettingJSON(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal setting %s: %w", key, err)
	}
	return db.SetSetting(key, string(data))
}

// GetAllSettings retrieves all settings
func (db *DB) GetAllSettings() (map[string]string, error) {
	rows, err := db.Query("SELECT key, value FROM settings")
	if err != nil {
		return nil, fmt.Errorf("failed to get settings: %w", err)
	}
	defer rows.Close()

	settings := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("failed to scan setting: %w", err)
		}
		settings[key] = value
	}

	return settings, rows.Err()
}

// DeleteSetting removes a setting
func (db *DB) DeleteSetting(key string) error {
	_, err := db.Exec("DELETE FROM settings WHERE key = ?", key)
	if err != nil {
		return fmt.Errorf("failed to delete setting %s: %w", key, err)
	}
	return nil
}

// Default settings
var DefaultSettings = map[string]any{
	"log.level":                         "info",
	"log.max_size_mb":                   50,
	"log.max_backups":                   5,
	"log.max_age_days":                  30,
	"log.compress":                      true,
	"poller.enabled":                    true,
	"poller.interval_seconds":           60,
	"poller.schedule":                   "", // cron expression, overrides interval when set
	"controller.enabled":                true,
	"controller.resume_on_start":        true,
	"events.cleanup_days":               30, // 0 = keep pause history forever
	"webhook.require_api_key":           false,
	"webhook.api_key_hash":              "",
	"notifications.discord.enabled":     false,
	"notifications.discord.webhook_url": "",
	"notifications.discord.username":    "",
	"notifications.discord.avatar_url":  "",
	"notifications.webhook.enabled":     false,
	"notifications.webhook.url":         "",
	"notifications.webhook.method":      "POST",
	"notifications.webhook.body":        "",
}

// InitializeDefaults sets default values for settings that don't exist
func (db *DB) InitializeDefaults() error {
	for key, value := range DefaultSettings {
		existing, err := db.GetSetting(key)
		if err != nil {
			return err
		}
		if existing == "" {
			switch v := value.(type) {
			case string:
				if err := db.SetSetting(key, v); err != nil {
					return err
				}
			default:
				if err := db.SetSettingJSON(key, v); err != nil {
					return err
				}
			}
		}
	}
	return nil
}
