package database

import (
	"fmt"
	"time"
)

// NotificationLog records a notification delivery attempt
type NotificationLog struct {
	ID        int64
	Provider  string
	EventType string
	Title     string
	Message   string
	Status    string // "sent" or "failed"
	Error     string
	CreatedAt time.Time
}

// LogNotification inserts a notification delivery attempt
func (db *DB) LogNotification(n *NotificationLog) error {
	_, err := db.Exec(`
		INSERT INTO notification_log (provider, event_type, title, message, status, error)
		VALUES (?, ?, ?, ?, ?, ?)
	`, n.Provider, n.EventType, n.Title, n.Message, n.Status, n.Error)
	if err != nil {
		return fmt.Errorf("failed to log notification: %w", err)
	}
	return nil
}

// ListNotificationLogs returns the most recent notification logs, newest first
func (db *DB) ListNotificationLogs(limit int) ([]*NotificationLog, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := db.Query(`
		SELECT id, provider, event_type, title, message, status, error, created_at
		FROM notification_log ORDER BY created_at DESC, id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list notification logs: %w", err)
	}
	defer rows.Close()

	var logs []*NotificationLog
	for rows.Next() {
		n := &NotificationLog{}
		if err := rows.Scan(&n.ID, &n.Provider, &n.EventType, &n.Title, &n.Message, &n.Status, &n.Error, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan notification log: %w", err)
		}
		logs = append(logs, n)
	}
	return logs, rows.Err()
}

// ClearNotificationLogs removes all notification logs
func (db *DB) ClearNotificationLogs() error {
	_, err := db.Exec("DELETE FROM notification_log")
	if err != nil {
		return fmt.Errorf("failed to clear notification logs: %w", err)
	}
	return nil
}
