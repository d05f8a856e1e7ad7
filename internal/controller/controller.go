package controller

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/pausarr/pausarr/internal/config"
	"github.com/pausarr/pausarr/internal/database"
	"github.com/pausarr/pausarr/internal/downloader"
	"github.com/pausarr/pausarr/internal/notification"
)

// ClientSource lists the download clients to control
type ClientSource interface {
	ListEnabled() ([]downloader.Client, error)
}

// Controller reacts to playback activity transitions by pausing or resuming
// all download clients. Transitions are edge-triggered: clients are paused
// once when activity appears and resumed once when it disappears.
type Controller struct {
	db       *database.DB
	clients  ClientSource
	notifier *notification.Manager

	mu     sync.Mutex
	paused bool
}

// New creates a new controller
func New(db *database.DB, clients ClientSource, notifier *notification.Manager) *Controller {
	return &Controller{
		db:       db,
		clients:  clients,
		notifier: notifier,
	}
}

// Paused reports whether the controller currently considers downloads paused
func (c *Controller) Paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

// Update processes the current active session count from a source ("webhook"
// or "poller"). A transition from idle to active pauses all clients; a
// transition back to idle resumes them. Repeated counts on the same side of
// the transition are no-ops.
func (c *Controller) Update(ctx context.Context, source string, activeCount int) {
	if !c.enabled() {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	active := activeCount > 0

	switch {
	case active && !c.paused:
		log.Info().
			Str("source", source).
			Int("sessions", activeCount).
			Msg("Playback started, pausing download clients")
		c.paused = true
		c.fanOut(ctx, source, "pause", activeCount)
	case !active && c.paused:
		log.Info().
			Str("source", source).
			Msg("Playback stopped, resuming download clients")
		c.paused = false
		c.fanOut(ctx, source, "resume", activeCount)
	}
}

// ResumeOnStart resumes all clients at startup when configured to do so.
// This clears a pause left behind by an unclean shutdown.
func (c *Controller) ResumeOnStart(ctx context.Context) {
	loader := config.NewLoader(c.db)
	if !loader.Bool("controller.resume_on_start", true) {
		return
	}

	log.Info().Msg("Resuming download clients on startup")

	c.mu.Lock()
	defer c.mu.Unlock()
	c.paused = false
	c.fanOut(ctx, "startup", "resume", 0)
}

func (c *Controller) enabled() bool {
	loader := config.NewLoader(c.db)
	return loader.Bool("controller.enabled", true)
}

// fanOut applies an action to every enabled client. One failing client does
// not stop the others. Caller must hold c.mu.
func (c *Controller) fanOut(ctx context.Context, source, action string, activeCount int) {
	clients, err := c.clients.ListEnabled()
	if err != nil {
		log.Error().Err(err).Msg("Failed to list download clients")
		c.notifyError(fmt.Sprintf("Failed to list download clients: %v", err))
		return
	}

	if len(clients) == 0 {
		log.Warn().Str("action", action).Msg("No download clients configured")
		return
	}

	var failed []string
	for _, client := range clients {
		opCtx, cancel := context.WithTimeout(ctx, config.GetTimeouts().ClientOperation)

		var err error
		if action == "pause" {
			err = client.Pause(opCtx)
		} else {
			err = client.Resume(opCtx)
		}
		cancel()

		if err != nil {
			log.Error().
				Err(err).
				Str("client", client.Name()).
				Str("type", string(client.Type())).
				Str("action", action).
				Msg("Download client operation failed")
			failed = append(failed, client.Name())
			continue
		}

		log.Debug().
			Str("client", client.Name()).
			Str("action", action).
			Msg("Download client updated")
	}

	c.recordEvent(source, action, activeCount, len(clients), failed)
	c.notifyTransition(action, activeCount, len(clients), failed)
}

func (c *Controller) recordEvent(source, action string, activeCount, clientCount int, failed []string) {
	detail := fmt.Sprintf("%d active session(s)", activeCount)
	if len(failed) > 0 {
		detail += "; failed clients: " + strings.Join(failed, ", ")
	}

	if err := c.db.RecordPauseEvent(&database.PauseEvent{
		Action:      action,
		Source:      source,
		Detail:      detail,
		ClientCount: clientCount,
		ErrorCount:  len(failed),
	}); err != nil {
		log.Error().Err(err).Msg("Failed to record pause event")
	}
}

func (c *Controller) notifyTransition(action string, activeCount, clientCount int, failed []string) {
	if c.notifier == nil {
		return
	}

	fields := map[string]string{
		"clients":  fmt.Sprintf("%d", clientCount),
		"sessions": fmt.Sprintf("%d", activeCount),
	}
	if len(failed) > 0 {
		fields["failed"] = strings.Join(failed, ", ")
	}

	if action == "pause" {
		c.notifier.Notify(notification.Event{
			Type:    notification.EventDownloadsPaused,
			Title:   "Downloads Paused",
			Message: fmt.Sprintf("Playback detected, paused %d download client(s)", clientCount-len(failed)),
			Fields:  fields,
		})
	} else {
		c.notifier.Notify(notification.Event{
			Type:    notification.EventDownloadsResumed,
			Title:   "Downloads Resumed",
			Message: fmt.Sprintf("Playback stopped, resumed %d download client(s)", clientCount-len(failed)),
			Fields:  fields,
		})
	}

	if len(failed) > 0 {
		c.notifier.Notify(notification.Event{
			Type:    notification.EventClientError,
			Title:   "Download Client Error",
			Message: fmt.Sprintf("Failed to %s clients: %s", action, strings.Join(failed, ", ")),
		})
	}
}

func (c *Controller) notifyError(message string) {
	if c.notifier == nil {
		return
	}
	c.notifier.NotifySimple(notification.EventSystemError, "System Error", message)
}
