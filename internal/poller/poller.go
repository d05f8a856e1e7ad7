package poller

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/pausarr/pausarr/internal/config"
	"github.com/pausarr/pausarr/internal/controller"
	"github.com/pausarr/pausarr/internal/database"
	"github.com/pausarr/pausarr/internal/mediaserver"
	"github.com/pausarr/pausarr/internal/notification"
	"github.com/pausarr/pausarr/internal/playback"
)

const (
	minInterval     = 10 * time.Second
	defaultInterval = 60 * time.Second
)

// Poller periodically fetches playback sessions from all enabled media
// servers and feeds the results to the session tracker and controller.
// Servers configured for WebSocket mode get a persistent watch goroutine
// instead of being polled.
type Poller struct {
	db         *database.DB
	servers    *mediaserver.Manager
	tracker    *playback.Tracker
	controller *controller.Controller
	notifier   *notification.Manager

	mu      sync.Mutex
	running bool
	polling atomic.Bool
	cron    *cron.Cron

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new activity poller
func New(db *database.DB, servers *mediaserver.Manager, tracker *playback.Tracker, ctrl *controller.Controller, notifier *notification.Manager) *Poller {
	return &Poller{
		db:         db,
		servers:    servers,
		tracker:    tracker,
		controller: ctrl,
		notifier:   notifier,
	}
}

// Start starts the poll loop and any WebSocket watchers.
// Returns true if the poller was started (enabled servers exist), false otherwise.
func (p *Poller) Start() (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return true, nil
	}

	loader := config.NewLoader(p.db)
	if !loader.Bool("poller.enabled", true) {
		log.Info().Msg("Activity poller disabled in settings")
		return false, nil
	}

	rows, err := p.db.ListEnabledMediaServers()
	if err != nil {
		return false, fmt.Errorf("failed to list media servers: %w", err)
	}
	if len(rows) == 0 {
		return false, nil
	}

	p.ctx, p.cancel = context.WithCancel(context.Background())

	pollServers, watchServers := p.splitByMode(rows)

	for _, row := range watchServers {
		p.startWatcher(row)
	}

	if len(pollServers) > 0 {
		if schedule := loader.String("poller.schedule", ""); schedule != "" {
			if err := p.startCron(schedule); err != nil {
				log.Warn().Err(err).Str("schedule", schedule).Msg("Invalid cron schedule, falling back to interval polling")
				p.startInterval(loader)
			}
		} else {
			p.startInterval(loader)
		}
	}

	p.running = true
	log.Info().
		Int("polled", len(pollServers)).
		Int("watched", len(watchServers)).
		Msg("Activity poller started")
	return true, nil
}

// Stop stops the poll loop and all watchers
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false

	if p.cron != nil {
		p.cron.Stop()
		p.cron = nil
	}
	p.cancel()
	p.mu.Unlock()

	p.wg.Wait()

	log.Info().Msg("Activity poller stopped")
}

// IsRunning returns whether the poller is currently running
func (p *Poller) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Restart reloads configuration and restarts the poller
func (p *Poller) Restart() error {
	p.Stop()
	_, err := p.Start()
	return err
}

// splitByMode partitions servers into polled and WebSocket-watched groups.
// Servers that request WebSocket mode but do not support it are polled.
func (p *Poller) splitByMode(rows []*database.MediaServer) (poll, watch []*database.MediaServer) {
	for _, row := range rows {
		if row.SessionMode != database.SessionModeWebSocket {
			poll = append(poll, row)
			continue
		}

		srv, err := p.servers.Get(row)
		if err != nil || !srv.SupportsWebSocket() {
			log.Warn().
				Str("server", row.Name).
				Str("type", string(row.Type)).
				Msg("WebSocket session mode not supported, using polling")
			poll = append(poll, row)
			continue
		}
		watch = append(watch, row)
	}
	return poll, watch
}

// startInterval starts the ticker-driven poll loop. Caller must hold p.mu.
func (p *Poller) startInterval(loader *config.Loader) {
	interval := loader.DurationSeconds("poller.interval_seconds", int(defaultInterval/time.Second))
	if interval < minInterval {
		interval = minInterval
	}

	ctx := p.ctx
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Msg("Poll loop panicked")
			}
		}()
		p.pollLoop(ctx, interval)
	}()
}

// startCron schedules polls with a cron expression. Caller must hold p.mu.
func (p *Poller) startCron(schedule string) error {
	c := cron.New()
	ctx := p.ctx

	_, err := c.AddFunc(schedule, func() {
		p.runPoll(ctx)
	})
	if err != nil {
		return err
	}

	c.Start()
	p.cron = c
	log.Info().Str("schedule", schedule).Msg("Polling on cron schedule")
	return nil
}

// startWatcher spawns a WebSocket watch goroutine for a server. Caller must hold p.mu.
func (p *Poller) startWatcher(row *database.MediaServer) {
	srv, err := p.servers.Get(row)
	if err != nil {
		log.Error().Err(err).Str("server", row.Name).Msg("Failed to create media server instance")
		return
	}

	serverKey := fmt.Sprintf("%s:%d", row.Type, row.ID)
	ctx := p.ctx

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Str("server", row.Name).Msg("Session watcher panicked")
			}
		}()

		err := srv.WatchSessions(ctx, func(sessions []mediaserver.Session) {
			p.applySessions(ctx, row, serverKey, sessions)
		})
		if err != nil && ctx.Err() == nil {
			log.Error().Err(err).Str("server", row.Name).Msg("Session watcher exited")
		}
	}()
}

// pollLoop polls all interval-mode servers until the context is cancelled
func (p *Poller) pollLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Do an initial poll immediately
	p.runPoll(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.runPoll(ctx)
		}
	}
}

// runPoll performs a single poll cycle across all interval-mode servers.
// Overlapping cycles are skipped.
func (p *Poller) runPoll(ctx context.Context) {
	if !p.polling.CompareAndSwap(false, true) {
		log.Debug().Msg("Skipping poll cycle - previous poll still running")
		return
	}
	defer p.polling.Store(false)

	rows, err := p.db.ListEnabledMediaServers()
	if err != nil {
		log.Error().Err(err).Msg("Failed to list media servers")
		return
	}

	for _, row := range rows {
		if row.SessionMode == database.SessionModeWebSocket {
			continue
		}

		srv, err := p.servers.Get(row)
		if err != nil {
			log.Error().Err(err).Str("server", row.Name).Msg("Failed to create media server instance")
			continue
		}

		reqCtx, cancel := context.WithTimeout(ctx, config.GetTimeouts().HTTPClient)
		sessions, err := srv.GetSessions(reqCtx)
		cancel()

		if err != nil {
			log.Warn().Err(err).Str("server", row.Name).Msg("Failed to fetch sessions")
			if p.notifier != nil {
				p.notifier.NotifySimple(notification.EventPollError, "Poll Error",
					fmt.Sprintf("Failed to fetch sessions from %s: %v", row.Name, err))
			}
			continue
		}

		serverKey := fmt.Sprintf("%s:%d", row.Type, row.ID)
		p.applySessions(ctx, row, serverKey, sessions)
	}
}

// applySessions updates the tracker, persists the session list, and drives the controller
func (p *Poller) applySessions(ctx context.Context, row *database.MediaServer, serverKey string, sessions []mediaserver.Session) {
	// Paused playback does not hold downloads paused
	active := make([]mediaserver.Session, 0, len(sessions))
	for _, s := range sessions {
		if !s.Paused {
			active = append(active, s)
		}
	}

	keys := make([]string, 0, len(active))
	for _, s := range active {
		keys = append(keys, s.ID)
	}

	before, after := p.tracker.ReplaceServer(serverKey, keys)
	p.persistSessions(row, active)

	log.Debug().
		Str("server", row.Name).
		Int("sessions", len(active)).
		Int("total_before", before).
		Int("total_after", after).
		Msg("Poll cycle applied")

	p.controller.Update(ctx, "poller", p.tracker.ActiveCount())
}

// persistSessions mirrors a server's active sessions into the database
func (p *Poller) persistSessions(row *database.MediaServer, sessions []mediaserver.Session) {
	serverID := fmt.Sprintf("%d", row.ID)
	if err := p.db.DeleteActiveSessionsForServer(serverID); err != nil {
		log.Error().Err(err).Str("server", row.Name).Msg("Failed to clear stored sessions")
		return
	}

	for _, s := range sessions {
		err := p.db.UpsertActiveSession(&database.ActiveSession{
			ID:         fmt.Sprintf("%d:%s", row.ID, s.ID),
			ServerType: s.ServerType,
			ServerID:   serverID,
			Username:   s.Username,
			MediaTitle: s.MediaTitle,
			MediaType:  s.MediaType,
			Player:     s.Player,
		})
		if err != nil {
			log.Error().Err(err).Str("server", row.Name).Msg("Failed to store session")
		}
	}
}
