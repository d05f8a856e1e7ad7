package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/pausarr/pausarr/internal/playback"
	"github.com/pausarr/pausarr/internal/web/sse"
)

// MediaEvent handles a webhook from any supported media server, detecting the
// vendor from the request shape
func (h *Handlers) MediaEvent(w http.ResponseWriter, r *http.Request) {
	event, err := playback.ParseRequest(r)
	h.handleMediaEvent(w, r, event, err)
}

// MediaEventPlex handles a Plex webhook
func (h *Handlers) MediaEventPlex(w http.ResponseWriter, r *http.Request) {
	event, err := playback.ParsePlexRequest(r)
	h.handleMediaEvent(w, r, event, err)
}

// MediaEventJellyfin handles a Jellyfin webhook plugin payload
func (h *Handlers) MediaEventJellyfin(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	event, err := playback.ParseJellyfin(body)
	h.handleMediaEvent(w, r, event, err)
}

// MediaEventEmby handles an Emby webhook payload
func (h *Handlers) MediaEventEmby(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	event, err := playback.ParseEmby(body)
	h.handleMediaEvent(w, r, event, err)
}

// handleMediaEvent applies a parsed playback event to the tracker and controller
func (h *Handlers) handleMediaEvent(w http.ResponseWriter, r *http.Request, event *playback.Event, err error) {
	if err != nil {
		if errors.Is(err, playback.ErrIgnoredEvent) {
			respondJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
			return
		}
		log.Warn().Err(err).Msg("Rejected webhook payload")
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	before, after := h.tracker.ApplyEvent(event)

	log.Info().
		Str("vendor", string(event.Vendor)).
		Str("action", string(event.Action)).
		Str("user", event.Username).
		Str("media", event.MediaTitle).
		Int("sessions_before", before).
		Int("sessions_after", after).
		Msg("Playback event received")

	if h.broker != nil {
		eventType := sse.EventPlaybackStarted
		if event.Action == playback.ActionStop {
			eventType = sse.EventPlaybackStopped
		}
		h.broker.Broadcast(sse.Event{Type: eventType, Data: event})
	}

	h.controller.Update(r.Context(), "webhook", after)

	respondJSON(w, http.StatusOK, map[string]any{
		"status":          "ok",
		"action":          event.Action,
		"active_sessions": after,
	})
}

// Status returns the current pause state and activity summary
func (h *Handlers) Status(w http.ResponseWriter, r *http.Request) {
	servers, err := h.db.ListEnabledMediaServers()
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	clients, err := h.db.ListEnabledDownloadClients()
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	pollerRunning := false
	if h.pollerMgr != nil {
		pollerRunning = h.pollerMgr.IsRunning()
	}
	notifierRunning := false
	if h.notificationMgr != nil {
		notifierRunning = h.notificationMgr.IsRunning()
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"paused":           h.controller.Paused(),
		"active_sessions":  h.tracker.ActiveCount(),
		"media_servers":    len(servers),
		"download_clients": len(clients),
		"poller_running":   pollerRunning,
		"notifier_running": notifierRunning,
	})
}

// Sessions returns the tracked sessions per server plus the stored session details
func (h *Handlers) Sessions(w http.ResponseWriter, r *http.Request) {
	stored, err := h.db.ListActiveSessions()
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	sessions := make([]map[string]any, 0, len(stored))
	for _, s := range stored {
		sessions = append(sessions, map[string]any{
			"id":          s.ID,
			"server_type": s.ServerType,
			"server_id":   s.ServerID,
			"username":    s.Username,
			"media_title": s.MediaTitle,
			"media_type":  s.MediaType,
			"player":      s.Player,
			"updated_at":  s.UpdatedAt,
		})
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"active_count": h.tracker.ActiveCount(),
		"tracked":      h.tracker.Snapshot(),
		"sessions":     sessions,
	})
}

// History returns recent pause and resume events
func (h *Handlers) History(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	events, err := h.db.ListPauseEvents(limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	out := make([]map[string]any, 0, len(events))
	for _, e := range events {
		out = append(out, map[string]any{
			"id":           e.ID,
			"action":       e.Action,
			"source":       e.Source,
			"detail":       e.Detail,
			"client_count": e.ClientCount,
			"error_count":  e.ErrorCount,
			"created_at":   e.CreatedAt,
		})
	}

	respondJSON(w, http.StatusOK, map[string]any{"events": out})
}

// ServerTest verifies connectivity to a configured media server
func (h *Handlers) ServerTest(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid server id")
		return
	}

	row, err := h.db.GetMediaServer(id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if row == nil {
		respondError(w, http.StatusNotFound, "media server not found")
		return
	}

	srv, err := h.servers.Get(row)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if err := srv.TestConnection(r.Context()); err != nil {
		respondJSON(w, http.StatusOK, map[string]any{"ok": false, "error": err.Error()})
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// ClientTest verifies connectivity to a configured download client
func (h *Handlers) ClientTest(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid client id")
		return
	}

	row, err := h.db.GetDownloadClient(id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if row == nil {
		respondError(w, http.StatusNotFound, "download client not found")
		return
	}

	client, err := h.clients.Get(row)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if err := client.TestConnection(r.Context()); err != nil {
		respondJSON(w, http.StatusOK, map[string]any{"ok": false, "error": err.Error()})
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// NotificationTest sends a test notification to a provider
func (h *Handlers) NotificationTest(w http.ResponseWriter, r *http.Request) {
	if h.notificationMgr == nil {
		respondError(w, http.StatusServiceUnavailable, "notifications not configured")
		return
	}

	provider := chi.URLParam(r, "provider")
	if err := h.notificationMgr.TestProvider(provider); err != nil {
		respondJSON(w, http.StatusOK, map[string]any{"ok": false, "error": err.Error()})
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// Healthz is a liveness endpoint
func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	if err := h.db.Ping(); err != nil {
		respondError(w, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
