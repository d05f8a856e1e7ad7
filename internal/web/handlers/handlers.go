package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/pausarr/pausarr/internal/controller"
	"github.com/pausarr/pausarr/internal/database"
	"github.com/pausarr/pausarr/internal/downloader"
	"github.com/pausarr/pausarr/internal/mediaserver"
	"github.com/pausarr/pausarr/internal/notification"
	"github.com/pausarr/pausarr/internal/playback"
	"github.com/pausarr/pausarr/internal/poller"
	"github.com/pausarr/pausarr/internal/web/sse"
)

// Handlers holds dependencies for HTTP handlers
type Handlers struct {
	db         *database.DB
	tracker    *playback.Tracker
	controller *controller.Controller
	servers    *mediaserver.Manager
	clients    *downloader.Manager
	broker     *sse.Broker

	notificationMgr *notification.Manager
	pollerMgr       *poller.Poller
}

// New creates a new handlers instance
func New(db *database.DB, tracker *playback.Tracker, ctrl *controller.Controller, servers *mediaserver.Manager, clients *downloader.Manager, broker *sse.Broker) *Handlers {
	return &Handlers{
		db:         db,
		tracker:    tracker,
		controller: ctrl,
		servers:    servers,
		clients:    clients,
		broker:     broker,
	}
}

// SetNotificationManager sets the notification manager
func (h *Handlers) SetNotificationManager(mgr *notification.Manager) {
	h.notificationMgr = mgr
}

// SetPollerManager sets the activity poller
func (h *Handlers) SetPollerManager(mgr *poller.Poller) {
	h.pollerMgr = mgr
}

// respondJSON writes a JSON response with the given status code
func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// respondError writes a JSON error response
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// readBody reads a request body with a sane size cap
func readBody(r *http.Request) ([]byte, error) {
	return io.ReadAll(io.LimitReader(r.Body, 1<<20))
}
