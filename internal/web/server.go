package web

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/pausarr/pausarr/internal/auth"
	"github.com/pausarr/pausarr/internal/controller"
	"github.com/pausarr/pausarr/internal/database"
	"github.com/pausarr/pausarr/internal/downloader"
	"github.com/pausarr/pausarr/internal/mediaserver"
	"github.com/pausarr/pausarr/internal/notification"
	"github.com/pausarr/pausarr/internal/playback"
	"github.com/pausarr/pausarr/internal/poller"
	"github.com/pausarr/pausarr/internal/web/handlers"
	"github.com/pausarr/pausarr/internal/web/middleware"
	"github.com/pausarr/pausarr/internal/web/sse"
)

// Server represents the HTTP API server
type Server struct {
	db          *database.DB
	port        int
	bind        string
	allowedNet  *net.IPNet
	router      *chi.Mux
	authService *auth.WebhookAuthService
	sseBroker   *sse.Broker
	handlers    *handlers.Handlers
}

// NewServer creates a new API server
func NewServer(db *database.DB, port int, bind string, allowedNet *net.IPNet, tracker *playback.Tracker, ctrl *controller.Controller, servers *mediaserver.Manager, clients *downloader.Manager) *Server {
	s := &Server{
		db:          db,
		port:        port,
		bind:        bind,
		allowedNet:  allowedNet,
		router:      chi.NewRouter(),
		authService: auth.NewWebhookAuthService(db),
		sseBroker:   sse.NewBroker(),
	}

	s.handlers = handlers.New(db, tracker, ctrl, servers, clients, s.sseBroker)
	s.setupRoutes()

	return s
}

// SSEBroker returns the SSE broker for broadcasting events
func (s *Server) SSEBroker() *sse.Broker {
	return s.sseBroker
}

// SetNotificationManager sets the notification manager on the handlers
func (s *Server) SetNotificationManager(mgr *notification.Manager) {
	s.handlers.SetNotificationManager(mgr)
}

// SetPollerManager sets the activity poller on the handlers
func (s *Server) SetPollerManager(mgr *poller.Poller) {
	s.handlers.SetPollerManager(mgr)
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	r := s.router

	// Global middleware (applied to all routes, except timeout which is per-group)
	r.Use(chimiddleware.RequestID)
	// AllowSubnet must come BEFORE RealIP so we check the actual connection source
	r.Use(middleware.AllowSubnet(s.allowedNet))
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", s.handlers.Healthz)

	r.Route("/api/v1", func(r chi.Router) {
		// SSE endpoint - no timeout (long-lived connections)
		r.Get("/events", s.sseBroker.ServeHTTP)

		r.Group(func(r chi.Router) {
			r.Use(chimiddleware.Timeout(60 * time.Second))

			// Inbound playback webhooks, optionally protected by API key
			r.Group(func(r chi.Router) {
				r.Use(middleware.APIKeyAuth(s.authService))
				r.Post("/media-events", s.handlers.MediaEvent)
				r.Post("/media-events/plex", s.handlers.MediaEventPlex)
				r.Post("/media-events/jellyfin", s.handlers.MediaEventJellyfin)
				r.Post("/media-events/emby", s.handlers.MediaEventEmby)
			})

			r.Get("/status", s.handlers.Status)
			r.Get("/sessions", s.handlers.Sessions)
			r.Get("/history", s.handlers.History)

			r.Post("/servers/{id}/test", s.handlers.ServerTest)
			r.Post("/clients/{id}/test", s.handlers.ClientTest)
			r.Post("/notifications/{provider}/test", s.handlers.NotificationTest)
		})
	})
}

// Start starts the HTTP server and blocks until the context is cancelled
func (s *Server) Start(ctx context.Context) error {
	var addr string
	if s.bind != "" {
		addr = fmt.Sprintf("%s:%d", s.bind, s.port)
	} else {
		addr = fmt.Sprintf(":%d", s.port)
	}

	server := &http.Server{
		Addr:    addr,
		Handler: s.router,
		// ReadTimeout is for reading request body
		ReadTimeout: 15 * time.Second,
		// WriteTimeout disabled (0) to allow SSE long-lived connections
		// Chi middleware timeout (60s) protects regular requests
		WriteTimeout: 0,
		// IdleTimeout for keep-alive connections between requests
		IdleTimeout: 120 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("Starting HTTP server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("Shutting down HTTP server")
		// Stop SSE broker first to close all client connections gracefully
		s.sseBroker.Stop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errChan:
		return err
	}
}
