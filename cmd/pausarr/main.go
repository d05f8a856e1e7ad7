package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/pausarr/pausarr/internal/config"
	"github.com/pausarr/pausarr/internal/controller"
	"github.com/pausarr/pausarr/internal/database"
	"github.com/pausarr/pausarr/internal/downloader"
	"github.com/pausarr/pausarr/internal/logging"
	"github.com/pausarr/pausarr/internal/mediaserver"
	"github.com/pausarr/pausarr/internal/notification"
	"github.com/pausarr/pausarr/internal/playback"
	"github.com/pausarr/pausarr/internal/poller"
	"github.com/pausarr/pausarr/internal/web"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// CLI flags
var (
	port        int
	bind        string
	allowSubnet string
	dbPath      string
	configPath  string
	verbosity   int

	// Timeout flags (advanced)
	httpTimeout   time.Duration
	websocketPing time.Duration
	clientTimeout time.Duration
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "pausarr",
		Short: "Pausarr - Playback-aware download pause relay",
		Long:  `Pausarr pauses your download clients while media is playing and resumes them when playback stops. It listens for Plex, Jellyfin, and Emby webhooks and polls session state as a fallback.`,
		RunE:  run,
	}

	// Flags
	rootCmd.Flags().IntVarP(&port, "port", "p", 0, "HTTP server port (required, or set PORT env var)")
	rootCmd.Flags().StringVarP(&bind, "bind", "b", "", "IP address to bind to (e.g., 127.0.0.1, 0.0.0.0)")
	rootCmd.Flags().StringVarP(&allowSubnet, "allow-subnet", "a", "", "CIDR subnet allowed to connect (e.g., 192.168.1.0/24)")
	rootCmd.Flags().StringVarP(&dbPath, "db", "d", "./pausarr.db", "SQLite database path (or set DB_PATH env var)")
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "YAML config file declaring servers and clients (or set CONFIG_PATH env var)")
	rootCmd.Flags().CountVarP(&verbosity, "verbose", "v", "Increase verbosity (-v debug, -vv trace)")

	// Advanced timeout flags
	rootCmd.Flags().DurationVar(&httpTimeout, "http-timeout", 30*time.Second, "Timeout for HTTP client requests to external services")
	rootCmd.Flags().DurationVar(&websocketPing, "websocket-ping", 30*time.Second, "Interval between WebSocket keepalive pings")
	rootCmd.Flags().DurationVar(&clientTimeout, "client-timeout", 15*time.Second, "Timeout for a single pause/resume call to a download client")

	// Version command
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("pausarr %s (commit: %s, built: %s)\n", version, commit, date)
		},
	})

	// API key rotation command
	rootCmd.AddCommand(apiKeyCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	// Check for PORT env var if flag not set
	if port == 0 {
		if envPort := os.Getenv("PORT"); envPort != "" {
			if _, err := fmt.Sscanf(envPort, "%d", &port); err != nil {
				return fmt.Errorf("invalid PORT environment variable %q: %w", envPort, err)
			}
		}
	}

	// Check for DB_PATH env var if using default
	if dbPath == "./pausarr.db" {
		if envDB := os.Getenv("DB_PATH"); envDB != "" {
			dbPath = envDB
		}
	}

	if configPath == "" {
		configPath = os.Getenv("CONFIG_PATH")
	}

	// Validate port
	if port == 0 {
		return fmt.Errorf("--port flag or PORT environment variable is required")
	}

	// Validate bind address if provided
	if bind != "" {
		if ip := net.ParseIP(bind); ip == nil {
			return fmt.Errorf("invalid bind address: %s", bind)
		}
	}

	// Validate and parse allow-subnet if provided
	var allowedNet *net.IPNet
	if allowSubnet != "" {
		_, parsedNet, err := net.ParseCIDR(allowSubnet)
		if err != nil {
			return fmt.Errorf("invalid allow-subnet CIDR: %s", allowSubnet)
		}
		allowedNet = parsedNet
	}

	// Configure global timeouts
	config.SetGlobalTimeouts(&config.TimeoutConfig{
		HTTPClient:      httpTimeout,
		WebSocketPing:   websocketPing,
		ClientOperation: clientTimeout,
	})

	// Warn if binding to all interfaces without an allow list
	if (bind == "" || bind == "0.0.0.0" || bind == "::") && allowSubnet == "" {
		log.Warn().Msg("Server is accessible from all interfaces without subnet restrictions. Consider using --bind or --allow-subnet for security.")
	}

	// Initialize database
	db, err := database.New(dbPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer db.Close()

	// Run migrations and seed defaults
	if err := db.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to run database migrations")
	}
	if err := db.InitializeDefaults(); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize default settings")
	}

	// Setup logging (console + rotating file next to the database)
	loader := config.NewLoader(db)
	logging.Apply(levelForVerbosity(verbosity), loader, logging.FilePathForDB(dbPath))

	log.Info().
		Str("version", version).
		Int("port", port).
		Str("bind", bind).
		Str("allow_subnet", allowSubnet).
		Str("database", dbPath).
		Msg("Starting Pausarr")

	// Stored sessions are stale after a restart
	if err := db.ClearActiveSessions(); err != nil {
		log.Warn().Err(err).Msg("Failed to clear stale sessions")
	}

	// Seed servers and clients from environment variables
	seedFromEnv(db)

	// Apply the YAML config file if one was given
	if configPath != "" {
		cfgFile, err := config.LoadFile(configPath)
		if err != nil {
			log.Fatal().Err(err).Str("path", configPath).Msg("Failed to load config file")
		}
		applyConfigFile(db, cfgFile)
	}

	// Core components
	tracker := playback.NewTracker()
	serversMgr := mediaserver.NewManager(db)
	clientsMgr := downloader.NewManager(db)

	notificationMgr := notification.NewManager(db)
	defer notificationMgr.Stop()
	initNotificationProviders(db, notificationMgr)

	ctrl := controller.New(db, clientsMgr, notificationMgr)

	activityPoller := poller.New(db, serversMgr, tracker, ctrl, notificationMgr)
	defer activityPoller.Stop()

	// Web server
	server := web.NewServer(db, port, bind, allowedNet, tracker, ctrl, serversMgr, clientsMgr)
	server.SetNotificationManager(notificationMgr)
	server.SetPollerManager(activityPoller)

	// A pause left behind by an unclean shutdown would stick forever
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ctrl.ResumeOnStart(ctx)

	if started, err := activityPoller.Start(); err != nil {
		log.Warn().Err(err).Msg("Failed to start activity poller")
	} else if !started {
		log.Debug().Msg("Activity poller not started (no media servers configured)")
	}

	// Prune old pause history
	if days := loader.Int("events.cleanup_days", 30); days > 0 {
		if deleted, err := db.CleanupPauseEvents(days); err != nil {
			log.Warn().Err(err).Msg("Failed to prune pause history")
		} else if deleted > 0 {
			log.Debug().Int64("deleted", deleted).Msg("Pruned old pause events")
		}
	}

	// Watch the config file for changes
	var watcher *config.FileWatcher
	if configPath != "" {
		watcher, err = config.NewFileWatcher(configPath, func(f *config.File) {
			applyConfigFile(db, f)
			serversMgr.InvalidateAll()
			clientsMgr.InvalidateAll()
			initNotificationProviders(db, notificationMgr)
			if err := activityPoller.Restart(); err != nil {
				log.Error().Err(err).Msg("Failed to restart poller after config reload")
			}
		})
		if err != nil {
			log.Warn().Err(err).Msg("Failed to watch config file")
		} else {
			defer watcher.Stop()
		}
	}

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	// Start server
	if err := server.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server error")
	}

	log.Info().Msg("Pausarr stopped")
	return nil
}

func levelForVerbosity(verbosity int) string {
	switch verbosity {
	case 0:
		return "info"
	case 1:
		return "debug"
	default: // 2+
		return "trace"
	}
}
