package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/pausarr/pausarr/internal/auth"
	"github.com/pausarr/pausarr/internal/config"
	"github.com/pausarr/pausarr/internal/database"
	"github.com/pausarr/pausarr/internal/notification"
)

// seedFromEnv upserts media servers and download clients declared through
// environment variables. This keeps plain docker-compose setups working
// without a config file or API calls.
func seedFromEnv(db *database.DB) {
	seedClientFromEnv(db, database.ClientTypeSABnzbd, "SABNZBD", 8080)
	seedClientFromEnv(db, database.ClientTypeDeluge, "DELUGE", 8112)
	seedClientFromEnv(db, database.ClientTypeQBittorrent, "QBITTORRENT", 8081)

	seedServerFromEnv(db, database.ServerTypePlex, "PLEX", "PLEX_TOKEN")
	seedServerFromEnv(db, database.ServerTypeJellyfin, "JELLYFIN", "JELLYFIN_API_KEY")
	seedServerFromEnv(db, database.ServerTypeEmby, "EMBY", "EMBY_API_KEY")

	if url := os.Getenv("DISCORD_WEBHOOK_URL"); url != "" {
		setSettings(db, map[string]string{
			"notifications.discord.enabled":     "true",
			"notifications.discord.webhook_url": url,
		})
	}

	if interval := os.Getenv("POLL_INTERVAL_SECONDS"); interval != "" {
		if _, err := strconv.Atoi(interval); err == nil {
			setSettings(db, map[string]string{"poller.interval_seconds": interval})
		} else {
			log.Warn().Str("value", interval).Msg("Ignoring invalid POLL_INTERVAL_SECONDS")
		}
	}
}

// seedClientFromEnv reads <PREFIX>_HOST/_PORT/_API_KEY/_USERNAME/_PASSWORD
func seedClientFromEnv(db *database.DB, clientType database.ClientType, prefix string, defaultPort int) {
	host := os.Getenv(prefix + "_HOST")
	if host == "" {
		return
	}

	port := defaultPort
	if v := os.Getenv(prefix + "_PORT"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil || p <= 0 || p > 65535 {
			log.Warn().Str("value", v).Str("client", string(clientType)).Msg("Ignoring invalid port from environment")
		} else {
			port = p
		}
	}

	client := &database.DownloadClient{
		Name:     string(clientType),
		Type:     clientType,
		Host:     host,
		Port:     port,
		Username: os.Getenv(prefix + "_USERNAME"),
		Password: os.Getenv(prefix + "_PASSWORD"),
		APIKey:   os.Getenv(prefix + "_API_KEY"),
		UseSSL:   os.Getenv(prefix+"_USE_SSL") == "true",
		Enabled:  true,
	}

	if err := db.UpsertDownloadClientByName(client); err != nil {
		log.Error().Err(err).Str("client", client.Name).Msg("Failed to seed download client from environment")
		return
	}

	log.Info().Str("client", client.Name).Str("host", host).Int("port", port).Msg("Download client configured from environment")
}

// seedServerFromEnv reads <PREFIX>_URL and the type-specific credential variable
func seedServerFromEnv(db *database.DB, serverType database.ServerType, prefix, keyVar string) {
	url := os.Getenv(prefix + "_URL")
	if url == "" {
		return
	}

	server := &database.MediaServer{
		Name:        string(serverType),
		Type:        serverType,
		URL:         url,
		APIKey:      os.Getenv(keyVar),
		SessionMode: database.SessionModePolling,
		Enabled:     true,
	}

	if mode := os.Getenv(prefix + "_SESSION_MODE"); mode == string(database.SessionModeWebSocket) {
		server.SessionMode = database.SessionModeWebSocket
	}

	if err := db.UpsertMediaServerByName(server); err != nil {
		log.Error().Err(err).Str("server", server.Name).Msg("Failed to seed media server from environment")
		return
	}

	log.Info().Str("server", server.Name).Str("url", url).Msg("Media server configured from environment")
}

// applyConfigFile upserts the servers and clients declared in the YAML config
func applyConfigFile(db *database.DB, f *config.File) {
	for _, sc := range f.MediaServers {
		mode := database.SessionModePolling
		if sc.SessionMode == string(database.SessionModeWebSocket) {
			mode = database.SessionModeWebSocket
		}

		server := &database.MediaServer{
			Name:        sc.Name,
			Type:        database.ServerType(sc.Type),
			URL:         sc.URL,
			APIKey:      sc.APIKey,
			SessionMode: mode,
			Enabled:     !sc.Disabled,
		}
		if err := db.UpsertMediaServerByName(server); err != nil {
			log.Error().Err(err).Str("server", sc.Name).Msg("Failed to apply media server from config file")
		}
	}

	for _, cc := range f.DownloadClients {
		client := &database.DownloadClient{
			Name:     cc.Name,
			Type:     database.ClientType(cc.Type),
			Host:     cc.Host,
			Port:     cc.Port,
			Username: cc.Username,
			Password: cc.Password,
			APIKey:   cc.APIKey,
			UseSSL:   cc.UseSSL,
			Enabled:  !cc.Disabled,
		}
		if err := db.UpsertDownloadClientByName(client); err != nil {
			log.Error().Err(err).Str("client", cc.Name).Msg("Failed to apply download client from config file")
		}
	}

	if f.Poller.IntervalSeconds > 0 {
		setSettings(db, map[string]string{
			"poller.interval_seconds": strconv.Itoa(f.Poller.IntervalSeconds),
		})
	}
	if f.Poller.Schedule != "" {
		setSettings(db, map[string]string{"poller.schedule": f.Poller.Schedule})
	}

	if f.Discord.WebhookURL != "" {
		settings := map[string]string{
			"notifications.discord.enabled":     "true",
			"notifications.discord.webhook_url": f.Discord.WebhookURL,
		}
		if f.Discord.Username != "" {
			settings["notifications.discord.username"] = f.Discord.Username
		}
		if f.Discord.AvatarURL != "" {
			settings["notifications.discord.avatar_url"] = f.Discord.AvatarURL
		}
		setSettings(db, settings)
	}

	log.Info().
		Int("servers", len(f.MediaServers)).
		Int("clients", len(f.DownloadClients)).
		Msg("Applied config file")
}

func setSettings(db *database.DB, settings map[string]string) {
	for key, value := range settings {
		if err := db.SetSetting(key, value); err != nil {
			log.Error().Err(err).Str("key", key).Msg("Failed to store setting")
		}
	}
}

// initNotificationProviders registers providers based on stored settings.
// Existing registrations are replaced so config reloads take effect.
func initNotificationProviders(db *database.DB, mgr *notification.Manager) {
	loader := config.NewLoader(db)

	if loader.Bool("notifications.discord.enabled", false) {
		mgr.RegisterProvider("discord", notification.NewDiscordProvider(notification.DiscordConfig{
			WebhookURL: loader.String("notifications.discord.webhook_url", ""),
			Username:   loader.String("notifications.discord.username", ""),
			AvatarURL:  loader.String("notifications.discord.avatar_url", ""),
			Enabled:    true,
		}))
	} else {
		mgr.UnregisterProvider("discord")
	}

	if loader.Bool("notifications.webhook.enabled", false) {
		mgr.RegisterProvider("webhook", notification.NewWebhookProvider(notification.WebhookConfig{
			URL:         loader.String("notifications.webhook.url", ""),
			Method:      loader.String("notifications.webhook.method", "POST"),
			Body:        loader.String("notifications.webhook.body", ""),
			ContentType: loader.String("notifications.webhook.content_type", "application/json"),
			Headers:     notification.ParseWebhookHeaders(loader.String("notifications.webhook.headers", "")),
			Enabled:     true,
		}))
	} else {
		mgr.UnregisterProvider("webhook")
	}
}

// apiKeyCmd manages the webhook API key from the command line
func apiKeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apikey",
		Short: "Manage the webhook API key",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "rotate",
		Short: "Generate a new webhook API key and print it",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := dbPath
			if envDB := os.Getenv("DB_PATH"); path == "./pausarr.db" && envDB != "" {
				path = envDB
			}

			db, err := database.New(path)
			if err != nil {
				return fmt.Errorf("failed to open database: %w", err)
			}
			defer db.Close()

			if err := db.Migrate(); err != nil {
				return fmt.Errorf("failed to run migrations: %w", err)
			}

			key, err := auth.NewWebhookAuthService(db).RotateKey()
			if err != nil {
				return err
			}

			fmt.Printf("New webhook API key: %s\n", key)
			fmt.Println("Store it now; only a hash is kept in the database.")
			return nil
		},
	})

	return cmd
}
