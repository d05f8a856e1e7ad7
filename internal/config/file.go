package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// File is the optional YAML configuration file. It declares media servers and
// download clients and seeds settings; the SQLite settings store remains the
// source of truth at runtime.
type File struct {
	MediaServers    []MediaServerConfig    `yaml:"media_servers"`
	DownloadClients []DownloadClientConfig `yaml:"download_clients"`
	Poller          PollerConfig           `yaml:"poller"`
	Discord         DiscordConfig          `yaml:"discord"`
}

// MediaServerConfig declares one media server in the config file
type MediaServerConfig struct {
	Name        string `yaml:"name"`
	Type        string `yaml:"type"` // plex, emby, jellyfin
	URL         string `yaml:"url"`
	APIKey      string `yaml:"api_key"`
	SessionMode string `yaml:"session_mode"` // polling (default) or websocket
	Disabled    bool   `yaml:"disabled"`
}

// DownloadClientConfig declares one download client in the config file
type DownloadClientConfig struct {
	Name     string `yaml:"name"`
	Type     string `yaml:"type"` // sabnzbd, deluge, qbittorrent
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	APIKey   string `yaml:"api_key"`
	UseSSL   bool   `yaml:"use_ssl"`
	Disabled bool   `yaml:"disabled"`
}

// PollerConfig holds activity poller settings from the config file
type PollerConfig struct {
	IntervalSeconds int    `yaml:"interval_seconds"`
	Schedule        string `yaml:"schedule"` // cron expression, overrides interval
}

// DiscordConfig holds Discord notifier settings from the config file
type DiscordConfig struct {
	WebhookURL string `yaml:"webhook_url"`
	Username   string `yaml:"username"`
	AvatarURL  string `yaml:"avatar_url"`
}

// LoadFile reads and parses a YAML config file
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := f.Validate(); err != nil {
		return nil, err
	}

	return &f, nil
}

// Validate checks the config file for obvious mistakes
func (f *File) Validate() error {
	for _, s := range f.MediaServers {
		if s.Name == "" {
			return fmt.Errorf("media server missing name")
		}
		switch s.Type {
		case "plex", "emby", "jellyfin":
		default:
			return fmt.Errorf("media server %q has unknown type %q", s.Name, s.Type)
		}
		if s.URL == "" {
			return fmt.Errorf("media server %q missing url", s.Name)
		}
	}

	for _, c := range f.DownloadClients {
		if c.Name == "" {
			return fmt.Errorf("download client missing name")
		}
		switch c.Type {
		case "sabnzbd", "deluge", "qbittorrent":
		default:
			return fmt.Errorf("download client %q has unknown type %q", c.Name, c.Type)
		}
		if c.Host == "" {
			return fmt.Errorf("download client %q missing host", c.Name)
		}
		if c.Port <= 0 || c.Port > 65535 {
			return fmt.Errorf("download client %q has invalid port %d", c.Name, c.Port)
		}
	}

	return nil
}

// FileWatcher watches the config file and invokes a callback on changes
type FileWatcher struct {
	path     string
	watcher  *fsnotify.Watcher
	onReload func(*File)

	mu      sync.Mutex
	pending *time.Timer

	done chan struct{}
	wg   sync.WaitGroup
}

// reloadDebounce coalesces editor write bursts into a single reload
const reloadDebounce = 2 * time.Second

// NewFileWatcher creates a watcher for the given config file path.
// The callback receives the freshly parsed file on every valid change.
func NewFileWatcher(path string, onReload func(*File)) (*FileWatcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	// Watch the directory: editors replace files on save, which drops the
	// watch when pointed at the file itself
	if err := fsWatcher.Add(filepath.Dir(path)); err != nil {
		fsWatcher.Close()
		return nil, fmt.Errorf("failed to watch config directory: %w", err)
	}

	w := &FileWatcher{
		path:     path,
		watcher:  fsWatcher,
		onReload: onReload,
		done:     make(chan struct{}),
	}

	w.wg.Add(1)
	go w.eventLoop()

	log.Info().Str("path", path).Msg("Watching config file for changes")
	return w, nil
}

// Stop stops the watcher
func (w *FileWatcher) Stop() {
	close(w.done)
	w.watcher.Close()
	w.wg.Wait()

	w.mu.Lock()
	if w.pending != nil {
		w.pending.Stop()
	}
	w.mu.Unlock()
}

func (w *FileWatcher) eventLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			w.scheduleReload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Error().Err(err).Msg("Config watcher error")
		}
	}
}

func (w *FileWatcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.pending != nil {
		w.pending.Reset(reloadDebounce)
		return
	}

	w.pending = time.AfterFunc(reloadDebounce, func() {
		w.mu.Lock()
		w.pending = nil
		w.mu.Unlock()

		f, err := LoadFile(w.path)
		if err != nil {
			log.Error().Err(err).Str("path", w.path).Msg("Config reload failed, keeping previous configuration")
			return
		}

		log.Info().Str("path", w.path).Msg("Config file changed, reloading")
		w.onReload(f)
	})
}
