package downloader

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"

	"github.com/pausarr/pausarr/internal/config"
	"github.com/pausarr/pausarr/internal/database"
	"github.com/pausarr/pausarr/internal/httpclient"
)

// QBittorrentClient controls a qBittorrent instance via its WebUI v2 API
type QBittorrentClient struct {
	row    *database.DownloadClient
	client *http.Client

	loginMu  sync.Mutex
	loggedIn bool
}

// NewQBittorrentClient creates a new qBittorrent client
func NewQBittorrentClient(row *database.DownloadClient) *QBittorrentClient {
	jar, _ := cookiejar.New(nil)
	client := httpclient.Wrap(&http.Client{
		Timeout: config.GetTimeouts().HTTPClient,
		Jar:     jar,
	}, "qbittorrent")

	return &QBittorrentClient{
		row:    row,
		client: client,
	}
}

// Name returns the configured client name
func (c *QBittorrentClient) Name() string {
	return c.row.Name
}

// Type returns the client type
func (c *QBittorrentClient) Type() database.ClientType {
	return database.ClientTypeQBittorrent
}

// Pause pauses all torrents
func (c *QBittorrentClient) Pause(ctx context.Context) error {
	return c.torrentsAction(ctx, "pause")
}

// Resume resumes all torrents
func (c *QBittorrentClient) Resume(ctx context.Context) error {
	return c.torrentsAction(ctx, "resume")
}

// TestConnection verifies connectivity and credentials
func (c *QBittorrentClient) TestConnection(ctx context.Context) error {
	c.loginMu.Lock()
	c.loggedIn = false
	c.loginMu.Unlock()
	return c.login(ctx)
}

// login authenticates against the WebUI; the SID cookie is kept in the jar
func (c *QBittorrentClient) login(ctx context.Context) error {
	c.loginMu.Lock()
	defer c.loginMu.Unlock()

	if c.loggedIn {
		return nil
	}

	loginURL := fmt.Sprintf("%s/api/v2/auth/login", c.row.BaseURL())

	form := url.Values{}
	form.Set("username", c.row.Username)
	form.Set("password", c.row.Password)

	req, err := http.NewRequestWithContext(ctx, "POST", loginURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("qbittorrent login returned status %d", resp.StatusCode)
	}

	// A failed login still returns 200 with "Fails." in the body
	if !strings.HasPrefix(string(body), "Ok") {
		return fmt.Errorf("qbittorrent authentication failed: invalid credentials")
	}

	c.loggedIn = true
	return nil
}

// torrentsAction pauses or resumes all torrents, re-authenticating once if the session expired
func (c *QBittorrentClient) torrentsAction(ctx context.Context, action string) error {
	if err := c.login(ctx); err != nil {
		return err
	}

	err := c.doTorrentsAction(ctx, action)
	if err == nil {
		return nil
	}

	// SID cookies expire; re-login once and retry
	c.loginMu.Lock()
	c.loggedIn = false
	c.loginMu.Unlock()

	if err := c.login(ctx); err != nil {
		return err
	}

	return c.doTorrentsAction(ctx, action)
}

func (c *QBittorrentClient) doTorrentsAction(ctx context.Context, action string) error {
	actionURL := fmt.Sprintf("%s/api/v2/torrents/%s", c.row.BaseURL(), action)

	form := url.Values{}
	form.Set("hashes", "all")

	req, err := http.NewRequestWithContext(ctx, "POST", actionURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("qbittorrent session expired")
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("qbittorrent returned status %d", resp.StatusCode)
	}

	return nil
}
