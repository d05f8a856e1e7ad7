package downloader

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/pausarr/pausarr/internal/config"
	"github.com/pausarr/pausarr/internal/database"
	"github.com/pausarr/pausarr/internal/httpclient"
)

// SABnzbdClient controls a SABnzbd instance via its JSON API
type SABnzbdClient struct {
	row    *database.DownloadClient
	client *http.Client
}

// NewSABnzbdClient creates a new SABnzbd client
func NewSABnzbdClient(row *database.DownloadClient) *SABnzbdClient {
	return &SABnzbdClient{
		row:    row,
		client: httpclient.NewTraceClient("sabnzbd", config.GetTimeouts().HTTPClient),
	}
}

// Name returns the configured client name
func (c *SABnzbdClient) Name() string {
	return c.row.Name
}

// Type returns the client type
func (c *SABnzbdClient) Type() database.ClientType {
	return database.ClientTypeSABnzbd
}

// Pause pauses the SABnzbd download queue
func (c *SABnzbdClient) Pause(ctx context.Context) error {
	return c.call(ctx, "pause")
}

// Resume resumes the SABnzbd download queue
func (c *SABnzbdClient) Resume(ctx context.Context) error {
	return c.call(ctx, "resume")
}

// TestConnection verifies connectivity and the API key
func (c *SABnzbdClient) TestConnection(ctx context.Context) error {
	return c.call(ctx, "version")
}

// call invokes a SABnzbd API mode and checks the JSON response for errors
func (c *SABnzbdClient) call(ctx context.Context, mode string) error {
	apiURL := fmt.Sprintf("%s/api", c.row.BaseURL())

	q := url.Values{}
	q.Set("mode", mode)
	q.Set("apikey", c.row.APIKey)
	q.Set("output", "json")

	req, err := http.NewRequestWithContext(ctx, "GET", apiURL+"?"+q.Encode(), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("sabnzbd returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	// SABnzbd reports API errors with a 200 status and an error field
	var result struct {
		Status bool   `json:"status"`
		Error  string `json:"error"`
	}
	if err := json.Unmarshal(body, &result); err == nil && result.Error != "" {
		return fmt.Errorf("sabnzbd error: %s", result.Error)
	}

	return nil
}
