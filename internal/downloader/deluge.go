package downloader

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"sync"
	"sync/atomic"

	"github.com/pausarr/pausarr/internal/config"
	"github.com/pausarr/pausarr/internal/database"
	"github.com/pausarr/pausarr/internal/httpclient"
)

// DelugeClient controls a Deluge instance via the Web UI JSON-RPC API
type DelugeClient struct {
	row    *database.DownloadClient
	client *http.Client

	loginMu   sync.Mutex
	loggedIn  bool
	requestID atomic.Int64
}

// NewDelugeClient creates a new Deluge client
func NewDelugeClient(row *database.DownloadClient) *DelugeClient {
	jar, _ := cookiejar.New(nil)
	client := httpclient.Wrap(&http.Client{
		Timeout: config.GetTimeouts().HTTPClient,
		Jar:     jar,
	}, "deluge")

	return &DelugeClient{
		row:    row,
		client: client,
	}
}

// Name returns the configured client name
func (c *DelugeClient) Name() string {
	return c.row.Name
}

// Type returns the client type
func (c *DelugeClient) Type() database.ClientType {
	return database.ClientTypeDeluge
}

// Pause pauses all torrents
func (c *DelugeClient) Pause(ctx context.Context) error {
	_, err := c.callAuthed(ctx, "core.pause_all_torrents", []interface{}{})
	return err
}

// Resume resumes all torrents
func (c *DelugeClient) Resume(ctx context.Context) error {
	_, err := c.callAuthed(ctx, "core.resume_all_torrents", []interface{}{})
	return err
}

// TestConnection verifies connectivity and the password
func (c *DelugeClient) TestConnection(ctx context.Context) error {
	c.loginMu.Lock()
	c.loggedIn = false
	c.loginMu.Unlock()
	return c.login(ctx)
}

type delugeRequest struct {
	Method string        `json:"method"`
	Params []interface{} `json:"params"`
	ID     int64         `json:"id"`
}

type delugeResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *delugeError    `json:"error"`
	ID     int64           `json:"id"`
}

type delugeError struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// login authenticates against the Deluge web UI; the session cookie is kept in the jar
func (c *DelugeClient) login(ctx context.Context) error {
	c.loginMu.Lock()
	defer c.loginMu.Unlock()

	if c.loggedIn {
		return nil
	}

	result, err := c.call(ctx, "auth.login", []interface{}{c.row.Password})
	if err != nil {
		return err
	}

	var ok bool
	if err := json.Unmarshal(result, &ok); err != nil || !ok {
		return fmt.Errorf("deluge authentication failed: wrong password")
	}

	c.loggedIn = true
	return nil
}

// callAuthed invokes a method, logging in first and retrying once if the session expired
func (c *DelugeClient) callAuthed(ctx context.Context, method string, params []interface{}) (json.RawMessage, error) {
	if err := c.login(ctx); err != nil {
		return nil, err
	}

	result, err := c.call(ctx, method, params)
	if err == nil {
		return result, nil
	}

	// Session cookies expire; re-login once and retry
	c.loginMu.Lock()
	c.loggedIn = false
	c.loginMu.Unlock()

	if err := c.login(ctx); err != nil {
		return nil, err
	}

	return c.call(ctx, method, params)
}

// call sends a single JSON-RPC request to the Deluge web UI
func (c *DelugeClient) call(ctx context.Context, method string, params []interface{}) (json.RawMessage, error) {
	rpcURL := fmt.Sprintf("%s/json", c.row.BaseURL())

	reqBody := delugeRequest{
		Method: method,
		Params: params,
		ID:     c.requestID.Add(1),
	}

	data, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", rpcURL, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("deluge returned status %d", resp.StatusCode)
	}

	var rpcResp delugeResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if rpcResp.Error != nil {
		return nil, fmt.Errorf("deluge error %d: %s", rpcResp.Error.Code, rpcResp.Error.Message)
	}

	return rpcResp.Result, nil
}
