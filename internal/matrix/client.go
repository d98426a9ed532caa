// Package matrix is a minimal Matrix client-server API client covering the
// calls the bot needs: login, sync, sending, room joins, directory lookups,
// and media transfer.
package matrix

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	apiTimeout  = 30 * time.Second
	syncTimeout = 30 * time.Second // server-side long-poll window
)

// Client talks to a single homeserver with a bearer token.
type Client struct {
	homeserver string
	mediaBase  string // media download base; homeserver unless overridden
	userID     string
	token      string
	logger     *slog.Logger

	api  *http.Client // short-lived API calls
	sync *http.Client // long-poll sync, no overall timeout

	nextBatch string
}

type Config struct {
	Homeserver  string
	MediaURL    string // optional override for media downloads
	AccessToken string // used directly when set; otherwise call Login
	UserID      string
	Logger      *slog.Logger
}

func NewClient(cfg Config) *Client {
	hs := strings.TrimRight(cfg.Homeserver, "/")
	media := hs
	if v := strings.TrimRight(cfg.MediaURL, "/"); v != "" && !strings.EqualFold(v, "none") {
		media = v
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Client{
		homeserver: hs,
		mediaBase:  media,
		userID:     cfg.UserID,
		token:      cfg.AccessToken,
		logger:     cfg.Logger,
		api:        newHTTPClient(apiTimeout),
		sync:       newHTTPClient(0),
	}
}

// newHTTPClient returns a pooled HTTP client. timeout 0 means no overall
// deadline (the sync long-poll relies on per-request contexts instead).
func newHTTPClient(timeout time.Duration) *http.Client {
	transport := &http.Transport{
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &http.Client{Timeout: timeout, Transport: transport}
}

func (c *Client) UserID() string { return c.userID }

// Login authenticates with a password and stores the access token.
// A fully-qualified user ID like "@bot:example.org" is reduced to its
// localpart for the login identifier.
func (c *Client) Login(ctx context.Context, userID, password string) error {
	localpart := userID
	if strings.HasPrefix(localpart, "@") && strings.Contains(localpart, ":") {
		localpart = strings.SplitN(localpart[1:], ":", 2)[0]
	}
	c.logger.Info("logging in", "user", localpart, "homeserver", c.homeserver)

	body := map[string]any{
		"type": "m.login.password",
		"identifier": map[string]string{
			"type": "m.id.user",
			"user": localpart,
		},
		"password":                    password,
		"initial_device_display_name": "matrixbot",
	}
	var resp struct {
		AccessToken string `json:"access_token"`
		UserID      string `json:"user_id"`
	}
	if err := c.do(ctx, c.api, http.MethodPost, "/_matrix/client/v3/login", body, &resp); err != nil {
		return fmt.Errorf("login: %w", err)
	}
	c.token = resp.AccessToken
	if resp.UserID != "" {
		c.userID = resp.UserID
	}
	return nil
}

// WhoAmI validates the current access token and fills in the user ID.
func (c *Client) WhoAmI(ctx context.Context) error {
	var resp struct {
		UserID string `json:"user_id"`
	}
	if err := c.do(ctx, c.api, http.MethodGet, "/_matrix/client/v3/account/whoami", nil, &resp); err != nil {
		return fmt.Errorf("whoami: %w", err)
	}
	c.userID = resp.UserID
	return nil
}

// apiError is a non-2xx response from the homeserver.
type apiError struct {
	Status  int
	Code    string `json:"errcode"`
	Message string `json:"error"`
}

func (e *apiError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("http %d: %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("http %d", e.Status)
}

// do performs one JSON request against the homeserver. path must already
// be escaped. A nil body sends no payload; a nil out discards the response.
func (c *Client) do(ctx context.Context, hc *http.Client, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.homeserver+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &apiError{Status: resp.StatusCode}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		_ = json.Unmarshal(data, apiErr)
		return apiErr
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// DownloadMedia fetches the bytes behind an mxc:// content URI using the
// authenticated media endpoint.
func (c *Client) DownloadMedia(ctx context.Context, mxcURL string) ([]byte, error) {
	server, mediaID, err := splitMXC(mxcURL)
	if err != nil {
		return nil, err
	}

	u := fmt.Sprintf("%s/_matrix/client/v1/media/download/%s/%s?allow_redirect=true",
		c.mediaBase, url.PathEscape(server), url.PathEscape(mediaID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.api.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("media download http %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return io.ReadAll(resp.Body)
}

// splitMXC parses "mxc://server/mediaId" into its parts.
func splitMXC(mxcURL string) (server, mediaID string, err error) {
	const prefix = "mxc://"
	if !strings.HasPrefix(mxcURL, prefix) {
		return "", "", fmt.Errorf("invalid mxc url: %s", mxcURL)
	}
	parts := strings.SplitN(mxcURL[len(prefix):], "/", 2)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("malformed mxc url: %s", mxcURL)
	}
	return parts[0], parts[1], nil
}
