// Package mattermost implements a read-only client for the Mattermost REST
// API (v4), covering the calls needed to export a channel's history: login,
// team/channel resolution, post listing, user profiles, and file downloads.
package mattermost

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

var (
	// ErrAuthFailed indicates bad credentials or a login response without a token.
	ErrAuthFailed = errors.New("mattermost: authentication failed")
	// ErrNotFound indicates the requested team, channel, user, or file does not exist.
	ErrNotFound = errors.New("mattermost: not found")
)

// StatusError reports an unexpected HTTP status from the API.
// Calls are never retried; a failed call surfaces its status once.
type StatusError struct {
	Op   string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("mattermost: %s returned status %d", e.Op, e.Code)
}

// Client is a token-authenticated Mattermost API client. It holds no state
// beyond the base URL, the token, and the HTTP client; all caching is the
// caller's concern.
type Client struct {
	baseURL    string
	token      string
	pageSize   int
	httpClient *http.Client
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithPageSize sets the page size used when listing channel posts.
func WithPageSize(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

// WithLogger sets the logger used for request diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger.With("component", "mattermost")
		}
	}
}

// NewClient creates a client for the Mattermost instance at baseURL.
// The token may be empty; use Login to obtain one, or SetToken for a
// pre-shared personal access token.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:  baseURL,
		pageSize: 200,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: slog.Default().With("component", "mattermost"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the instance base URL the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// SetToken installs a pre-shared access token, skipping Login.
func (c *Client) SetToken(token string) {
	c.token = token
}

// FileURL returns the public download URL for a file, used for link
// fallbacks when binary transfer fails.
func (c *Client) FileURL(fileID string) string {
	return fmt.Sprintf("%s/api/v4/files/%s", c.baseURL, fileID)
}

// Login authenticates with username/password credentials and stores the
// session token from the response header for subsequent calls.
func (c *Client) Login(ctx context.Context, loginID, password string) error {
	body, err := json.Marshal(map[string]string{
		"login_id": loginID,
		"password": password,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal login request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v4/users/login", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("login request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrAuthFailed, resp.StatusCode)
	}

	token := resp.Header.Get("Token")
	if token == "" {
		return fmt.Errorf("%w: no token in response", ErrAuthFailed)
	}

	c.token = token
	c.logger.Debug("Authenticated with Mattermost", "login_id", loginID)
	return nil
}

// TeamByName resolves a team name to its ID.
func (c *Client) TeamByName(ctx context.Context, name string) (string, error) {
	var team idResponse
	err := c.get(ctx, "/api/v4/teams/name/"+url.PathEscape(name), &team)
	if err != nil {
		return "", fmt.Errorf("team %q: %w", name, err)
	}
	return team.ID, nil
}

// ChannelByName resolves a channel name within a team to its ID.
func (c *Client) ChannelByName(ctx context.Context, teamID, name string) (string, error) {
	var channel idResponse
	err := c.get(ctx, "/api/v4/teams/"+url.PathEscape(teamID)+"/channels/name/"+url.PathEscape(name), &channel)
	if err != nil {
		return "", fmt.Errorf("channel %q: %w", name, err)
	}
	return channel.ID, nil
}

// ChannelPosts fetches posts from a channel. With since == 0 it pages through
// the full listing until a short page is returned. With since > 0 it issues a
// single bounded request and additionally discards any post whose timestamp
// is at or before the watermark, in case the API treats the boundary as
// inclusive.
//
// The returned slice is in API order, which is not chronological; callers
// must sort. A page fetch that fails mid-pagination stops paging and returns
// what was collected so far, with a warning log.
func (c *Client) ChannelPosts(ctx context.Context, channelID string, since int64) ([]Post, error) {
	var all []Post

	for page := 0; ; page++ {
		path := fmt.Sprintf("/api/v4/channels/%s/posts?page=%d&per_page=%d", url.PathEscape(channelID), page, c.pageSize)
		if since > 0 {
			path = fmt.Sprintf("/api/v4/channels/%s/posts?since=%d", url.PathEscape(channelID), since)
		}

		var list postList
		if err := c.get(ctx, path, &list); err != nil {
			if len(all) == 0 && page == 0 {
				return nil, fmt.Errorf("failed to fetch posts: %w", err)
			}
			c.logger.Warn("Page fetch failed mid-pagination, returning partial history",
				"channel_id", channelID,
				"page", page,
				"collected", len(all),
				"error", err)
			return all, nil
		}

		if len(list.Order) == 0 {
			break
		}

		for _, postID := range list.Order {
			post, ok := list.Posts[postID]
			if !ok {
				continue
			}
			if since > 0 && post.CreateAt <= since {
				continue
			}
			all = append(all, post)
		}

		// The since form returns everything in one response.
		if since > 0 {
			break
		}
		if len(list.Order) < c.pageSize {
			break
		}
	}

	return all, nil
}

// User fetches a user profile by ID.
func (c *Client) User(ctx context.Context, userID string) (*User, error) {
	var user User
	if err := c.get(ctx, "/api/v4/users/"+url.PathEscape(userID), &user); err != nil {
		return nil, fmt.Errorf("user %q: %w", userID, err)
	}
	return &user, nil
}

// FileInfo fetches attachment metadata by file ID.
func (c *Client) FileInfo(ctx context.Context, fileID string) (*FileInfo, error) {
	var info FileInfo
	if err := c.get(ctx, "/api/v4/files/"+url.PathEscape(fileID)+"/info", &info); err != nil {
		return nil, fmt.Errorf("file info %q: %w", fileID, err)
	}
	return &info, nil
}

// File downloads attachment content by file ID. The body is read as raw
// bytes, so binary content survives intact regardless of content type.
func (c *Client) File(ctx context.Context, fileID string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v4/files/"+url.PathEscape(fileID), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("file %q: %w", fileID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("file %q: %w", fileID, ErrNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Op: "file download", Code: resp.StatusCode}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("file %q: failed to read body: %w", fileID, err)
	}
	return data, nil
}

// get performs an authenticated GET and decodes the JSON response into out.
func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: status %d", ErrAuthFailed, resp.StatusCode)
	default:
		return &StatusError{Op: "GET " + path, Code: resp.StatusCode}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
