// Package rocketchat implements the write side of the migration: an
// admin-authenticated Rocket.Chat REST client that creates messages, uploads
// files, looks up accounts, and notifies the operator.
//
// Messages can be attributed to real accounts two ways. The client first
// tries token impersonation (users.createToken, which needs the
// user-generate-access-token permission); when that is not granted it falls
// back to posting as the administrator with the original username as alias.
package rocketchat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"time"
)

// ErrNotFound indicates the requested account does not exist.
var ErrNotFound = errors.New("rocketchat: not found")

// StatusError reports an unexpected HTTP status from the API.
type StatusError struct {
	Op   string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("rocketchat: %s returned status %d", e.Op, e.Code)
}

type session struct {
	userID string
	token  string
}

// Client is an admin-authenticated Rocket.Chat API client.
type Client struct {
	baseURL    string
	admin      session
	adminName  string
	httpClient *http.Client
	logger     *slog.Logger

	// Impersonation tokens obtained via users.createToken, cached for the
	// client's lifetime. A nil entry records a failed attempt so it is not
	// repeated.
	sessions map[string]*session
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithLogger sets the logger used for request diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger.With("component", "rocketchat")
		}
	}
}

// NewClient creates a client for the Rocket.Chat instance at baseURL,
// authenticated with the administrator's user ID, personal access token, and
// username (used for operator notifications).
func NewClient(baseURL, adminID, adminToken, adminUsername string, opts ...Option) *Client {
	c := &Client{
		baseURL:   baseURL,
		admin:     session{userID: adminID, token: adminToken},
		adminName: adminUsername,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger:   slog.Default().With("component", "rocketchat"),
		sessions: map[string]*session{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AdminID returns the administrator account ID messages default to.
func (c *Client) AdminID() string {
	return c.admin.userID
}

// PostMessage creates a message in a room and returns the generated message
// ID, or "" when the API does not report one.
func (c *Client) PostMessage(ctx context.Context, msg Message) (string, error) {
	req := postMessageRequest{
		RoomID: msg.RoomID,
		Text:   msg.Text,
		TMID:   msg.ThreadID,
	}

	auth := c.admin
	if msg.SenderID != "" && msg.SenderID != c.admin.userID {
		if sess := c.sessionFor(ctx, msg.SenderID); sess != nil {
			auth = *sess
		} else {
			// Impersonation unavailable; keep the original author visible.
			req.Alias = msg.Alias
		}
	}

	var resp postMessageResponse
	if err := c.post(ctx, auth, "/api/v1/chat.postMessage", req, &resp); err != nil {
		return "", fmt.Errorf("failed to post message: %w", err)
	}
	return resp.Message.ID, nil
}

// UploadFile uploads a file buffer into a room under the given filename,
// attributed to the administrator.
func (c *Client) UploadFile(ctx context.Context, roomID, filename string, data []byte) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		return fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return fmt.Errorf("failed to write file data: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finalize form: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/v1/rooms.upload/"+url.PathEscape(roomID), &buf)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", w.FormDataContentType())
	c.setAuth(httpReq, c.admin)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("upload request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &StatusError{Op: "rooms.upload", Code: resp.StatusCode}
	}
	return nil
}

// UserByUsername looks up an account by username.
func (c *Client) UserByUsername(ctx context.Context, username string) (*User, error) {
	path := "/api/v1/users.info?username=" + url.QueryEscape(username)

	var resp userInfoResponse
	if err := c.get(ctx, path, &resp); err != nil {
		if isLookupMiss(err) {
			return nil, fmt.Errorf("user %q: %w", username, ErrNotFound)
		}
		return nil, fmt.Errorf("user %q: %w", username, err)
	}
	if resp.User.ID == "" {
		return nil, fmt.Errorf("user %q: %w", username, ErrNotFound)
	}
	return &resp.User, nil
}

// UserByEmail looks up an account by email address through the admin
// user directory.
func (c *Client) UserByEmail(ctx context.Context, email string) (*User, error) {
	query, err := json.Marshal(map[string]string{"emails.address": email})
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}
	path := "/api/v1/users.list?query=" + url.QueryEscape(string(query))

	var resp userListResponse
	if err := c.get(ctx, path, &resp); err != nil {
		if isLookupMiss(err) {
			return nil, fmt.Errorf("user by email %q: %w", email, ErrNotFound)
		}
		return nil, fmt.Errorf("user by email %q: %w", email, err)
	}
	if len(resp.Users) == 0 {
		return nil, fmt.Errorf("user by email %q: %w", email, ErrNotFound)
	}
	return &resp.Users[0], nil
}

// Notify sends a one-off message to the administrator's own direct message
// channel. Used for progress and summary reporting; failures are the
// caller's to ignore.
func (c *Client) Notify(ctx context.Context, text string) error {
	req := postMessageRequest{
		Channel: "@" + c.adminName,
		Text:    text,
	}
	var resp postMessageResponse
	if err := c.post(ctx, c.admin, "/api/v1/chat.postMessage", req, &resp); err != nil {
		return fmt.Errorf("failed to notify: %w", err)
	}
	return nil
}

// isLookupMiss reports whether an error is the user-lookup endpoints' way of
// saying "no such user": users.info and users.list answer 400 for unknown
// names. Other endpoints' 400s are real request errors and stay StatusErrors.
func isLookupMiss(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == http.StatusBadRequest
}

// sessionFor returns a cached or freshly created impersonation session for
// the given user, or nil when impersonation is unavailable.
func (c *Client) sessionFor(ctx context.Context, userID string) *session {
	if sess, ok := c.sessions[userID]; ok {
		return sess
	}

	var resp createTokenResponse
	err := c.post(ctx, c.admin, "/api/v1/users.createToken", map[string]string{"userId": userID}, &resp)
	if err != nil || resp.Data.AuthToken == "" {
		c.logger.Debug("Impersonation unavailable, falling back to alias",
			"user_id", userID, "error", err)
		c.sessions[userID] = nil
		return nil
	}

	sess := &session{userID: resp.Data.UserID, token: resp.Data.AuthToken}
	c.sessions[userID] = sess
	return sess
}

func (c *Client) setAuth(req *http.Request, auth session) {
	req.Header.Set("X-User-Id", auth.userID)
	req.Header.Set("X-Auth-Token", auth.token)
}

func (c *Client) post(ctx context.Context, auth session, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.setAuth(req, auth)

	return c.do(req, path, out)
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	c.setAuth(req, c.admin)

	return c.do(req, path, out)
}

func (c *Client) do(req *http.Request, path string, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		io.Copy(io.Discard, resp.Body) //nolint:errcheck
		return ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return &StatusError{Op: req.Method + " " + path, Code: resp.StatusCode}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
