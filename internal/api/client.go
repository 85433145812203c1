// Package api is the HTTP client for the Racing Insights backend.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"racing-insights/internal/session"
)

// Client handles communication with the backend. Every request carries the
// session's bearer token when one is present.
type Client struct {
	baseURL    string
	httpClient *http.Client
	session    *session.Store
	logger     zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the request logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates a new backend client
func NewClient(baseURL string, timeout time.Duration, sess *session.Store, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		session: sess,
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Session returns the session store the client reads credentials from.
func (c *Client) Session() *session.Store {
	return c.session
}

// Signup registers a new account and starts a session for it.
func (c *Client) Signup(ctx context.Context, email, username, password string) (*Token, error) {
	req := SignupRequest{Email: email, Username: username, Password: password}
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	var token Token
	if err := c.do(ctx, http.MethodPost, "/signup", "application/json", bytes.NewReader(body), &token); err != nil {
		return nil, fmt.Errorf("signup failed: %w", err)
	}
	if token.AccessToken == "" {
		return nil, fmt.Errorf("signup failed: %w: no access token", ErrMalformedResponse)
	}

	c.session.SaveSession(token.AccessToken, email)
	return &token, nil
}

// Login exchanges credentials for a token using the OAuth2 password grant.
func (c *Client) Login(ctx context.Context, email, password string) (*Token, error) {
	if err := validateRequest(LoginRequest{Email: email, Password: password}); err != nil {
		return nil, err
	}

	form := url.Values{}
	form.Set("grant_type", "password")
	form.Set("username", email)
	form.Set("password", password)
	form.Set("scope", "")

	var token Token
	err := c.do(ctx, http.MethodPost, "/login", "application/x-www-form-urlencoded", strings.NewReader(form.Encode()), &token)
	if err != nil {
		return nil, fmt.Errorf("login failed: %w", err)
	}
	if token.AccessToken == "" {
		return nil, fmt.Errorf("login failed: %w: no access token", ErrMalformedResponse)
	}

	c.session.SaveSession(token.AccessToken, email)
	return &token, nil
}

// FetchProfile returns the authenticated user and refreshes the cached copy.
// A 401 matches ErrUnauthorized; the caller decides what to do with the session.
func (c *Client) FetchProfile(ctx context.Context) (*session.Profile, error) {
	var fields map[string]any
	if err := c.do(ctx, http.MethodGet, "/users/me", "", nil, &fields); err != nil {
		return nil, fmt.Errorf("failed to fetch profile: %w", err)
	}
	if fields == nil {
		return nil, fmt.Errorf("failed to fetch profile: %w", ErrMalformedResponse)
	}

	p := c.session.ReplaceProfile(fields)
	return &p, nil
}

// UpdateProfile sends a partial profile and merges the reply into the cache.
func (c *Client) UpdateProfile(ctx context.Context, update ProfileUpdate) (*session.Profile, error) {
	if err := validateRequest(update); err != nil {
		return nil, err
	}

	body, err := json.Marshal(update)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	var fields map[string]any
	if err := c.do(ctx, http.MethodPut, "/users/me", "application/json", bytes.NewReader(body), &fields); err != nil {
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}
	if fields == nil {
		fields = map[string]any{}
	}

	// The server may echo only part of the row; keep what was asked for.
	if update.Username != nil {
		if _, ok := fields["username"]; !ok {
			fields["username"] = *update.Username
		}
	}
	if update.Email != nil {
		if _, ok := fields["email"]; !ok {
			fields["email"] = *update.Email
		}
	}

	p := c.session.MergeProfile(fields)
	return &p, nil
}

// SendMessage posts a query to the assistant. An empty threadID uses (or
// mints) the session's active thread. An explicit threadID is sent as given
// and does not change the active thread.
func (c *Client) SendMessage(ctx context.Context, text, threadID string) (*ChatReply, error) {
	userKey, ok := c.session.UserKey()
	if !ok {
		return nil, ErrAuthenticationRequired
	}

	if threadID == "" {
		threadID = c.session.EnsureThreadID()
	}

	body, err := json.Marshal(ChatRequest{Query: text, ThreadID: threadID, UserKey: userKey})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	var reply ChatReply
	if err := c.do(ctx, http.MethodPost, "/chat", "application/json", bytes.NewReader(body), &reply); err != nil {
		return nil, fmt.Errorf("failed to send message: %w", err)
	}
	return &reply, nil
}

// FetchHistory lists past exchanges for the user, optionally for one thread.
// Records are normalized so every field the reconciler needs is populated;
// an unexpected body shape yields an empty list rather than an error.
func (c *Client) FetchHistory(ctx context.Context, q HistoryQuery) ([]HistoryRecord, error) {
	userKey := q.UserKey
	if userKey == "" {
		key, ok := c.session.UserKey()
		if !ok {
			return nil, ErrAuthenticationRequired
		}
		userKey = key
	}

	limit := q.Limit
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	params := url.Values{}
	params.Add("user_key", userKey)
	if strings.TrimSpace(q.ThreadID) != "" {
		params.Add("thread_id", q.ThreadID)
	}
	params.Add("limit", strconv.Itoa(limit))

	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/chat/history?"+params.Encode(), "", nil, &raw); err != nil {
		return nil, fmt.Errorf("failed to fetch chat history: %w", err)
	}

	items, ok := historyItems(raw)
	if !ok {
		c.logger.Warn().Str("thread_id", q.ThreadID).Msg("no valid history format found in response")
		return []HistoryRecord{}, nil
	}

	records := make([]HistoryRecord, 0, len(items))
	for _, item := range items {
		rec, ok := normalizeRecord(item, userKey)
		if !ok {
			c.logger.Warn().RawJSON("item", item).Msg("skipping history item that is not an object")
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// HealthCheck verifies that the backend is reachable
func (c *Client) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", nil)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("backend is unreachable at %s: %w: %w", c.baseURL, ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("backend returned server error: %d", resp.StatusCode)
	}
	return nil
}

// do executes one request and decodes a JSON reply into out.
func (c *Client) do(ctx context.Context, method, path, contentType string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	if token := c.session.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug().Err(err).Str("method", method).Str("path", req.URL.Path).Msg("request failed")
		return fmt.Errorf("%w: %w", ErrNetwork, err)
	}
	defer resp.Body.Close()

	c.logger.Debug().
		Str("method", method).
		Str("path", req.URL.Path).
		Int("status", resp.StatusCode).
		Dur("latency", time.Since(start)).
		Msg("backend request")

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: failed to read response: %w", ErrNetwork, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newStatusError(resp.StatusCode, data)
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}
	return nil
}
