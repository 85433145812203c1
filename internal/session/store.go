// Package session owns the client-side authentication and conversation state.
package session

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"racing-insights/internal/storage"
)

const opTimeout = 5 * time.Second

// Store is the single session context shared by the backend client and the
// conversation controller. Storage failures are logged and never returned.
type Store struct {
	kv      storage.Store
	logger  zerolog.Logger
	now     func() time.Time
	timeout time.Duration

	// serializes read-modify-write sequences (EnsureThreadID, MergeProfile)
	mu sync.Mutex
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithLogger sets the logger used for swallowed storage failures.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// NewStore creates a session store backed by kv.
func NewStore(kv storage.Store, opts ...Option) *Store {
	s := &Store{
		kv:      kv,
		logger:  zerolog.Nop(),
		now:     time.Now,
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) get(key string) (string, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	v, ok, err := s.kv.Get(ctx, key)
	if err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("session storage read failed")
		return "", false
	}
	return v, ok && v != ""
}

func (s *Store) set(key, value string) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if err := s.kv.Set(ctx, key, value); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("session storage write failed")
	}
}

func (s *Store) del(keys ...string) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if err := s.kv.Delete(ctx, keys...); err != nil {
		s.logger.Warn().Err(err).Strs("keys", keys).Msg("session storage delete failed")
	}
}

// SaveSession records a successful login or signup.
func (s *Store) SaveSession(token, email string) {
	s.set(KeyAccessToken, token)
	s.set(KeyLoginTime, strconv.FormatInt(s.now().UnixMilli(), 10))
	if email != "" {
		s.set(KeyUserEmail, email)
	}
}

// Token returns the bearer token, or "" when signed out.
func (s *Store) Token() string {
	v, _ := s.get(KeyAccessToken)
	return v
}

// IsAuthenticated reports whether a token is present.
func (s *Store) IsAuthenticated() bool {
	_, ok := s.get(KeyAccessToken)
	return ok
}

// LoginTime returns when the current session started.
func (s *Store) LoginTime() (time.Time, bool) {
	v, ok := s.get(KeyLoginTime)
	if !ok {
		return time.Time{}, false
	}
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.UnixMilli(ms), true
}

// IsExpired reports whether the login is older than the session timeout.
// A token without a login timestamp is treated as a fresh login.
func (s *Store) IsExpired() bool {
	if !s.IsAuthenticated() {
		return false
	}

	loginTime, ok := s.LoginTime()
	if !ok {
		s.set(KeyLoginTime, strconv.FormatInt(s.now().UnixMilli(), 10))
		return false
	}
	return s.now().Sub(loginTime) > s.timeout
}

// ExpiresAt returns when the current login stops being valid.
func (s *Store) ExpiresAt() (time.Time, bool) {
	loginTime, ok := s.LoginTime()
	if !ok {
		return time.Time{}, false
	}
	return loginTime.Add(s.timeout), true
}

// ActiveThreadID returns the conversation currently displayed.
func (s *Store) ActiveThreadID() (string, bool) {
	return s.get(KeyThreadID)
}

// SetActiveThreadID makes threadID the active conversation.
func (s *Store) SetActiveThreadID(threadID string) {
	if threadID == "" {
		s.del(KeyThreadID)
		return
	}
	s.set(KeyThreadID, threadID)
}

// EnsureThreadID returns the active thread id, minting one if none is stored.
func (s *Store) EnsureThreadID() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.get(KeyThreadID); ok {
		return id
	}
	id := NewThreadID(s.now())
	s.set(KeyThreadID, id)
	return id
}

// NewThread mints and persists a fresh thread id.
func (s *Store) NewThread() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := NewThreadID(s.now())
	s.set(KeyThreadID, id)
	return id
}

// Profile returns the cached user profile.
func (s *Store) Profile() (*Profile, bool) {
	v, ok := s.get(KeyUserData)
	if !ok {
		return nil, false
	}
	var p Profile
	if err := json.Unmarshal([]byte(v), &p); err != nil {
		s.logger.Warn().Err(err).Msg("cached profile is not valid JSON")
		return nil, false
	}
	return &p, true
}

// SetProfile replaces the cached profile.
func (s *Store) SetProfile(p Profile) {
	data, err := json.Marshal(p)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to marshal profile")
		return
	}
	s.set(KeyUserData, string(data))
}

// ReplaceProfile caches fields as the whole profile.
func (s *Store) ReplaceProfile(fields map[string]any) Profile {
	return s.storeProfile(fields, false)
}

// MergeProfile overlays fields onto the cached profile and returns the result.
// Unknown fields are kept in storage so nothing the server sent is lost.
func (s *Store) MergeProfile(fields map[string]any) Profile {
	return s.storeProfile(fields, true)
}

func (s *Store) storeProfile(fields map[string]any, merge bool) Profile {
	s.mu.Lock()
	defer s.mu.Unlock()

	merged := map[string]any{}
	if v, ok := s.get(KeyUserData); ok && merge {
		if err := json.Unmarshal([]byte(v), &merged); err != nil {
			merged = map[string]any{}
		}
	}
	for k, v := range fields {
		merged[k] = v
	}

	data, err := json.Marshal(merged)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to marshal merged profile")
		return Profile{}
	}
	s.set(KeyUserData, string(data))

	var p Profile
	_ = json.Unmarshal(data, &p)
	return p
}

// CachedEmail returns the email remembered at login.
func (s *Store) CachedEmail() string {
	v, _ := s.get(KeyUserEmail)
	return v
}

// UserKey resolves the identity sent with chat requests: the cached profile
// email, falling back to the email remembered at login.
func (s *Store) UserKey() (string, bool) {
	if p, ok := s.Profile(); ok && p.Email != "" {
		return p.Email, true
	}
	if email := s.CachedEmail(); email != "" {
		return email, true
	}
	return "", false
}

// RememberMe reports the sign-in "remember me" choice.
func (s *Store) RememberMe() bool {
	v, _ := s.get(KeyRememberMe)
	return v == "true"
}

// SetRememberMe stores the sign-in "remember me" choice.
func (s *Store) SetRememberMe(remember bool) {
	if remember {
		s.set(KeyRememberMe, "true")
		return
	}
	s.del(KeyRememberMe)
}

// Preferences returns the stored settings, or the defaults.
func (s *Store) Preferences() Preferences {
	prefs := DefaultPreferences()
	v, ok := s.get(KeyPreferences)
	if !ok {
		return prefs
	}
	if err := json.Unmarshal([]byte(v), &prefs); err != nil {
		s.logger.Warn().Err(err).Msg("stored preferences are not valid JSON")
		return DefaultPreferences()
	}
	if !prefs.Theme.Valid() {
		prefs.Theme = ThemeSystem
	}
	return prefs
}

// SetPreferences stores the settings.
func (s *Store) SetPreferences(p Preferences) {
	data, err := json.Marshal(p)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to marshal preferences")
		return
	}
	s.set(KeyPreferences, string(data))
}

// Clear signs the user out. Preferences and remember-me are device settings
// and are kept.
func (s *Store) Clear() {
	s.del(KeyAccessToken, KeyLoginTime, KeyUserData, KeyUserEmail, KeyThreadID)
}
