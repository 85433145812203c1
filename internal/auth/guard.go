// Package auth decides whether the stored session may enter the chat and
// handles sign-in, sign-up and sign-out.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"racing-insights/internal/api"
	"racing-insights/internal/session"
)

// Status is the outcome of a session check.
type Status int

const (
	// StatusSignedOut means there is no usable token.
	StatusSignedOut Status = iota
	// StatusExpired means the login window has passed; the session was cleared.
	StatusExpired
	// StatusAuthenticated means the backend accepted the token.
	StatusAuthenticated
	// StatusOffline means the backend could not be reached; the session is kept.
	StatusOffline
	// StatusUnverified means the backend answered but the profile could not be
	// confirmed; the session is kept.
	StatusUnverified
)

func (s Status) String() string {
	switch s {
	case StatusSignedOut:
		return "signed out"
	case StatusExpired:
		return "session expired"
	case StatusAuthenticated:
		return "authenticated"
	case StatusOffline:
		return "offline"
	case StatusUnverified:
		return "unverified"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// CanChat reports whether the chat may be entered with this status.
func (s Status) CanChat() bool {
	return s == StatusAuthenticated || s == StatusOffline || s == StatusUnverified
}

// Backend is the part of the API client the guard needs.
type Backend interface {
	Login(ctx context.Context, email, password string) (*api.Token, error)
	Signup(ctx context.Context, email, username, password string) (*api.Token, error)
	FetchProfile(ctx context.Context) (*session.Profile, error)
}

// Guard checks and manages the signed-in session.
type Guard struct {
	backend Backend
	session *session.Store
	logger  zerolog.Logger
}

// NewGuard creates a guard over backend and sess.
func NewGuard(backend Backend, sess *session.Store, logger zerolog.Logger) *Guard {
	return &Guard{backend: backend, session: sess, logger: logger}
}

// Check validates the stored session. Only a missing token, an expired
// login or a 401 from the backend sign the user out.
func (g *Guard) Check(ctx context.Context) (Status, error) {
	if !g.session.IsAuthenticated() {
		return StatusSignedOut, nil
	}

	if g.session.IsExpired() {
		g.logger.Info().Msg("session expired, signing out")
		g.session.Clear()
		return StatusExpired, nil
	}

	if _, err := g.backend.FetchProfile(ctx); err != nil {
		switch {
		case errors.Is(err, api.ErrUnauthorized):
			g.logger.Info().Msg("token rejected by backend, signing out")
			g.session.Clear()
			return StatusSignedOut, nil
		case errors.Is(err, api.ErrNetwork):
			g.logger.Warn().Err(err).Msg("backend unreachable, keeping session")
			return StatusOffline, err
		default:
			g.logger.Warn().Err(err).Msg("could not verify session")
			return StatusUnverified, err
		}
	}

	return StatusAuthenticated, nil
}

// SignIn logs in and caches the profile. A profile fetch failure does not
// undo the login.
func (g *Guard) SignIn(ctx context.Context, email, password string, remember bool) error {
	if _, err := g.backend.Login(ctx, email, password); err != nil {
		return err
	}
	g.session.SetRememberMe(remember)
	g.cacheProfile(ctx)
	return nil
}

// SignUp registers an account and signs it in.
func (g *Guard) SignUp(ctx context.Context, email, username, password string) error {
	if _, err := g.backend.Signup(ctx, email, username, password); err != nil {
		return err
	}
	g.cacheProfile(ctx)
	return nil
}

func (g *Guard) cacheProfile(ctx context.Context) {
	if _, err := g.backend.FetchProfile(ctx); err != nil {
		g.logger.Warn().Err(err).Msg("signed in but failed to fetch profile")
	}
}

// Logout clears the session.
func (g *Guard) Logout() {
	g.session.Clear()
	g.logger.Info().Msg("signed out")
}

// Info describes the stored session for display.
type Info struct {
	Email          string
	RememberMe     bool
	LoginTime      time.Time
	ExpiresAt      time.Time
	TokenSubject   string
	TokenExpiresAt time.Time
}

// Describe summarizes the stored session. Token claims are read without
// verification and are left empty when the token is not a JWT.
func (g *Guard) Describe() Info {
	info := Info{RememberMe: g.session.RememberMe()}
	info.Email, _ = g.session.UserKey()
	info.LoginTime, _ = g.session.LoginTime()
	info.ExpiresAt, _ = g.session.ExpiresAt()

	if token := g.session.Token(); token != "" {
		if claims, err := api.TokenClaims(token); err == nil {
			info.TokenSubject = claims.Subject
			info.TokenExpiresAt = claims.ExpiresAt
		} else {
			g.logger.Debug().Err(err).Msg("access token claims unavailable")
		}
	}
	return info
}
