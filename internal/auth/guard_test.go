package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"racing-insights/internal/api"
	"racing-insights/internal/session"
	"racing-insights/internal/storage"
)

type mockBackend struct {
	mock.Mock
}

func (m *mockBackend) Login(ctx context.Context, email, password string) (*api.Token, error) {
	args := m.Called(ctx, email, password)
	tok, _ := args.Get(0).(*api.Token)
	return tok, args.Error(1)
}

func (m *mockBackend) Signup(ctx context.Context, email, username, password string) (*api.Token, error) {
	args := m.Called(ctx, email, username, password)
	tok, _ := args.Get(0).(*api.Token)
	return tok, args.Error(1)
}

func (m *mockBackend) FetchProfile(ctx context.Context) (*session.Profile, error) {
	args := m.Called(ctx)
	p, _ := args.Get(0).(*session.Profile)
	return p, args.Error(1)
}

type clock struct{ t time.Time }

func (c *clock) Now() time.Time { return c.t }

func setup(t *testing.T) (*Guard, *mockBackend, *session.Store, *clock) {
	t.Helper()
	c := &clock{t: time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)}
	sess := session.NewStore(storage.NewMemoryStore(), session.WithClock(c.Now))
	backend := &mockBackend{}
	return NewGuard(backend, sess, zerolog.Nop()), backend, sess, c
}

func TestGuard_Check(t *testing.T) {
	t.Run("No token", func(t *testing.T) {
		g, backend, _, _ := setup(t)

		status, err := g.Check(context.Background())
		require.NoError(t, err)
		assert.Equal(t, StatusSignedOut, status)
		assert.False(t, status.CanChat())
		backend.AssertNotCalled(t, "FetchProfile", mock.Anything)
	})

	t.Run("Expired login clears session", func(t *testing.T) {
		g, backend, sess, c := setup(t)
		sess.SaveSession("tok", "rider@example.com")
		sess.SetActiveThreadID("thread_1_abcdefg")
		c.t = c.t.Add(31 * time.Minute)

		status, err := g.Check(context.Background())
		require.NoError(t, err)
		assert.Equal(t, StatusExpired, status)
		assert.False(t, sess.IsAuthenticated())
		_, ok := sess.ActiveThreadID()
		assert.False(t, ok)
		backend.AssertNotCalled(t, "FetchProfile", mock.Anything)
	})

	t.Run("Valid token", func(t *testing.T) {
		g, backend, sess, _ := setup(t)
		sess.SaveSession("tok", "rider@example.com")
		backend.On("FetchProfile", mock.Anything).Return(&session.Profile{Email: "rider@example.com"}, nil).Once()

		status, err := g.Check(context.Background())
		require.NoError(t, err)
		assert.Equal(t, StatusAuthenticated, status)
		assert.True(t, status.CanChat())
	})

	t.Run("Rejected token clears session", func(t *testing.T) {
		g, backend, sess, _ := setup(t)
		sess.SaveSession("tok", "rider@example.com")
		backend.On("FetchProfile", mock.Anything).Return(nil, &api.StatusError{Code: 401}).Once()

		status, err := g.Check(context.Background())
		require.NoError(t, err)
		assert.Equal(t, StatusSignedOut, status)
		assert.False(t, sess.IsAuthenticated())
	})

	t.Run("Network failure keeps session", func(t *testing.T) {
		g, backend, sess, _ := setup(t)
		sess.SaveSession("tok", "rider@example.com")
		backend.On("FetchProfile", mock.Anything).Return(nil, api.ErrNetwork).Once()

		status, err := g.Check(context.Background())
		assert.ErrorIs(t, err, api.ErrNetwork)
		assert.Equal(t, StatusOffline, status)
		assert.True(t, sess.IsAuthenticated())
	})

	t.Run("Other failure is unverified", func(t *testing.T) {
		g, backend, sess, _ := setup(t)
		sess.SaveSession("tok", "rider@example.com")
		backend.On("FetchProfile", mock.Anything).Return(nil, &api.StatusError{Code: 500}).Once()

		status, err := g.Check(context.Background())
		assert.Error(t, err)
		assert.Equal(t, StatusUnverified, status)
		assert.True(t, sess.IsAuthenticated())
	})
}

func TestGuard_SignIn(t *testing.T) {
	t.Run("Success sets remember me", func(t *testing.T) {
		g, backend, sess, _ := setup(t)
		backend.On("Login", mock.Anything, "rider@example.com", "password1").
			Run(func(mock.Arguments) { sess.SaveSession("tok", "rider@example.com") }).
			Return(&api.Token{AccessToken: "tok", TokenType: "bearer"}, nil).Once()
		backend.On("FetchProfile", mock.Anything).Return(nil, api.ErrNetwork).Once()

		require.NoError(t, g.SignIn(context.Background(), "rider@example.com", "password1", true))
		assert.True(t, sess.RememberMe())
		assert.True(t, sess.IsAuthenticated())
		backend.AssertExpectations(t)
	})

	t.Run("Failure", func(t *testing.T) {
		g, backend, sess, _ := setup(t)
		backend.On("Login", mock.Anything, "rider@example.com", "bad").
			Return(nil, errors.New("login failed")).Once()

		assert.Error(t, g.SignIn(context.Background(), "rider@example.com", "bad", true))
		assert.False(t, sess.RememberMe())
		backend.AssertNotCalled(t, "FetchProfile", mock.Anything)
	})
}

func TestGuard_SignUp(t *testing.T) {
	g, backend, _, _ := setup(t)
	backend.On("Signup", mock.Anything, "new@example.com", "newbie", "password1").
		Return(&api.Token{AccessToken: "tok"}, nil).Once()
	backend.On("FetchProfile", mock.Anything).Return(&session.Profile{Email: "new@example.com"}, nil).Once()

	require.NoError(t, g.SignUp(context.Background(), "new@example.com", "newbie", "password1"))
	backend.AssertExpectations(t)
}

func TestGuard_LogoutAndDescribe(t *testing.T) {
	g, _, sess, c := setup(t)

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "rider@example.com",
		ExpiresAt: jwt.NewNumericDate(c.t.Add(time.Hour)),
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	sess.SaveSession(token, "rider@example.com")
	sess.SetRememberMe(true)

	info := g.Describe()
	assert.Equal(t, "rider@example.com", info.Email)
	assert.Equal(t, "rider@example.com", info.TokenSubject)
	assert.True(t, info.RememberMe)
	assert.Equal(t, c.t.Add(time.Hour).Unix(), info.TokenExpiresAt.Unix())
	assert.Equal(t, c.t.Add(session.DefaultTimeout).UnixMilli(), info.ExpiresAt.UnixMilli())

	g.Logout()
	assert.False(t, sess.IsAuthenticated())
	assert.True(t, sess.RememberMe())
	assert.Empty(t, g.Describe().Email)
}
