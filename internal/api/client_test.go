package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"racing-insights/internal/session"
	"racing-insights/internal/storage"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *session.Store) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	sess := session.NewStore(storage.NewMemoryStore())
	return NewClient(server.URL, 5*time.Second, sess), sess
}

func writeJSON(t *testing.T, w http.ResponseWriter, status int, body string) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, err := w.Write([]byte(body))
	assert.NoError(t, err)
}

func TestClient_Signup(t *testing.T) {
	var captured SignupRequest
	client, sess := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/signup", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Empty(t, r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		writeJSON(t, w, http.StatusOK, `{"access_token":"tok-1","token_type":"bearer"}`)
	})

	token, err := client.Signup(context.Background(), "rider@example.com", "rider", "password123")

	require.NoError(t, err)
	assert.Equal(t, "tok-1", token.AccessToken)
	assert.Equal(t, SignupRequest{Email: "rider@example.com", Username: "rider", Password: "password123"}, captured)
	assert.Equal(t, "tok-1", sess.Token())
	assert.Equal(t, "rider@example.com", sess.CachedEmail())
	_, ok := sess.LoginTime()
	assert.True(t, ok)
}

func TestClient_Signup_Validation(t *testing.T) {
	var calls atomic.Int32
	client, sess := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	})

	_, err := client.Signup(context.Background(), "not-an-email", "rider", "short")

	assert.ErrorIs(t, err, ErrValidation)
	assert.ErrorContains(t, err, "enter a valid email")
	assert.ErrorContains(t, err, "minimum 8 characters")
	assert.Zero(t, calls.Load())
	assert.False(t, sess.IsAuthenticated())
}

func TestClient_Signup_Conflict(t *testing.T) {
	client, sess := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusBadRequest, `{"detail":"Email already registered"}`)
	})

	_, err := client.Signup(context.Background(), "rider@example.com", "rider", "password123")

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusBadRequest, statusErr.Code)
	assert.Equal(t, "Email already registered", statusErr.Detail)
	assert.False(t, sess.IsAuthenticated())
}

func TestClient_Login(t *testing.T) {
	client, sess := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/login", r.URL.Path)
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		form, err := url.ParseQuery(string(body))
		assert.NoError(t, err)
		assert.Equal(t, "password", form.Get("grant_type"))
		assert.Equal(t, "rider@example.com", form.Get("username"))
		assert.Equal(t, "hunter22", form.Get("password"))
		assert.True(t, form.Has("scope"))
		writeJSON(t, w, http.StatusOK, `{"access_token":"tok-2","token_type":"bearer"}`)
	})

	token, err := client.Login(context.Background(), "rider@example.com", "hunter22")

	require.NoError(t, err)
	assert.Equal(t, "tok-2", token.AccessToken)
	assert.Equal(t, "tok-2", sess.Token())
}

func TestClient_Login_BadCredentials(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusUnauthorized, `{"detail":"Incorrect email or password"}`)
	})

	_, err := client.Login(context.Background(), "rider@example.com", "wrong")

	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.ErrorContains(t, err, "Incorrect email or password")
}

func TestClient_FetchProfile(t *testing.T) {
	client, sess := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/users/me", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		writeJSON(t, w, http.StatusOK, `{"id":3,"username":"rider","email":"rider@example.com","is_active":true,"created_at":"2026-01-02T03:04:05"}`)
	})
	sess.SaveSession("tok", "old@example.com")

	p, err := client.FetchProfile(context.Background())

	require.NoError(t, err)
	assert.EqualValues(t, 3, p.ID)
	assert.Equal(t, "rider", p.Username)
	assert.True(t, p.IsActive)

	cached, ok := sess.Profile()
	require.True(t, ok)
	assert.Equal(t, "rider@example.com", cached.Email)
}

func TestClient_FetchProfile_Unauthorized(t *testing.T) {
	client, sess := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusUnauthorized, `{"detail":"Could not validate credentials"}`)
	})
	sess.SaveSession("expired", "rider@example.com")

	_, err := client.FetchProfile(context.Background())

	assert.ErrorIs(t, err, ErrUnauthorized)
	// Clearing the session is the caller's decision.
	assert.True(t, sess.IsAuthenticated())
}

func TestClient_UpdateProfile(t *testing.T) {
	client, sess := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, map[string]any{"username": "jockey"}, body)
		writeJSON(t, w, http.StatusOK, `{"id":3,"username":"jockey"}`)
	})
	sess.SaveSession("tok", "rider@example.com")
	sess.SetProfile(session.Profile{ID: 3, Username: "rider", Email: "rider@example.com", IsActive: true})

	name := "jockey"
	p, err := client.UpdateProfile(context.Background(), ProfileUpdate{Username: &name})

	require.NoError(t, err)
	assert.Equal(t, "jockey", p.Username)
	assert.Equal(t, "rider@example.com", p.Email)
	assert.True(t, p.IsActive)
}

func TestClient_SendMessage(t *testing.T) {
	var captured ChatRequest
	client, sess := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		writeJSON(t, w, http.StatusOK, `{"response":"Frankel won."}`)
	})
	sess.SaveSession("tok", "rider@example.com")

	reply, err := client.SendMessage(context.Background(), "Who won?", "thread_1_abcdefg")

	require.NoError(t, err)
	assert.Equal(t, "Frankel won.", reply.Response.DisplayText())
	assert.Equal(t, ChatRequest{Query: "Who won?", ThreadID: "thread_1_abcdefg", UserKey: "rider@example.com"}, captured)

	_, ok := sess.ActiveThreadID()
	assert.False(t, ok)
}

func TestClient_SendMessage_KeepsActiveThread(t *testing.T) {
	client, sess := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusOK, `{"response":"late"}`)
	})
	sess.SaveSession("tok", "rider@example.com")
	sess.SetActiveThreadID("thread_2_newerid")

	_, err := client.SendMessage(context.Background(), "old question", "thread_1_abcdefg")
	require.NoError(t, err)

	active, _ := sess.ActiveThreadID()
	assert.Equal(t, "thread_2_newerid", active)
}

func TestClient_SendMessage_MintsThread(t *testing.T) {
	var captured ChatRequest
	client, sess := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		writeJSON(t, w, http.StatusOK, `{"response":{"response":"structured"}}`)
	})
	sess.SaveSession("tok", "rider@example.com")
	sess.SetProfile(session.Profile{Email: "profile@example.com"})

	reply, err := client.SendMessage(context.Background(), "hi", "")

	require.NoError(t, err)
	assert.Equal(t, "structured", reply.Response.DisplayText())
	assert.Regexp(t, `^thread_\d+_[0-9a-z]{7}$`, captured.ThreadID)
	assert.Equal(t, "profile@example.com", captured.UserKey)
}

func TestClient_SendMessage_AuthenticationRequired(t *testing.T) {
	var calls atomic.Int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	})

	_, err := client.SendMessage(context.Background(), "hi", "thread_1_abcdefg")

	assert.ErrorIs(t, err, ErrAuthenticationRequired)
	assert.Zero(t, calls.Load())
}

func TestClient_NetworkFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	baseURL := server.URL
	server.Close()

	sess := session.NewStore(storage.NewMemoryStore())
	sess.SaveSession("tok", "rider@example.com")
	client := NewClient(baseURL, time.Second, sess)

	_, err := client.SendMessage(context.Background(), "hi", "thread_1_abcdefg")

	assert.ErrorIs(t, err, ErrNetwork)
	assert.Error(t, client.HealthCheck(context.Background()))
}

func TestClient_FetchHistory(t *testing.T) {
	t.Run("Wrapped history", func(t *testing.T) {
		client, sess := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/chat/history", r.URL.Path)
			q := r.URL.Query()
			assert.Equal(t, "rider@example.com", q.Get("user_key"))
			assert.Equal(t, "thread_1", q.Get("thread_id"))
			assert.Equal(t, "50", q.Get("limit"))
			writeJSON(t, w, http.StatusOK, `{"history":[
				{"id":11,"thread_id":"thread_1","user_key":"rider@example.com","query":"q1","response":"r1","created_at":"2026-10-17T09:00:00"},
				{"id":"12","thread_id":"thread_1","query":"q2","response":{"text":"r2"},"created_at":"2026-10-17T10:00:00"}
			]}`)
		})
		sess.SaveSession("tok", "rider@example.com")

		records, err := client.FetchHistory(context.Background(), HistoryQuery{ThreadID: "thread_1"})

		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, "11", records[0].ID)
		assert.Equal(t, "r1", records[0].Response.DisplayText())
		assert.Equal(t, "12", records[1].ID)
		assert.Equal(t, "rider@example.com", records[1].UserKey)
		assert.Equal(t, "r2", records[1].Response.DisplayText())
	})

	t.Run("Bare array with missing fields", func(t *testing.T) {
		client, sess := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.False(t, r.URL.Query().Has("thread_id"))
			assert.Equal(t, "5", r.URL.Query().Get("limit"))
			writeJSON(t, w, http.StatusOK, `[{"thread_id":"thread_2"}, 42]`)
		})
		sess.SaveSession("tok", "rider@example.com")

		records, err := client.FetchHistory(context.Background(), HistoryQuery{Limit: 5})

		require.NoError(t, err)
		require.Len(t, records, 1)
		rec := records[0]
		assert.Regexp(t, `^chat-\d+-[0-9a-z]{7}$`, rec.ID)
		assert.Equal(t, MissingQuery, rec.Query)
		assert.Equal(t, MissingResponse, rec.Response.DisplayText())
		_, ok := rec.Time(time.Local)
		assert.True(t, ok)
	})

	t.Run("Unexpected shape degrades to empty", func(t *testing.T) {
		client, sess := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(t, w, http.StatusOK, `{"items":"nope"}`)
		})
		sess.SaveSession("tok", "rider@example.com")

		records, err := client.FetchHistory(context.Background(), HistoryQuery{})

		require.NoError(t, err)
		assert.Empty(t, records)
	})

	t.Run("Explicit user key", func(t *testing.T) {
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "other@example.com", r.URL.Query().Get("user_key"))
			writeJSON(t, w, http.StatusOK, `{"history":[]}`)
		})

		records, err := client.FetchHistory(context.Background(), HistoryQuery{UserKey: "other@example.com"})

		require.NoError(t, err)
		assert.Empty(t, records)
	})

	t.Run("Server error surfaces", func(t *testing.T) {
		client, sess := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(t, w, http.StatusInternalServerError, `oops`)
		})
		sess.SaveSession("tok", "rider@example.com")

		_, err := client.FetchHistory(context.Background(), HistoryQuery{})

		var statusErr *StatusError
		require.ErrorAs(t, err, &statusErr)
		assert.Equal(t, http.StatusInternalServerError, statusErr.Code)
		assert.NotErrorIs(t, err, ErrUnauthorized)
	})
}

func TestClient_FetchHistory_AuthenticationRequired(t *testing.T) {
	var calls atomic.Int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	})

	_, err := client.FetchHistory(context.Background(), HistoryQuery{ThreadID: "thread_1"})

	assert.ErrorIs(t, err, ErrAuthenticationRequired)
	assert.Zero(t, calls.Load(), "no request may be sent without a user key")
}
