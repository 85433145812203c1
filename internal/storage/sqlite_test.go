package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "session.db")

	s, err := OpenSQLite(path)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Set(ctx, "user_email", "a@example.com"))
	require.NoError(t, s.Set(ctx, "user_email", "b@example.com"))

	v, ok, err := s.Get(ctx, "user_email")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "b@example.com", v)

	require.NoError(t, s.Delete(ctx, "user_email"))
	_, ok, err = s.Get(ctx, "user_email")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSQLiteStore_Reopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "session.db")

	s, err := OpenSQLite(path)
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, "remember_me", "true"))
	require.NoError(t, s.Close())

	s, err = OpenSQLite(path)
	require.NoError(t, err)
	defer s.Close()

	v, ok, err := s.Get(ctx, "remember_me")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "true", v)
}

func TestSQLiteStore_QueryFailures(t *testing.T) {
	ctx := context.Background()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS kv").WillReturnResult(sqlmock.NewResult(0, 0))
	s, err := NewSQLiteStore(db)
	require.NoError(t, err)

	t.Run("Get", func(t *testing.T) {
		mock.ExpectQuery("SELECT value FROM kv").WithArgs("access_token").WillReturnError(errors.New("disk I/O error"))
		_, _, err := s.Get(ctx, "access_token")
		assert.ErrorContains(t, err, "failed to get key access_token")
	})

	t.Run("Set", func(t *testing.T) {
		mock.ExpectExec("INSERT INTO kv").WithArgs("access_token", "abc").WillReturnError(errors.New("database is locked"))
		err := s.Set(ctx, "access_token", "abc")
		assert.ErrorContains(t, err, "database is locked")
	})

	t.Run("Missing key", func(t *testing.T) {
		mock.ExpectQuery("SELECT value FROM kv").WithArgs("login_time").WillReturnRows(sqlmock.NewRows([]string{"value"}))
		_, ok, err := s.Get(ctx, "login_time")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNewSQLiteStore_SchemaFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE").WillReturnError(errors.New("readonly database"))
	_, err = NewSQLiteStore(db)
	assert.ErrorContains(t, err, "failed to create schema")
}
