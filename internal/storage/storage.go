// Package storage provides durable key/value persistence for client-side state.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrUnknownBackend is returned by New for an unsupported storage type.
var ErrUnknownBackend = errors.New("unknown storage backend")

// Store is a string key/value store that survives restarts.
type Store interface {
	// Get returns the value for key and whether it was present.
	Get(ctx context.Context, key string) (string, bool, error)
	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key, value string) error
	// Delete removes the given keys. Missing keys are not an error.
	Delete(ctx context.Context, keys ...string) error
	// Close releases the underlying resources.
	Close() error
}

// Backend names accepted by New.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// Config selects and configures a storage backend.
type Config struct {
	Type string

	// File backend
	FilePath string

	// SQLite backend
	SQLitePath string

	// Redis backend
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string
	DialTimeout   time.Duration
}

// New creates the store described by cfg.
func New(cfg Config) (Store, error) {
	switch cfg.Type {
	case "", BackendFile:
		return NewFileStore(cfg.FilePath)
	case BackendSQLite:
		return OpenSQLite(cfg.SQLitePath)
	case BackendRedis:
		return NewRedisStore(cfg)
	case BackendMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Type)
	}
}
