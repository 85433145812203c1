package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileStore keeps all keys in a single JSON document on disk.
type FileStore struct {
	filePath string
	mu       sync.RWMutex
	values   map[string]string
}

// NewFileStore opens (or creates) the JSON document at filePath.
func NewFileStore(filePath string) (*FileStore, error) {
	if filePath == "" {
		return nil, fmt.Errorf("file path cannot be empty")
	}

	s := &FileStore{
		filePath: filePath,
		values:   map[string]string{},
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// load reads the document from disk
func (s *FileStore) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.filePath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create storage directory: %w", err)
	}

	data, err := os.ReadFile(s.filePath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read storage file: %w", err)
	}

	if len(data) == 0 {
		return nil
	}

	if err := json.Unmarshal(data, &s.values); err != nil {
		// Corrupted file - backup and start fresh
		backupPath := s.filePath + ".backup"
		_ = os.Rename(s.filePath, backupPath)
		s.values = map[string]string{}
	}
	if s.values == nil {
		s.values = map[string]string{}
	}

	return nil
}

// Get returns the value stored under key.
func (s *FileStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.values[key]
	return v, ok, nil
}

// Set stores value under key and flushes the document.
func (s *FileStore) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.values[key] = value
	return s.saveUnlocked()
}

// Delete removes keys and flushes the document.
func (s *FileStore) Delete(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := false
	for _, k := range keys {
		if _, ok := s.values[k]; ok {
			delete(s.values, k)
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return s.saveUnlocked()
}

// Close is a no-op; every write is already on disk.
func (s *FileStore) Close() error {
	return nil
}

// saveUnlocked saves without acquiring the lock (must be called with lock held)
func (s *FileStore) saveUnlocked() error {
	data, err := json.MarshalIndent(s.values, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal storage: %w", err)
	}

	// Write to temp file
	tempPath := s.filePath + ".tmp"
	if err := os.WriteFile(tempPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	// Atomic rename
	if err := os.Rename(tempPath, s.filePath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	return nil
}
