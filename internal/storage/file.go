package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/avendel/supportbot/internal/models"
	"go.uber.org/zap"
)

// FileStorage keeps the store as one JSON document at a fixed path and
// replaces it atomically on every persist.
type FileStorage struct {
	path   string
	logger *zap.Logger
}

func NewFileStorage(path string, logger *zap.Logger) *FileStorage {
	return &FileStorage{path: path, logger: logger}
}

// Load reads the document from disk. A missing or unparseable document is
// treated as "no prior state": a fresh store is created, persisted
// immediately, and returned. Only a failure to write that fresh store is
// an error.
func (s *FileStorage) Load() (*models.Store, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("Failed to read store file, starting fresh",
				zap.Error(err),
				zap.String("path", s.path))
		}
		return s.freshStore()
	}

	var store models.Store
	if err := json.Unmarshal(data, &store); err != nil {
		s.logger.Warn("Store file is corrupt, starting fresh",
			zap.Error(err),
			zap.String("path", s.path))
		return s.freshStore()
	}

	if store.Sessions == nil {
		store.Sessions = make(map[int64]*models.Session)
	}
	return &store, nil
}

func (s *FileStorage) freshStore() (*models.Store, error) {
	store := models.NewStore()
	if err := s.Persist(store); err != nil {
		return nil, fmt.Errorf("failed to initialize store file: %w", err)
	}
	return store, nil
}

// Persist writes the full document to a temporary file in the same
// directory and renames it over the target, so readers never observe a
// partial write.
func (s *FileStorage) Persist(store *models.Store) error {
	data, err := json.MarshalIndent(store, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode store: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create store directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp store file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write store file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to sync store file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close store file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace store file: %w", err)
	}
	return nil
}

func (s *FileStorage) Close() error {
	// Nothing to close for file storage
	return nil
}
