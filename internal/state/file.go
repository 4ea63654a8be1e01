// Package state persists per-volume journal cursors across process
// restarts. Persistence is opt-in: the file store writes a small JSON
// document after each successful cycle, and the memory store keeps
// cursors in-process only ("tail from now" on every start).
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"usnwatch/internal/collector"
)

// stateFile is the on-disk JSON document.
type stateFile struct {
	LastUsnPositions map[string]int64 `json:"last_usn_positions"`
	Timestamp        string           `json:"timestamp"`
	ProviderID       string           `json:"provider_id"`
}

// FileStore persists cursors in a JSON file.
type FileStore struct {
	path       string
	providerID string
	logger     collector.Logger
}

// NewFileStore creates a FileStore writing to path. The parent directory
// is created on first save.
func NewFileStore(path, providerID string, logger collector.Logger) *FileStore {
	return &FileStore{path: path, providerID: providerID, logger: logger}
}

// Load reads the persisted cursor map. A missing or corrupt file is a
// cold start, not a failure: it returns an empty map (with a warning for
// the corrupt case).
func (s *FileStore) Load() (map[string]int64, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return make(map[string]int64), nil
		}
		s.logger.Warn("state file unreadable, starting cold", "path", s.path, "error", err)
		return make(map[string]int64), nil
	}

	var sf stateFile
	if err := json.Unmarshal(data, &sf); err != nil {
		s.logger.Warn("state file corrupt, starting cold", "path", s.path, "error", err)
		return make(map[string]int64), nil
	}

	if sf.LastUsnPositions == nil {
		sf.LastUsnPositions = make(map[string]int64)
	}
	return sf.LastUsnPositions, nil
}

// Save writes the cursor map atomically: write to a temp file in the same
// directory, flush, then rename over the target.
func (s *FileStore) Save(positions map[string]int64, at time.Time) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}

	sf := stateFile{
		LastUsnPositions: positions,
		Timestamp:        at.UTC().Format(time.RFC3339),
		ProviderID:       s.providerID,
	}
	data, err := json.MarshalIndent(&sf, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding state: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".state-*.json")
	if err != nil {
		return fmt.Errorf("creating temp state file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing state: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("flushing state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp state file: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replacing state file: %w", err)
	}
	return nil
}

// Reset deletes the state file and recreates it empty, so an operator can
// tell at a glance that a reset happened rather than the file never
// having existed.
func (s *FileStore) Reset() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing state file: %w", err)
	}
	return s.Save(make(map[string]int64), time.Now())
}
