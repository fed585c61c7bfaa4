package position

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// State is the single durable record: the latch, per-strategy cooldown
// markers, and every position ever tracked. It is stored as indented JSON so
// an operator can read it directly.
type State struct {
	Emergency   EmergencyState `json:"emergency"`
	LastDCATime *time.Time     `json:"last_dca_time,omitempty"`
	Positions   []*Position    `json:"positions"`
}

// FileStore persists State with a write-to-temp-then-rename so a crash mid
// write can never leave a torn file behind.
type FileStore struct {
	path string
}

func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("state path cannot be empty")
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating state dir failed: %w", err)
		}
	}
	return &FileStore{path: path}, nil
}

// Load reads the full state; ok is false when no file exists yet.
func (s *FileStore) Load() (State, bool, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return State{}, false, nil
	}
	if err != nil {
		return State{}, false, fmt.Errorf("reading state file failed: %w", err)
	}
	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return State{}, false, fmt.Errorf("state file %s is corrupt: %w", s.path, err)
	}
	return st, true, nil
}

// Save atomically replaces the state file.
func (s *FileStore) Save(st State) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding state failed: %w", err)
	}
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".positions-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp state file failed: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing temp state file failed: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("syncing temp state file failed: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp state file failed: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing state file failed: %w", err)
	}
	return nil
}

// Path returns the backing file location.
func (s *FileStore) Path() string {
	return s.path
}
