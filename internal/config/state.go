package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// State is what the CLI remembers between runs.
type State struct {
	// LastThreadID is the thread most recently opened with `dmsync view`.
	LastThreadID string `yaml:"last_thread,omitempty"`
	// LastThreadTitle is the peer name shown for that thread.
	LastThreadTitle string `yaml:"last_thread_title,omitempty"`
	// UpdatedAt is when the state was last modified.
	UpdatedAt time.Time `yaml:"updated_at,omitempty"`
}

// IsEmpty returns true if no thread has been remembered.
func (s *State) IsEmpty() bool {
	return s.LastThreadID == ""
}

// SetThread records the last opened thread.
func (s *State) SetThread(id, title string) {
	s.LastThreadID = id
	s.LastThreadTitle = title
	s.UpdatedAt = time.Now()
}

// String returns a human-readable representation of the state.
func (s *State) String() string {
	if s.IsEmpty() {
		return "(no thread opened yet)"
	}
	if s.LastThreadTitle == "" {
		return "thread:" + s.LastThreadID
	}
	return fmt.Sprintf("thread:%s (%s)", s.LastThreadID, s.LastThreadTitle)
}

// StateStore manages loading and saving State.
type StateStore struct {
	path string
	mu   sync.RWMutex
}

// NewStateStore creates a new state store.
// If path is empty, uses ~/.config/dmsync/state.yaml.
func NewStateStore(path string) *StateStore {
	if path == "" {
		homeDir, _ := os.UserHomeDir()
		path = filepath.Join(homeDir, ".config", "dmsync", "state.yaml")
	}
	return &StateStore{path: path}
}

// Path returns the state file path.
func (s *StateStore) Path() string {
	return s.path
}

// Load reads the state from disk.
// Returns an empty state if the file doesn't exist.
func (s *StateStore) Load() (*State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := &State{}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return st, nil
		}
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}

	if err := yaml.Unmarshal(data, st); err != nil {
		return nil, fmt.Errorf("failed to parse state file: %w", err)
	}

	return st, nil
}

// Save writes the state to disk.
func (s *StateStore) Save(st *State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	data, err := yaml.Marshal(st)
	if err != nil {
		return fmt.Errorf("failed to serialize state: %w", err)
	}

	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}

	return nil
}

// Clear removes the state file.
func (s *StateStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove state file: %w", err)
	}
	return nil
}
