package config

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// Store keeps the live configuration and the file it round-trips through.
// The settings API replaces the whole document; readers always see either
// the old or the new config, never a partial merge.
type Store struct {
	path string

	mu      sync.RWMutex
	current Config
}

// NewStore wraps an already-loaded config with its backing file path.
func NewStore(path string, cfg Config) *Store {
	return &Store{path: path, current: cfg}
}

// Current returns the active configuration snapshot.
func (s *Store) Current() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Raw returns the settings document as stored on disk. When the file does
// not exist yet, the current config is marshalled instead.
func (s *Store) Raw() ([]byte, error) {
	raw, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		raw, mErr := yaml.Marshal(s.Current())
		if mErr != nil {
			return nil, fmt.Errorf("marshal config: %w", mErr)
		}
		return raw, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return raw, nil
}

// Update validates the raw document, persists it, and swaps the live config.
// Invalid input leaves both the file and the running config untouched.
func (s *Store) Update(raw []byte) (Config, error) {
	cfg, err := Parse(raw)
	if err != nil {
		return Config{}, err
	}
	cfg.applyEnvOverrides()

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.WriteFile(s.path, raw, 0o644); err != nil {
		return Config{}, fmt.Errorf("write config: %w", err)
	}
	s.current = cfg
	return cfg, nil
}
