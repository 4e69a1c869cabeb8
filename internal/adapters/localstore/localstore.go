// Package localstore persists a warm-restart snapshot of the stats model to
// a local JSON file and resolves the remote store access credential.
package localstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/UnderPressurePH7/platoon-widget/internal/domain/model"
	"github.com/UnderPressurePH7/platoon-widget/pkg/metrics"
)

// State is the on-disk snapshot shape. Field names match the remote wire
// vocabulary so a state file is readable next to server payloads.
type State struct {
	BattleStats map[string]*model.Battle `json:"BattleStats"`
	BattleOrder []string                 `json:"battleOrder,omitempty"`
	PlayersInfo map[string]string        `json:"PlayersInfo"`

	CurrentPlayerID string `json:"currentPlayerId"`
	CurrentArenaID  string `json:"currentArenaId"`
	CurrentVehicle  string `json:"currentVehicle"`
	IsInPlatoon     bool   `json:"isInPlatoon"`
	IsInBattle      bool   `json:"isInBattle"`
	LastUpdateTime  int64  `json:"lastUpdateTime"`
}

// Store reads and writes the snapshot file.
type Store struct {
	path      string
	accessKey string
}

// Option applies a configuration option to the Store.
type Option func(*Store)

// WithAccessKey sets the credential returned by AccessKey, taking precedence
// over the key file next to the snapshot.
func WithAccessKey(key string) Option {
	return func(s *Store) {
		s.accessKey = key
	}
}

// New constructs a store over the given snapshot path.
func New(path string, opts ...Option) *Store {
	s := &Store{path: path}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load reads the persisted state. A missing file is not an error: it returns
// (nil, nil) and the caller starts fresh.
func (s *Store) Load(_ context.Context) (*State, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read state: %w", err)
	}
	var st State
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	return &st, nil
}

// Save writes the state atomically (temp file, then rename).
func (s *Store) Save(_ context.Context, st State) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("commit state: %w", err)
	}
	metrics.RecordLocalStateSave()
	return nil
}

// Clear removes the snapshot file.
func (s *Store) Clear(_ context.Context) error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("clear state: %w", err)
	}
	return nil
}

// AccessKey yields the remote store credential: the configured key when set,
// otherwise the contents of an "access.key" file beside the snapshot.
// ErrNoAccessKey when neither exists; without it the engine presents the
// explicit "not connected" state.
func (s *Store) AccessKey(_ context.Context) (string, error) {
	if s.accessKey != "" {
		return s.accessKey, nil
	}
	raw, err := os.ReadFile(filepath.Join(filepath.Dir(s.path), "access.key"))
	if err != nil {
		return "", ErrNoAccessKey
	}
	key := strings.TrimSpace(string(raw))
	if key == "" {
		return "", ErrNoAccessKey
	}
	return key, nil
}
