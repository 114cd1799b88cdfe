package desire

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/natefinch/atomic"
)

// Snapshot is the persisted form of the desire state.
type Snapshot struct {
	Levels    map[Drive]float64 `json:"levels"`
	Curiosity string            `json:"curiosity_target,omitempty"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// Store keeps desire levels in a JSON file. An empty path disables
// persistence.
type Store struct {
	path string
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

func (s *Store) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

// Load returns the saved snapshot. A missing or unreadable file yields
// ok=false so callers start from baselines.
func (s *Store) Load() (Snapshot, bool) {
	if s == nil || s.path == "" {
		return Snapshot{}, false
	}
	content, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return Snapshot{}, false
	}
	if err != nil {
		slog.Warn("Failed to read desire state", "path", s.path, "error", err)
		return Snapshot{}, false
	}

	var snap Snapshot
	if err := json.Unmarshal(content, &snap); err != nil || snap.Levels == nil {
		slog.Warn("Desire state is corrupt, using defaults", "path", s.path, "error", err)
		return Snapshot{}, false
	}
	return snap, true
}

func (s *Store) Save(snap Snapshot) error {
	if s == nil || s.path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create desire state dir: %w", err)
	}
	b, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}
	return atomic.WriteFile(s.path, bytes.NewReader(b))
}
