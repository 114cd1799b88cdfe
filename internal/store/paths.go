package store

import (
	"path/filepath"
	"strings"

	"github.com/harunnryd/familiar/internal/pathutil"
)

const (
	transcriptsDir = "transcripts"
	vectorsDir     = "vectors"
	sessionIndex   = "sessions.json"
	lockFile       = "familiar.lock"
)

// ResolveDataDir expands the configured data directory, falling back to
// ~/.familiar.
func ResolveDataDir(dataDir string) (string, error) {
	if trimmed := strings.TrimSpace(dataDir); trimmed != "" {
		return pathutil.Expand(trimmed)
	}
	home, err := pathutil.HomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".familiar"), nil
}

// TranscriptPath returns the JSONL transcript for a session.
func TranscriptPath(dataDir, sessionID string) string {
	return filepath.Join(dataDir, transcriptsDir, sessionID+".jsonl")
}

func LockPath(dataDir string) string {
	return filepath.Join(dataDir, lockFile)
}

func sessionIndexPath(dataDir string) string {
	return filepath.Join(dataDir, sessionIndex)
}
