package pathutil

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strings"
)

// Expand resolves environment variables and "~/" home shortcuts.
func Expand(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", nil
	}

	expanded := os.ExpandEnv(trimmed)
	if expanded == "~" || strings.HasPrefix(expanded, "~/") {
		home, err := HomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		expanded = filepath.Join(home, strings.TrimPrefix(strings.TrimPrefix(expanded, "~"), "/"))
	}

	return filepath.Clean(expanded), nil
}

// FirstExisting expands each candidate and returns the first regular file
// that exists. ok is false when none do.
func FirstExisting(candidates ...string) (string, bool) {
	for _, c := range candidates {
		p, err := Expand(c)
		if err != nil || p == "" {
			continue
		}
		if info, err := os.Stat(p); err == nil && info.Mode().IsRegular() {
			return p, true
		}
	}
	return "", false
}

// HomeDir resolves the user's home directory, refusing unexpanded values.
func HomeDir() (string, error) {
	if home, err := os.UserHomeDir(); err == nil {
		if usable(home) {
			return strings.TrimSpace(home), nil
		}
	}

	if current, err := user.Current(); err == nil {
		if usable(current.HomeDir) {
			return strings.TrimSpace(current.HomeDir), nil
		}
	}

	envHome := strings.TrimSpace(os.Getenv("HOME"))
	if envHome == "" {
		return "", fmt.Errorf("HOME is not set")
	}
	return "", fmt.Errorf("HOME is not fully resolved: %s", envHome)
}

func usable(dir string) bool {
	trimmed := strings.TrimSpace(dir)
	return trimmed != "" && trimmed != "~" && !strings.HasPrefix(trimmed, "~/")
}
