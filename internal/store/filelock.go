package store

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/harunnryd/familiar/internal/config"

	"github.com/gofrs/flock"
)

// FileLock keeps a single familiar process per data directory.
type FileLock struct {
	fileLock   *flock.Flock
	lockPath   string
	acquiredAt time.Time
	mu         sync.RWMutex
}

type FileLockConfig struct {
	LockTimeout time.Duration
	LockRetry   time.Duration
}

func DefaultFileLockConfig() FileLockConfig {
	lockTimeout, _ := config.DurationOrDefault(config.DefaultStoreLockTimeout, config.DefaultStoreLockTimeout)
	lockRetry, _ := config.DurationOrDefault(config.DefaultStoreLockRetry, config.DefaultStoreLockRetry)
	return FileLockConfig{LockTimeout: lockTimeout, LockRetry: lockRetry}
}

func (c FileLockConfig) maxRetry() int {
	if c.LockRetry <= 0 {
		return 1
	}
	n := int(c.LockTimeout / c.LockRetry)
	if n < 1 {
		n = 1
	}
	return n
}

func NewFileLock(dataDir string, cfg FileLockConfig) (*FileLock, error) {
	defaults := DefaultFileLockConfig()
	if cfg.LockTimeout <= 0 {
		cfg.LockTimeout = defaults.LockTimeout
	}
	if cfg.LockRetry <= 0 {
		cfg.LockRetry = defaults.LockRetry
	}

	fl := &FileLock{
		fileLock: flock.New(LockPath(dataDir)),
		lockPath: LockPath(dataDir),
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.LockTimeout)
	defer cancel()
	if err := fl.acquireWithRetry(ctx, cfg); err != nil {
		return nil, err
	}

	fl.acquiredAt = time.Now()
	slog.Debug("File lock acquired", "path", fl.lockPath)
	return fl, nil
}

func (fl *FileLock) acquireWithRetry(ctx context.Context, cfg FileLockConfig) error {
	attempts := cfg.maxRetry()
	for i := 0; i < attempts; i++ {
		select {
		case <-ctx.Done():
			return fmt.Errorf("data directory is locked by another familiar process (%s): %w", fl.lockPath, ctx.Err())
		default:
		}

		locked, err := fl.fileLock.TryLock()
		if err != nil {
			return fmt.Errorf("failed to attempt lock: %w", err)
		}
		if locked {
			return nil
		}
		if i < attempts-1 {
			time.Sleep(cfg.LockRetry)
		}
	}
	return fmt.Errorf("data directory is locked by another familiar process (%s, timeout after %v)",
		fl.lockPath, cfg.LockTimeout)
}

func (fl *FileLock) Unlock() {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	if fl.fileLock == nil {
		return
	}
	if err := fl.fileLock.Unlock(); err != nil {
		slog.Error("Failed to release file lock", "path", fl.lockPath, "error", err)
	} else {
		slog.Debug("File lock released", "path", fl.lockPath, "held_ms", time.Since(fl.acquiredAt).Milliseconds())
	}
	fl.fileLock = nil
}

func (fl *FileLock) IsLocked() bool {
	fl.mu.RLock()
	defer fl.mu.RUnlock()
	return fl.fileLock != nil
}
