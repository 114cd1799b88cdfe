package store

import (
	"sync"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func shortLockConfig(timeout time.Duration) FileLockConfig {
	return FileLockConfig{LockTimeout: timeout, LockRetry: 10 * time.Millisecond}
}

func TestFileLock_AcquireAndUnlock(t *testing.T) {
	dir := t.TempDir()

	lock, err := NewFileLock(dir, FileLockConfig{})
	require.NoError(t, err)
	assert.True(t, lock.IsLocked())

	lock.Unlock()
	assert.False(t, lock.IsLocked())

	// second unlock is a no-op
	lock.Unlock()
	assert.False(t, lock.IsLocked())
}

func TestFileLock_SecondInstanceFails(t *testing.T) {
	dir := t.TempDir()
	cfg := shortLockConfig(120 * time.Millisecond)

	lock1, err := NewFileLock(dir, cfg)
	require.NoError(t, err)
	defer lock1.Unlock()

	start := time.Now()
	lock2, err := NewFileLock(dir, cfg)
	if err == nil {
		lock2.Unlock()
		t.Fatal("expected second lock acquisition to fail")
	}
	assert.Contains(t, err.Error(), "locked by another familiar process")
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
}

func TestFileLock_ReacquireAfterUnlock(t *testing.T) {
	dir := t.TempDir()
	cfg := shortLockConfig(200 * time.Millisecond)

	lock1, err := NewFileLock(dir, cfg)
	require.NoError(t, err)
	lock1.Unlock()

	lock2, err := NewFileLock(dir, cfg)
	require.NoError(t, err)
	lock2.Unlock()
}

func TestFileLock_ExternalFlockSeesHeldLock(t *testing.T) {
	dir := t.TempDir()

	lock, err := NewFileLock(dir, FileLockConfig{})
	require.NoError(t, err)
	defer lock.Unlock()

	other := flock.New(LockPath(dir))
	locked, err := other.TryLock()
	require.NoError(t, err)
	if locked {
		_ = other.Unlock()
	}
	assert.False(t, locked)
}

func TestFileLock_Exclusive(t *testing.T) {
	dir := t.TempDir()
	cfg := shortLockConfig(500 * time.Millisecond)

	var (
		wg            sync.WaitGroup
		mu            sync.Mutex
		acquired      int
		inCritical    int
		maxConcurrent int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lock, err := NewFileLock(dir, cfg)
			if err != nil {
				return
			}
			defer lock.Unlock()

			mu.Lock()
			acquired++
			inCritical++
			if inCritical > maxConcurrent {
				maxConcurrent = inCritical
			}
			mu.Unlock()

			time.Sleep(10 * time.Millisecond)

			mu.Lock()
			inCritical--
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Greater(t, acquired, 0)
	assert.Equal(t, 1, maxConcurrent)
}

func TestFileLockConfig_MaxRetry(t *testing.T) {
	assert.Equal(t, 50, FileLockConfig{LockTimeout: 5 * time.Second, LockRetry: 100 * time.Millisecond}.maxRetry())
	assert.Equal(t, 1, FileLockConfig{LockTimeout: time.Millisecond, LockRetry: time.Second}.maxRetry())
	assert.Equal(t, 1, FileLockConfig{}.maxRetry())
}
