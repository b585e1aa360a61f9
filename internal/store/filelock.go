package store

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

// Lock defaults used when FileLockConfig leaves a field zero.
const (
	DefaultLockTimeout = 5 * time.Second
	DefaultLockRetry   = 50 * time.Millisecond
)

// FileLock holds an exclusive advisory lock on <journal>.lock for the
// duration of a replay-then-append.
type FileLock struct {
	fileLock   *flock.Flock
	lockPath   string
	acquiredAt time.Time
	logger     *slog.Logger
	mu         sync.RWMutex
}

type FileLockConfig struct {
	LockTimeout time.Duration
	LockRetry   time.Duration
	Logger      *slog.Logger
}

func (c *FileLockConfig) withDefaults() FileLockConfig {
	out := FileLockConfig{}
	if c != nil {
		out = *c
	}
	if out.LockTimeout <= 0 {
		out.LockTimeout = DefaultLockTimeout
	}
	if out.LockRetry <= 0 {
		out.LockRetry = DefaultLockRetry
	}
	if out.Logger == nil {
		out.Logger = slog.Default()
	}
	return out
}

// LockPath is the lock file guarding the journal at dbPath.
func LockPath(dbPath string) string {
	return dbPath + ".lock"
}

// AcquireFileLock takes the journal lock for dbPath, retrying until the
// configured timeout or ctx expires.
func AcquireFileLock(ctx context.Context, dbPath string, cfg *FileLockConfig) (*FileLock, error) {
	c := cfg.withDefaults()
	lockPath := LockPath(dbPath)

	fl := &FileLock{
		fileLock: flock.New(lockPath),
		lockPath: lockPath,
		logger:   c.Logger,
	}

	ctx, cancel := context.WithTimeout(ctx, c.LockTimeout)
	defer cancel()

	locked, err := fl.fileLock.TryLockContext(ctx, c.LockRetry)
	if err != nil {
		return nil, fmt.Errorf("journal %s is locked by another process (timeout after %v): %w", dbPath, c.LockTimeout, err)
	}
	if !locked {
		return nil, fmt.Errorf("journal %s is locked by another process", dbPath)
	}

	fl.acquiredAt = time.Now()
	fl.logger.Debug("journal lock acquired", "path", lockPath)
	return fl, nil
}

// Unlock releases the lock. Calling it more than once is harmless.
func (fl *FileLock) Unlock() {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	if fl.fileLock == nil {
		return
	}

	held := time.Since(fl.acquiredAt)
	if err := fl.fileLock.Unlock(); err != nil {
		fl.logger.Error("failed to release journal lock",
			"path", fl.lockPath,
			"error", err,
		)
	} else {
		fl.logger.Debug("journal lock released",
			"path", fl.lockPath,
			"held_duration_ms", held.Milliseconds(),
		)
	}
	fl.fileLock = nil
}

func (fl *FileLock) IsLocked() bool {
	fl.mu.RLock()
	defer fl.mu.RUnlock()
	return fl.fileLock != nil
}
