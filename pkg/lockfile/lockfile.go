// Package lockfile serializes access to a snapshot repository across processes
// and hosts sharing the same storage.
//
// The lock is a JSON file created with O_EXCL. The owner refreshes its
// timestamp on a heartbeat; a lock whose heartbeat is older than the stale
// timeout, or whose content is unreadable, may be taken over. Takeover writes
// a new file through an atomic rename and reads it back to check a random
// nonce, so only one contender wins.
package lockfile

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/paulschiretz/pgl-retention/pkg/plog"
	"github.com/paulschiretz/pgl-retention/pkg/util"
)

// LockFileName is the name of the lock file in the repository base.
const LockFileName = ".~pgl-retention.lock"

// LockContent is the JSON document stored in the lock file.
type LockContent struct {
	PID        int64     `json:"pid"`
	Hostname   string    `json:"hostname"`
	LastUpdate time.Time `json:"lastUpdate"`
	Nonce      string    `json:"nonce,omitempty"`
	AppID      string    `json:"appID"`
}

// ErrLockActive reports a lock held by a live owner.
type ErrLockActive struct {
	PID       int64
	Hostname  string
	AppID     string
	TimeSince time.Duration
}

func (e *ErrLockActive) Error() string {
	return fmt.Sprintf("lock is active, held by PID %d on host '%s' (App: %s), last updated %s ago", e.PID, e.Hostname, e.AppID, e.TimeSince.Truncate(time.Second))
}

// ErrLostRace is returned when another process won a stale lock takeover.
var ErrLostRace = errors.New("lost race during stale lock takeover")

// ErrCorruptLockFile indicates an empty or unparsable lock file.
var ErrCorruptLockFile = errors.New("lock file is corrupt or empty")

// Lock is an acquired repository lock.
type Lock struct {
	path    string
	content LockContent

	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.Mutex
	held   bool
}

// Tunables, overridden in tests.
var (
	heartbeatInterval = 1 * time.Minute
	staleTimeout      = 3 * heartbeatInterval

	retryInitialInterval        = 100 * time.Millisecond
	retryMaxInterval            = 1 * time.Second
	maxRetries           uint64 = 4
)

func newRetryBackOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = retryInitialInterval
	b.MaxInterval = retryMaxInterval
	b.MaxElapsedTime = 0
	b.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(b, maxRetries), ctx)
}

// Acquire takes the lock in dirPath on behalf of appID.
//
// An active lock is reported immediately as *ErrLockActive. Transient
// failures, such as a lost takeover race or a lock file being rewritten, are
// retried with exponential back-off until ctx ends or the retries run out.
// The heartbeat runs until Release and is independent of ctx.
func Acquire(ctx context.Context, dirPath string, appID string) (*Lock, error) {
	absLockFilePath := filepath.Join(dirPath, LockFileName)

	var acquired *Lock
	attempt := func() error {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		lock, err := acquireOnce(absLockFilePath, appID)
		if err != nil {
			return err
		}
		acquired = lock
		return nil
	}

	if err := backoff.Retry(attempt, newRetryBackOff(ctx)); err != nil {
		var active *ErrLockActive
		if errors.As(err, &active) || ctx.Err() != nil {
			return nil, err
		}
		return nil, fmt.Errorf("failed to acquire lock %s: %w", absLockFilePath, err)
	}

	cleanupTempLockFiles(absLockFilePath)
	go acquired.heartbeat()
	return acquired, nil
}

// acquireOnce makes one acquisition attempt. Errors wrapped with
// backoff.Permanent end the retry loop.
func acquireOnce(absLockFilePath, appID string) (*Lock, error) {
	lock, err := tryCreate(absLockFilePath, appID)
	if err == nil {
		return lock, nil
	}
	if !os.IsExist(err) {
		return nil, backoff.Permanent(fmt.Errorf("failed to access lock file: %w", err))
	}

	content, readErr := readLockContentSafely(absLockFilePath)
	switch {
	case errors.Is(readErr, ErrCorruptLockFile):
		plog.Warn("Found corrupt lock file, treating as stale", "path", absLockFilePath, "error", readErr)
	case os.IsNotExist(readErr):
		// Released between our create and read.
		return nil, readErr
	case readErr != nil:
		return nil, readErr
	default:
		elapsed := time.Since(content.LastUpdate)
		if elapsed < staleTimeout {
			return nil, backoff.Permanent(&ErrLockActive{
				PID:       content.PID,
				Hostname:  content.Hostname,
				AppID:     content.AppID,
				TimeSince: elapsed,
			})
		}
		plog.Warn("Found stale lock, attempting takeover", "pid", content.PID, "host", content.Hostname, "age", elapsed.Truncate(time.Second))
	}

	lock, err = takeOver(absLockFilePath, appID)
	if errors.Is(err, ErrLostRace) {
		plog.Debug("Lock takeover race lost, retrying acquisition")
	}
	return lock, err
}

func newContent(appID string) (LockContent, error) {
	nonce, err := generateNonce()
	if err != nil {
		return LockContent{}, err
	}
	hostname, err := os.Hostname()
	if err != nil {
		return LockContent{}, fmt.Errorf("failed to read hostname: %w", err)
	}
	return LockContent{
		PID:        int64(os.Getpid()),
		Hostname:   hostname,
		LastUpdate: time.Now().UTC(),
		Nonce:      nonce,
		AppID:      appID,
	}, nil
}

// tryCreate creates the lock file exclusively.
func tryCreate(absLockFilePath, appID string) (*Lock, error) {
	f, err := os.OpenFile(absLockFilePath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, util.UserWritableFilePerms)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	content, err := newContent(appID)
	if err == nil {
		err = writeLockContent(f, content)
	}
	if err != nil {
		f.Close()
		os.Remove(absLockFilePath)
		return nil, backoff.Permanent(err)
	}
	return newLock(absLockFilePath, content), nil
}

// takeOver replaces a stale or corrupt lock and verifies ownership by nonce.
func takeOver(absLockFilePath, appID string) (*Lock, error) {
	content, err := newContent(appID)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	if err := updateLockFileAtomic(absLockFilePath, content); err != nil {
		return nil, err
	}

	readback, err := readLockContentSafely(absLockFilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read back lock file after takeover: %w", err)
	}
	if readback.PID != content.PID || readback.Nonce != content.Nonce {
		return nil, ErrLostRace
	}
	plog.Debug("Took over stale lock", "path", absLockFilePath)
	return newLock(absLockFilePath, content), nil
}

func newLock(absLockFilePath string, content LockContent) *Lock {
	ctx, cancel := context.WithCancel(context.Background())
	return &Lock{
		path:    absLockFilePath,
		content: content,
		ctx:     ctx,
		cancel:  cancel,
		held:    true,
	}
}

// Path returns the lock file path.
func (l *Lock) Path() string {
	return l.path
}

// Release stops the heartbeat and removes the lock file. It is safe to call more than once.
func (l *Lock) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.held {
		return
	}
	l.cancel()
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		plog.Warn("Failed to remove lock file", "path", l.path, "error", err)
	} else {
		plog.Debug("Lock released", "path", l.path)
	}
	l.held = false
}

func (l *Lock) heartbeat() {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.ctx.Done():
			return
		case <-ticker.C:
			l.mu.Lock()
			if !l.held {
				l.mu.Unlock()
				return
			}
			l.content.LastUpdate = time.Now().UTC()
			err := updateLockFileAtomic(l.path, l.content)
			l.mu.Unlock()
			if err != nil {
				// Keep beating; the next tick may succeed.
				plog.Warn("Heartbeat failed to update lock file", "error", err)
			}
		}
	}
}

// updateLockFileAtomic writes content to a sibling temp file and renames it
// over the lock, so readers never observe a partial file.
func updateLockFileAtomic(absLockFilePath string, content LockContent) error {
	dir := filepath.Dir(absLockFilePath)
	tmpF, err := os.CreateTemp(dir, filepath.Base(absLockFilePath)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp lock file: %w", err)
	}
	defer func() {
		if err := os.Remove(tmpF.Name()); err != nil && !os.IsNotExist(err) {
			plog.Warn("Failed to remove temporary lock file", "path", tmpF.Name(), "error", err)
		}
	}()

	if err := writeLockContent(tmpF, content); err != nil {
		tmpF.Close()
		return err
	}
	if err := tmpF.Sync(); err != nil {
		tmpF.Close()
		return err
	}
	// Windows refuses to rename open files.
	if err := tmpF.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpF.Name(), absLockFilePath); err != nil {
		return fmt.Errorf("failed to rename temp file to lock file: %w", err)
	}
	return nil
}

// cleanupTempLockFiles removes temp files left by crashed heartbeats. Files
// younger than the stale timeout may belong to a live writer and are kept.
func cleanupTempLockFiles(absLockFilePath string) {
	pattern := filepath.Join(filepath.Dir(absLockFilePath), filepath.Base(absLockFilePath)+".*.tmp")
	matches, err := filepath.Glob(pattern)
	if err != nil {
		plog.Warn("Failed to glob for temporary lock files", "pattern", pattern, "error", err)
		return
	}

	threshold := time.Now().Add(-staleTimeout)
	for _, match := range matches {
		info, err := os.Stat(match)
		if err != nil || !info.ModTime().Before(threshold) {
			continue
		}
		plog.Debug("Removing old temporary lock file", "path", match)
		if err := os.Remove(match); err != nil && !os.IsNotExist(err) {
			plog.Warn("Failed to remove leftover temporary lock file", "path", match, "error", err)
		}
	}
}

func generateNonce() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func writeLockContent(w io.Writer, content LockContent) error {
	data, err := json.MarshalIndent(content, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal lock content: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write lock content: %w", err)
	}
	return nil
}

// readLockContentSafely reads the lock, retrying briefly over empty or partial
// content. Persistent garbage is reported as ErrCorruptLockFile.
func readLockContentSafely(absLockFilePath string) (LockContent, error) {
	var lastErr, corruptErr error
	for range 3 {
		data, err := os.ReadFile(absLockFilePath)
		if err != nil {
			if os.IsNotExist(err) {
				return LockContent{}, err
			}
			lastErr = err
			time.Sleep(50 * time.Millisecond)
			continue
		}
		if len(data) == 0 {
			corruptErr = errors.New("lock file is empty")
			time.Sleep(50 * time.Millisecond)
			continue
		}
		var content LockContent
		if corruptErr = json.Unmarshal(data, &content); corruptErr != nil {
			time.Sleep(50 * time.Millisecond)
			continue
		}
		return content, nil
	}

	if corruptErr != nil {
		return LockContent{}, fmt.Errorf("%w: %v", ErrCorruptLockFile, corruptErr)
	}
	return LockContent{}, fmt.Errorf("failed to read valid lock content: %w", lastErr)
}
