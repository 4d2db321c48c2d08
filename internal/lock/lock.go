// Package lock enforces the "at most one Coordinator per profile" rule of
// guard.
package lock

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/gofrs/flock"
)

// ErrLocked is returned by Acquire when another live process already holds
// the profile's lock.
var ErrLocked = fmt.Errorf("profile is locked by another run")

// ProfileLock guards a single profile's lock file. It combines an
// OS-level advisory lock (github.com/gofrs/flock) with a documented
// on-disk format — a single decimal PID line — written purely for operator
// diagnostics: flock(2) semantics already give stale-lock recovery for free,
// since the kernel releases the lock when the holding process dies.
type ProfileLock struct {
	path string
	fl   *flock.Flock
}

// New returns a lock bound to path (typically "<profile>.lock").
func New(path string) *ProfileLock {
	return &ProfileLock{path: path, fl: flock.New(path)}
}

// Acquire takes the lock non-blockingly, writes the current PID into the
// file for diagnostics, and returns ErrLocked if another live process holds
// it.
func (l *ProfileLock) Acquire() error {
	ok, err := l.fl.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock %s: %w", l.path, err)
	}
	if !ok {
		holder, _ := readPID(l.path)
		if holder > 0 {
			return fmt.Errorf("%w (held by pid %d)", ErrLocked, holder)
		}
		return ErrLocked
	}

	if err := os.WriteFile(l.path, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644); err != nil {
		l.fl.Unlock()
		return fmt.Errorf("write pid to lock %s: %w", l.path, err)
	}
	return nil
}

// Release drops the lock. Safe to call even if Acquire failed.
func (l *ProfileLock) Release() error {
	return l.fl.Unlock()
}

// HolderPID reports the PID recorded in the lock file, for diagnostics.
// Returns 0 if unavailable.
func HolderPID(path string) int {
	pid, _ := readPID(path)
	return pid
}

func readPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, err
	}
	return pid, nil
}
