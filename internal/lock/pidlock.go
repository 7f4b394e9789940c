// Package lock keeps a single commitgate process attached to a ledger
// database.
package lock

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"
)

// InstanceLock is an flock(2)-held PID file next to the ledger database.
// The lock lives as long as the file descriptor stays open.
type InstanceLock struct {
	path string
	f    *os.File
}

// PathFor returns the lock file used for a ledger database path:
// ./data/ledger.db locks ./data/ledger.pid.
func PathFor(ledgerPath string) string {
	dir := filepath.Dir(ledgerPath)
	base := strings.TrimSuffix(filepath.Base(ledgerPath), filepath.Ext(ledgerPath))
	if base == "" || ledgerPath == ":memory:" {
		base = "commitgate"
	}
	return filepath.Join(dir, base+".pid")
}

// Acquire takes the lock at path without blocking and writes the current
// PID into it. A second process pointed at the same ledger gets an error.
func Acquire(path string) (*InstanceLock, error) {
	if path == "" {
		return nil, fmt.Errorf("lock path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("ledger %s is held by another process: %w", path, err)
	}

	if err := writePID(f); err != nil {
		_ = syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
		_ = f.Close()
		return nil, err
	}

	return &InstanceLock{path: path, f: f}, nil
}

func writePID(f *os.File) error {
	if err := f.Truncate(0); err != nil {
		return fmt.Errorf("truncate lock file: %w", err)
	}
	if _, err := f.Seek(0, 0); err != nil {
		return fmt.Errorf("seek lock file: %w", err)
	}
	if _, err := fmt.Fprintf(f, "%d\n", os.Getpid()); err != nil {
		return fmt.Errorf("write pid: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("sync lock file: %w", err)
	}
	return nil
}

func (l *InstanceLock) Path() string { return l.path }

// Release drops the lock. Safe to call more than once.
func (l *InstanceLock) Release() error {
	if l == nil || l.f == nil {
		return nil
	}
	_ = syscall.Flock(int(l.f.Fd()), syscall.LOCK_UN)
	err := l.f.Close()
	l.f = nil
	return err
}
