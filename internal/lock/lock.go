// Package lock guarantees a single ingestion run per archive at a time.
package lock

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// HeldError is returned when another process holds the run lock.
type HeldError struct {
	PID      int
	ImportID string
	Path     string
}

func (e *HeldError) Error() string {
	if e.ImportID != "" {
		return fmt.Sprintf("archive lock held by PID %d for import %s (%s)", e.PID, e.ImportID, e.Path)
	}
	return fmt.Sprintf("archive lock held by PID %d (%s)", e.PID, e.Path)
}

// Lock represents an acquired run lock file.
type Lock struct {
	file *os.File
	path string
}

// Acquire takes an exclusive lock on runDir/LOCK and records the owning
// PID and import id in it. Returns *HeldError if another process already
// holds it.
func Acquire(runDir, importID string) (*Lock, error) {
	lockPath := filepath.Join(runDir, "LOCK")

	if err := os.MkdirAll(runDir, 0700); err != nil {
		return nil, fmt.Errorf("create run dir: %w", err)
	}

	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		data, _ := os.ReadFile(lockPath)
		held := parse(string(data))
		held.Path = lockPath
		_ = f.Close()
		return nil, held
	}

	if err := f.Truncate(0); err != nil {
		_ = f.Close()
		return nil, err
	}
	if _, err := f.Seek(0, 0); err != nil {
		_ = f.Close()
		return nil, err
	}
	content := fmt.Sprintf("pid=%d\nimport=%s\ntime=%s\n",
		os.Getpid(), importID, time.Now().UTC().Format(time.RFC3339))
	if _, err := f.WriteString(content); err != nil {
		_ = f.Close()
		return nil, err
	}

	return &Lock{file: f, path: lockPath}, nil
}

// Path returns the lock file path.
func (l *Lock) Path() string {
	return l.path
}

// Release releases the lock. Safe to call on nil receiver.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	// Remove lock file before closing to avoid stale files.
	_ = os.Remove(l.path)
	err := l.file.Close()
	l.file = nil
	return err
}

func parse(content string) *HeldError {
	held := &HeldError{}
	for _, line := range strings.Split(content, "\n") {
		if after, ok := strings.CutPrefix(line, "pid="); ok {
			held.PID, _ = strconv.Atoi(after)
		}
		if after, ok := strings.CutPrefix(line, "import="); ok {
			held.ImportID = after
		}
	}
	return held
}
