package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

const (
	pidFilePerm = 0o644
	pidDirPerm  = 0o755
)

// errSyncRunning is returned when another process holds the sync lock.
var errSyncRunning = errors.New("another sync is already running")

// syncLock is the exclusive per-data-directory lock held while a sync
// runs. The lock file carries the holder's PID so "status" can report it.
type syncLock struct {
	path string
	f    *os.File
}

// acquireSyncLock takes a non-blocking flock on path and records the
// current PID in it.
func acquireSyncLock(path string) (*syncLock, error) {
	if path == "" {
		return nil, errors.New("sync lock path is empty: cannot determine data directory")
	}

	if err := os.MkdirAll(filepath.Dir(path), pidDirPerm); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, pidFilePerm)
	if err != nil {
		return nil, fmt.Errorf("opening sync lock: %w", err)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		f.Close()

		holder := ""
		if pid, readErr := readPIDFile(path); readErr == nil {
			holder = fmt.Sprintf(" (pid %d)", pid)
		}

		return nil, fmt.Errorf("%w%s", errSyncRunning, holder)
	}

	lock := &syncLock{path: path, f: f}
	if err := lock.writePID(); err != nil {
		f.Close()
		return nil, err
	}

	return lock, nil
}

func (l *syncLock) writePID() error {
	if err := l.f.Truncate(0); err != nil {
		return fmt.Errorf("truncating sync lock: %w", err)
	}

	if _, err := l.f.WriteAt([]byte(strconv.Itoa(os.Getpid())+"\n"), 0); err != nil {
		return fmt.Errorf("writing sync lock: %w", err)
	}

	return l.f.Sync()
}

// Release removes the lock file and drops the flock.
func (l *syncLock) Release() {
	os.Remove(l.path)
	l.f.Close()
}

// readPIDFile reads the PID recorded at path.
func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("reading PID file: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid PID in %s: %w", path, err)
	}

	return pid, nil
}

// runningSync reports the PID of a live sync process owning path. A lock
// file left behind by a dead process is removed.
func runningSync(path string) (int, bool) {
	pid, err := readPIDFile(path)
	if err != nil {
		return 0, false
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return 0, false
	}

	// Signal 0 probes for existence without delivering anything.
	if err := proc.Signal(syscall.Signal(0)); err != nil {
		os.Remove(path)
		return 0, false
	}

	return pid, true
}
