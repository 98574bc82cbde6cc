// Package lockfile implements fillkit.lock — a run lock that prevents two
// fillkit processes from mutating the same snapshot concurrently. The
// pipeline rewrites the snapshot as a whole document, so a second writer
// would silently discard the first one's work.
//
// The lock file is stored alongside the snapshot as fillkit.lock.
package lockfile

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"
)

// LockFileName is the default lock file name.
const LockFileName = "fillkit.lock"

// Lock represents a held run lock.
type Lock struct {
	PID     int       `yaml:"pid"`
	Started time.Time `yaml:"started"`

	path string `yaml:"-"`
}

// Acquire takes the run lock in the given directory. A lock file left by a
// process that is no longer alive is considered stale and replaced; a lock
// held by a live process is an error.
func Acquire(dir string) (*Lock, error) {
	path := filepath.Join(dir, LockFileName)

	if data, err := os.ReadFile(path); err == nil {
		var held Lock
		if yaml.Unmarshal(data, &held) == nil && held.PID > 0 && processAlive(held.PID) {
			return nil, fmt.Errorf("another fillkit run (pid %d, started %s) holds %s",
				held.PID, held.Started.Format(time.RFC3339), path)
		}
		// Stale or unreadable lock: fall through and replace it.
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	l := &Lock{
		PID:     os.Getpid(),
		Started: time.Now().UTC(),
		path:    path,
	}
	data, err := yaml.Marshal(l)
	if err != nil {
		return nil, fmt.Errorf("marshaling lock: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return nil, fmt.Errorf("writing %s: %w", path, err)
	}
	return l, nil
}

// Release removes the lock file. Safe to call once at exit.
func (l *Lock) Release() error {
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing %s: %w", l.path, err)
	}
	return nil
}

// Path returns the lock file path.
func (l *Lock) Path() string {
	return l.path
}

// processAlive reports whether a process with the given pid exists.
func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}
