package lockfile

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func TestAcquireAndRelease(t *testing.T) {
	dir := t.TempDir()

	l, err := Acquire(dir)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if l.PID != os.Getpid() {
		t.Errorf("PID = %d, want %d", l.PID, os.Getpid())
	}
	if _, err := os.Stat(l.Path()); err != nil {
		t.Fatalf("lock file not written: %v", err)
	}

	if err := l.Release(); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if _, err := os.Stat(l.Path()); !os.IsNotExist(err) {
		t.Error("lock file still present after Release")
	}
}

func TestAcquireRejectsLiveHolder(t *testing.T) {
	dir := t.TempDir()

	// The current process is definitely alive.
	if _, err := Acquire(dir); err != nil {
		t.Fatalf("first Acquire failed: %v", err)
	}
	if _, err := Acquire(dir); err == nil {
		t.Fatal("second Acquire should fail while the holder lives")
	}
}

func TestAcquireReplacesStaleLock(t *testing.T) {
	dir := t.TempDir()

	// Use a pid that cannot belong to a live process.
	stale := Lock{PID: 1 << 30, Started: time.Now().Add(-time.Hour)}
	data, err := yaml.Marshal(&stale)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, LockFileName), data, 0o644); err != nil {
		t.Fatal(err)
	}

	l, err := Acquire(dir)
	if err != nil {
		t.Fatalf("Acquire over stale lock failed: %v", err)
	}
	if l.PID != os.Getpid() {
		t.Errorf("PID = %d, want %d", l.PID, os.Getpid())
	}
}

func TestAcquireReplacesGarbageLock(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, LockFileName), []byte(":::"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Acquire(dir); err != nil {
		t.Fatalf("Acquire over unreadable lock failed: %v", err)
	}
}

func TestReleaseTwice(t *testing.T) {
	l, err := Acquire(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if err := l.Release(); err != nil {
		t.Fatal(err)
	}
	if err := l.Release(); err != nil {
		t.Errorf("second Release should be a no-op, got %v", err)
	}
}
