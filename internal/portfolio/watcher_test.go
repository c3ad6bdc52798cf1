package portfolio

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v", timeout)
}

func TestWatcher_NotifiesOncePerBurst(t *testing.T) {
	dir := t.TempDir()
	store, err := OpenJSONStore(filepath.Join(dir, "projects.json"))
	if err != nil {
		t.Fatal(err)
	}

	var calls atomic.Int32
	w, err := NewWatcher(store.Path(), 50*time.Millisecond, func() { calls.Add(1) })
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	// Unrelated files in the same directory are ignored.
	if err := os.WriteFile(filepath.Join(dir, "other.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	time.Sleep(150 * time.Millisecond)
	if calls.Load() != 0 {
		t.Fatalf("unrelated file triggered a notification")
	}

	for _, p := range sampleProjects() {
		if err := store.Add(context.Background(), p); err != nil {
			t.Fatal(err)
		}
	}
	waitUntil(t, 2*time.Second, func() bool { return calls.Load() >= 1 })

	time.Sleep(150 * time.Millisecond)
	if got := calls.Load(); got != 1 {
		t.Fatalf("expected one notification for the burst, got %d", got)
	}
}

func TestWatcher_RunReturnsOnCancel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "projects.json")
	if _, err := OpenJSONStore(path); err != nil {
		t.Fatal(err)
	}
	w, err := NewWatcher(path, 0, func() {})
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := w.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestNewWatcher_MissingDir(t *testing.T) {
	if _, err := NewWatcher(filepath.Join(t.TempDir(), "missing", "projects.json"), 0, func() {}); err == nil {
		t.Fatalf("expected error watching a missing directory")
	}
}
