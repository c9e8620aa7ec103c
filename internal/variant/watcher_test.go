// SPDX-License-Identifier: MIT
package variant

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"beatloop/internal/log"
	"beatloop/internal/looper"
)

func init() {
	log.SetLevel(log.LevelError)
}

type queue struct {
	mu    sync.Mutex
	notes []looper.Notification
}

func (q *queue) Deliver(n looper.Notification) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.notes = append(q.notes, n)
	return true
}

func (q *queue) snapshot() []looper.Notification {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]looper.Notification(nil), q.notes...)
}

func startWatcher(t *testing.T, dir string, q *queue) *Watcher {
	t.Helper()
	w, err := New(dir, q)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	w.Settle = 10 * time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		w.Close()
	})
	return w
}

func waitFor(t *testing.T, q *queue, n int) []looper.Notification {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		notes := q.snapshot()
		if len(notes) >= n {
			return notes
		}
		if time.Now().After(deadline) {
			t.Fatalf("got %d notifications, want %d", len(notes), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestWatcherReportsVariationFiles(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "exchange")
	q := &queue{}
	startWatcher(t, dir, q)

	if err := os.WriteFile(filepath.Join(dir, "track_1_drums.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "track_2_variation.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	waitFor(t, q, 1)
	time.Sleep(50 * time.Millisecond)
	notes := q.snapshot()
	if len(notes) != 1 {
		t.Fatalf("notifications = %+v, want exactly one", notes)
	}
	if notes[0].Kind != looper.VariationsReady || notes[0].Track != 2 {
		t.Errorf("notification = %+v, want variations ready for track 2", notes[0])
	}
}

func TestWatcherCooldown(t *testing.T) {
	dir := t.TempDir()
	q := &queue{}
	w := startWatcher(t, dir, q)

	clock := time.Unix(1000, 0)
	var mu sync.Mutex
	w.mu.Lock()
	w.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return clock
	}
	w.mu.Unlock()

	path := filepath.Join(dir, "track_1_variation.txt")
	for range 3 {
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	waitFor(t, q, 1)
	time.Sleep(50 * time.Millisecond)
	if n := len(q.snapshot()); n != 1 {
		t.Fatalf("writes inside cooldown produced %d notifications, want 1", n)
	}

	mu.Lock()
	clock = clock.Add(2 * time.Second)
	mu.Unlock()
	if err := os.WriteFile(path, []byte("y"), 0o644); err != nil {
		t.Fatal(err)
	}
	waitFor(t, q, 2)
}

func TestNewFailsOnFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "plain")
	if err := os.WriteFile(file, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := New(filepath.Join(file, "sub"), &queue{}); err == nil {
		t.Error("expected error when the exchange dir cannot be created")
	}
}
