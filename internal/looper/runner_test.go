// SPDX-License-Identifier: MIT
package looper

import (
	"context"
	"errors"
	"testing"
	"time"

	"beatloop/internal/config"
)

func newTestRunner(t *testing.T, depth int) (*Runner, *Looper) {
	t.Helper()
	cfg := config.Default()
	cfg.Looper.ExchangeDir = ""
	l, err := New(&cfg, Options{})
	if err != nil {
		t.Fatal(err)
	}
	return NewRunner(l, cfg.Audio.FramesPerBuffer, depth), l
}

func TestRunnerProcessesInputAndCommands(t *testing.T) {
	r, _ := newTestRunner(t, 8)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	if err := r.Submit(ctx, Command{Kind: CmdRecord, Track: 1}); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := r.Submit(ctx, Command{Kind: CmdRecord, Track: 1}); !errors.Is(err, ErrBusy) {
		t.Fatalf("second record = %v, want ErrBusy", err)
	}

	// 1000 samples span two pooled buffers of 512, eight buffers in all.
	block := make([]float32, 1000)
	for i := range 4 {
		if !r.Feed(block) {
			t.Fatalf("block %d dropped", i)
		}
	}
	deadline := time.Now().Add(2 * time.Second)
	for {
		s, err := r.Snapshot(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if s.Time == 4000 {
			if s.Tracks[0].State != "recording" {
				t.Fatalf("track 1 state = %s", s.Tracks[0].State)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("virtual time stuck at %d", s.Time)
		}
		time.Sleep(time.Millisecond)
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run returned %v", err)
	}
}

func TestRunnerFeedDropsWhenFull(t *testing.T) {
	r, _ := newTestRunner(t, 2)
	block := make([]float32, 256)
	if !r.Feed(block) || !r.Feed(block) {
		t.Fatal("first two blocks must be accepted")
	}
	if r.Feed(block) {
		t.Fatal("third block must be dropped with nobody reading")
	}
	if r.Dropped() != 1 {
		t.Fatalf("Dropped() = %d", r.Dropped())
	}
}

func TestRunnerFeedDoesNotAllocate(t *testing.T) {
	r, _ := newTestRunner(t, 4)
	block := make([]float32, 512)
	allocs := testing.AllocsPerRun(100, func() {
		if r.Feed(block) {
			r.free <- (<-r.input).samples
		}
	})
	if allocs != 0 {
		t.Errorf("Feed allocated %.1f times per run", allocs)
	}
}

func TestRunnerSubmitHonoursContext(t *testing.T) {
	r, _ := newTestRunner(t, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	// Nobody runs the looper: the command queue accepts, the reply never comes.
	if err := r.Submit(ctx, Command{Kind: CmdReset}); !errors.Is(err, context.Canceled) {
		t.Fatalf("Submit = %v", err)
	}
}

func waitForTime(t *testing.T, ctx context.Context, r *Runner, want int64) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		s, err := r.Snapshot(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if s.Time == want {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("virtual time %d, want %d", s.Time, want)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestRunnerClockCoversDroppedInput(t *testing.T) {
	tests := []struct {
		name     string
		depth    int
		before   []int // block sizes fed with nobody reading
		queued   int64 // samples that made it into the queue
		dropped  uint64
		after    int
		wantTime int64
	}{
		{"nothing dropped", 2, []int{256, 256}, 512, 0, 100, 612},
		{"whole block dropped", 2, []int{256, 256, 256}, 512, 1, 256, 1024},
		{"block split across buffers", 1, []int{1000}, 512, 1, 100, 1100},
		{"consecutive drops add up", 1, []int{300, 200, 50}, 300, 2, 10, 560},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _ := newTestRunner(t, tt.depth)
			for _, n := range tt.before {
				r.Feed(make([]float32, n))
			}
			if r.Dropped() != tt.dropped {
				t.Fatalf("Dropped() = %d, want %d", r.Dropped(), tt.dropped)
			}

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			done := make(chan error, 1)
			go func() { done <- r.Run(ctx) }()

			waitForTime(t, ctx, r, tt.queued)
			if !r.Feed(make([]float32, tt.after)) {
				t.Fatal("block dropped with the runner reading")
			}
			waitForTime(t, ctx, r, tt.wantTime)

			cancel()
			if err := <-done; err != nil {
				t.Fatalf("Run returned %v", err)
			}
		})
	}
}
