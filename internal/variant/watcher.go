// SPDX-License-Identifier: MIT

// Package variant watches the pattern exchange directory for variation
// files written by the external variation service.
package variant

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"beatloop/internal/log"
	"beatloop/internal/looper"
	"beatloop/internal/pattern"

	"github.com/fsnotify/fsnotify"
)

var logger = log.Component("variant")

const (
	DefaultCooldown = time.Second
	DefaultSettle   = 100 * time.Millisecond
)

// Deliverer queues notifications for the looper. *looper.Runner satisfies it.
type Deliverer interface {
	Deliver(n looper.Notification) bool
}

// Watcher reports track_<N>_variation.txt writes as VariationsReady for
// track N. Repeated events for one file inside Cooldown are folded into the
// first, which is reported once the file has had Settle to finish writing.
type Watcher struct {
	Cooldown time.Duration
	Settle   time.Duration

	dir     string
	deliver Deliverer
	watcher *fsnotify.Watcher
	now     func() time.Time

	mu   sync.Mutex
	last map[string]time.Time
	wg   sync.WaitGroup
}

// New creates dir if needed and starts watching it.
func New(dir string, deliver Deliverer) (*Watcher, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create exchange dir: %w", err)
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}
	logger.Infof("watching %s for variations", dir)
	return &Watcher{
		Cooldown: DefaultCooldown,
		Settle:   DefaultSettle,
		dir:      dir,
		deliver:  deliver,
		watcher:  fw,
		now:      time.Now,
		last:     make(map[string]time.Time),
	}, nil
}

// Run processes filesystem events until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.wg.Wait()
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				w.handle(ctx, event.Name)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warnf("watcher error: %v", err)
		}
	}
}

func (w *Watcher) handle(ctx context.Context, path string) {
	track, ok := pattern.ParseVariationFile(path)
	if !ok {
		return
	}
	name := filepath.Base(path)

	w.mu.Lock()
	now := w.now()
	if last, seen := w.last[name]; seen && now.Sub(last) < w.Cooldown {
		w.mu.Unlock()
		return
	}
	w.last[name] = now
	w.mu.Unlock()

	logger.Debugf("detected %s", name)
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		select {
		case <-time.After(w.Settle):
		case <-ctx.Done():
			return
		}
		if !w.deliver.Deliver(looper.Notification{Kind: looper.VariationsReady, Track: track}) {
			logger.Warnf("variation for track %d dropped", track)
		}
	}()
}

func (w *Watcher) Close() error {
	return w.watcher.Close()
}
