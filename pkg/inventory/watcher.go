// Copyright (C) 2025 HarborML (oss@harborml.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package inventory

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultWatchDebounce is how long the watcher waits for the change burst
// to settle before notifying. A model pull touches many manifest files in
// quick succession.
const DefaultWatchDebounce = 500 * time.Millisecond

// DefaultManifestDir returns the directory where the runner keeps its
// model manifests, honoring the OLLAMA_MODELS override.
func DefaultManifestDir() string {
	if override := os.Getenv("OLLAMA_MODELS"); override != "" {
		return filepath.Join(override, "manifests")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".ollama", "models", "manifests")
}

// StoreWatcher raises a flag when the runner's model store changes behind
// the application's back (a pull or rm from another terminal), so the UI
// can mark its inventory as stale instead of silently showing old data.
//
// # Behavior
//
// Events inside the manifests directory are debounced; after the window
// settles the handler fires once per burst. The watcher is best effort:
// an absent directory or a platform without inotify support disables it
// without error, and the app falls back to manual refresh only.
type StoreWatcher struct {
	dir      string
	debounce time.Duration
	handler  func()
	logger   *slog.Logger

	watcher  *fsnotify.Watcher
	done     chan struct{}
	stopOnce sync.Once

	mu     sync.Mutex
	active bool
}

// NewStoreWatcher creates a watcher over the given manifests directory.
// The handler is called from the watcher goroutine after each settled
// change burst.
func NewStoreWatcher(dir string, debounce time.Duration, handler func(), logger *slog.Logger) *StoreWatcher {
	if debounce <= 0 {
		debounce = DefaultWatchDebounce
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &StoreWatcher{
		dir:      dir,
		debounce: debounce,
		handler:  handler,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// Start begins watching. Missing directory and watcher-creation failures
// are logged and swallowed; staleness detection is an enhancement, never
// a requirement.
func (w *StoreWatcher) Start(ctx context.Context) {
	if w.dir == "" {
		return
	}
	if info, err := os.Stat(w.dir); err != nil || !info.IsDir() {
		w.logger.Debug("manifest directory absent, staleness watch disabled", "dir", w.dir)
		return
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		w.logger.Warn("cannot create store watcher", "error", err)
		return
	}
	w.watcher = watcher

	if err := w.addRecursive(w.dir); err != nil {
		w.logger.Warn("cannot watch manifest directory", "dir", w.dir, "error", err)
		watcher.Close()
		w.watcher = nil
		return
	}

	w.mu.Lock()
	w.active = true
	w.mu.Unlock()

	go w.loop(ctx)
	w.logger.Debug("store watcher started", "dir", w.dir)
}

// Stop tears the watcher down. Safe to call more than once, and safe even
// when Start never got the watcher running.
func (w *StoreWatcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		if w.watcher != nil {
			w.watcher.Close()
		}
		w.mu.Lock()
		w.active = false
		w.mu.Unlock()
	})
}

// Active reports whether the watcher is running.
func (w *StoreWatcher) Active() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.active
}

// addRecursive watches the manifests tree. Manifests are laid out as
// registry/namespace/model/tag, so new models create new directories that
// must be added as they appear.
func (w *StoreWatcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		return w.watcher.Add(path)
	})
}

// loop debounces raw events into single notifications.
func (w *StoreWatcher) loop(ctx context.Context) {
	var timer *time.Timer
	var timerC <-chan time.Time

	defer func() {
		w.mu.Lock()
		w.active = false
		w.mu.Unlock()
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.watcher.Add(event.Name); err != nil {
						w.logger.Debug("cannot watch new manifest dir", "dir", event.Name, "error", err)
					}
				}
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				timer.Reset(w.debounce)
			}
		case <-timerC:
			timer = nil
			timerC = nil
			w.logger.Debug("model store changed externally")
			if w.handler != nil {
				w.handler()
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Debug("store watcher error", "error", err)
		}
	}
}
