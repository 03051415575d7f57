package main

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// contentWatcher watches the site export tree and fires a debounced
// callback when anything under it changes. Site exports are small enough
// that the callback clears caches wholesale instead of tracking which file
// changed.
type contentWatcher struct {
	logger   *slog.Logger
	watcher  *fsnotify.Watcher
	debounce time.Duration
	onChange func()
}

func newContentWatcher(logger *slog.Logger, root string, debounce time.Duration, onChange func()) (*contentWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	cw := &contentWatcher{
		logger:   logger,
		watcher:  w,
		debounce: debounce,
		onChange: onChange,
	}
	if err := cw.addRecursive(root); err != nil {
		_ = w.Close()
		return nil, err
	}
	go cw.loop()

	logger.Info("Watching content for changes", "root", root)
	return cw, nil
}

// addRecursive registers every directory under root. fsnotify watches are
// per-directory, not per-tree.
func (cw *contentWatcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return cw.watcher.Add(path)
		}
		return nil
	})
}

func (cw *contentWatcher) loop() {
	var timer *time.Timer
	for {
		select {
		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) &&
				!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			// New directories need their own watch before edits inside
			// them are visible.
			if event.Has(fsnotify.Create) {
				if info, serr := os.Stat(event.Name); serr == nil && info.IsDir() {
					if aerr := cw.watcher.Add(event.Name); aerr != nil {
						cw.logger.Warn("Failed to watch new directory", "dir", event.Name, "error", aerr)
					}
				}
			}
			if timer == nil {
				timer = time.AfterFunc(cw.debounce, cw.fire)
			} else {
				timer.Reset(cw.debounce)
			}
		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			cw.logger.Warn("Content watcher error", "error", err)
		}
	}
}

func (cw *contentWatcher) fire() {
	cw.onChange()
	cw.logger.Info("Content changed, caches cleared")
}

func (cw *contentWatcher) Close() error {
	return cw.watcher.Close()
}
