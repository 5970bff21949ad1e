package cmd

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/codecouncil-ai/codecouncil/internal/logging"
)

const watchDebounce = 500 * time.Millisecond

// watchAndRerun blocks watching root recursively and calls rerun after each
// burst of file changes, until ctx is cancelled. Changes landing while a
// re-run is in flight trigger one more run, never a pile-up.
func watchAndRerun(ctx context.Context, root string, logger *logging.Logger, rerun func(context.Context)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := addWatchTree(watcher, root); err != nil {
		return err
	}

	var (
		debounce <-chan time.Time
		pending  bool
		running  = make(chan struct{}, 1)
	)
	runOnce := func() {
		select {
		case running <- struct{}{}:
		default:
			pending = true
			return
		}
		go func() {
			defer func() { <-running }()
			logger.Info("change detected, re-running review", "at", shortTime(time.Now()))
			rerun(ctx)
		}()
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !relevantChange(event) {
				continue
			}
			// New directories join the watch set so edits inside them count.
			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = addWatchTree(watcher, event.Name)
				}
			}
			debounce = time.After(watchDebounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watcher error", "error", err)

		case <-debounce:
			debounce = nil
			runOnce()
			if pending {
				pending = false
				debounce = time.After(watchDebounce)
			}
		}
	}
}

// addWatchTree registers root and every non-hidden subdirectory.
func addWatchTree(watcher *fsnotify.Watcher, root string) error {
	info, err := os.Stat(root)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return watcher.Add(filepath.Dir(root))
	}
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		name := d.Name()
		if path != root && strings.HasPrefix(name, ".") {
			return filepath.SkipDir
		}
		_ = watcher.Add(path)
		return nil
	})
}

// relevantChange filters events down to content-affecting operations on
// non-hidden paths.
func relevantChange(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return false
	}
	base := filepath.Base(event.Name)
	if strings.HasPrefix(base, ".") || strings.HasSuffix(base, "~") {
		return false
	}
	return true
}
