package rewrite

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/fulmenhq/sitekeeper/pkg/logger"
)

// WatchOptions configures Watch.
type WatchOptions struct {
	Debounce time.Duration
	// Relevant filters event paths; nil accepts everything.
	Relevant func(path string) bool
	// SkipDir names directories never watched.
	SkipDir func(name string) bool
}

// Watch calls run once per burst of filesystem changes under dir until ctx is
// done. Bursts are collapsed by a debounce timer. Rewrites performed by run
// fire events too; they settle after one extra idempotent pass.
func Watch(ctx context.Context, dir string, opts WatchOptions, run func(context.Context) error) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch init failed: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	if err := addWatchRecursive(watcher, dir, opts.SkipDir); err != nil {
		return fmt.Errorf("watch failed: %w", err)
	}
	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = 300 * time.Millisecond
	}
	logger.Info("Watching for changes", logger.String("dir", dir), logger.String("debounce", debounce.String()))

	// Reset discards any stale expiry (Go 1.23 timer semantics).
	timer := time.NewTimer(debounce)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Has(fsnotify.Create) {
				if isDir, err := statDir(ev.Name); err == nil && isDir {
					if err := addWatchRecursive(watcher, ev.Name, opts.SkipDir); err != nil {
						logger.Warn("Cannot watch new directory", logger.String("dir", ev.Name), logger.Err(err))
					}
				}
			}
			if opts.Relevant != nil && !opts.Relevant(ev.Name) {
				continue
			}
			logger.Trace("Change detected", logger.String("file", ev.Name), logger.String("op", ev.Op.String()))
			timer.Reset(debounce)
		case <-timer.C:
			if err := run(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				logger.Error("Rewrite pass failed", logger.Err(err))
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("Watch error", logger.Err(err))
		}
	}
}

func addWatchRecursive(w *fsnotify.Watcher, root string, skip func(string) bool) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if p != root && skip != nil && skip(d.Name()) {
			return filepath.SkipDir
		}
		return w.Add(p)
	})
}

func statDir(p string) (bool, error) {
	info, err := os.Stat(p)
	if err != nil {
		return false, err
	}
	return info.IsDir(), nil
}
