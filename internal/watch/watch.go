// Package watch evicts modules whose resource files change on disk, so the
// next request loads the new body.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounce drops repeated events for the same file.
const debounce = 100 * time.Millisecond

// Evicter forgets modules by resource name.
type Evicter interface {
	Evict(id string) bool
}

// Watcher monitors a resource directory tree.
type Watcher struct {
	watcher *fsnotify.Watcher
	root    string
	target  Evicter
	logger  *slog.Logger

	mu   sync.Mutex
	seen map[string]time.Time
}

// New watches root and every directory below it. Hidden directories are
// skipped.
func New(root string, target Evicter, logger *slog.Logger) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	w := &Watcher{
		watcher: fsWatcher,
		root:    root,
		target:  target,
		logger:  logger,
		seen:    make(map[string]time.Time),
	}
	if err := w.watchDirRecursive(root); err != nil {
		fsWatcher.Close()
		return nil, fmt.Errorf("watch %s: %w", root, err)
	}
	return w, nil
}

func (w *Watcher) watchDirRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil // Skip unreadable entries.
		}
		if !d.IsDir() {
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") && path != root {
			return filepath.SkipDir
		}
		return w.watcher.Add(path)
	})
}

// Run processes file system events until ctx is done, then closes the
// watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			w.handle(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watcher error", "error", err)
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.watchDirRecursive(event.Name); err != nil {
				w.logger.Error("watch new directory", "path", event.Name, "error", err)
			}
			return
		}
	}
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return
	}

	name, ok := w.resourceName(event.Name)
	if !ok {
		return
	}

	w.mu.Lock()
	if time.Since(w.seen[name]) < debounce {
		w.mu.Unlock()
		return
	}
	w.seen[name] = time.Now()
	w.mu.Unlock()

	if w.target.Evict(name) {
		w.logger.Info("resource changed, module evicted", "module", name, "op", event.Op.String())
	}
}

// resourceName maps a file path to the resource name it is served under.
func (w *Watcher) resourceName(path string) (string, bool) {
	rel, err := filepath.Rel(w.root, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", false
	}
	return filepath.ToSlash(rel), true
}
