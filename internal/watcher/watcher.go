// Package watcher observes the local data directory for out-of-band edits.
// The YAML files are plain text, so users touch them with editors and sync
// tools; each settled change is published on the event bus so connected
// clients can refresh.
package watcher

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/taskchain/taskchain/internal/eventbus"
)

// DebounceInterval is the settle time after an fsnotify event before a
// change is published. Atomic writes land as write + rename bursts; the
// delay folds them into one notification.
const DebounceInterval = 200 * time.Millisecond

type Watcher struct {
	baseDir string
	bus     *eventbus.Bus

	mu            sync.Mutex
	debounceTimer *time.Timer
	pending       map[string]bool
}

func New(baseDir string, bus *eventbus.Bus) *Watcher {
	return &Watcher{
		baseDir: baseDir,
		bus:     bus,
		pending: map[string]bool{},
	}
}

// Run watches the data directory and its record subdirectories until the
// context is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	// Watch directories, not files: atomic replace (write temp, rename)
	// changes the inode, and directory watches catch the rename.
	dirs := []string{w.baseDir}
	for _, sub := range []string{"tasks", "dependencies", "contexts", "projects", "recurrences", "users"} {
		dirs = append(dirs, filepath.Join(w.baseDir, sub))
	}
	for _, dir := range dirs {
		if err := fw.Add(dir); err != nil {
			// Subdirectories appear lazily on first write.
			slog.DebugContext(ctx, "watch skipped", slog.String("dir", dir), slog.Any("error", err))
		}
	}
	slog.InfoContext(ctx, "watching data directory", slog.String("dir", w.baseDir))

	for {
		select {
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(ctx, fw, event)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			slog.WarnContext(ctx, "watcher error", slog.Any("error", err))
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (w *Watcher) handleEvent(ctx context.Context, fw *fsnotify.Watcher, event fsnotify.Event) {
	// A record subdirectory created after startup gets watched on sight.
	if event.Op&fsnotify.Create != 0 && filepath.Dir(event.Name) == w.baseDir {
		if err := fw.Add(event.Name); err == nil {
			slog.DebugContext(ctx, "watching new directory", slog.String("dir", event.Name))
		}
	}
	if !relevant(event) {
		return
	}

	rel, err := filepath.Rel(w.baseDir, event.Name)
	if err != nil {
		rel = event.Name
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending[filepath.ToSlash(rel)] = true
	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceTimer = time.AfterFunc(DebounceInterval, func() {
		w.flush(ctx)
	})
}

func (w *Watcher) flush(ctx context.Context) {
	w.mu.Lock()
	paths := make([]string, 0, len(w.pending))
	for p := range w.pending {
		paths = append(paths, p)
	}
	w.pending = map[string]bool{}
	w.mu.Unlock()

	if len(paths) == 0 {
		return
	}
	slog.DebugContext(ctx, "data directory changed", slog.Int("paths", len(paths)))
	w.bus.PublishNew(eventbus.EventStorageChanged, "", map[string]string{
		"paths": strings.Join(paths, ","),
	})
}

// relevant keeps YAML record events and drops temp files from atomic
// writes.
func relevant(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename|fsnotify.Remove) == 0 {
		return false
	}
	name := filepath.Base(event.Name)
	if strings.HasSuffix(name, ".tmp") || strings.HasPrefix(name, ".") {
		return false
	}
	return strings.HasSuffix(name, ".yaml")
}
