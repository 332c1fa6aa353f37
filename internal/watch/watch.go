// Package watch invalidates the lexical index when the document source
// changes on disk. It watches a directory tree with fsnotify, debounces
// event bursts, and forwards one invalidation per quiet window. The watcher
// is an optional collaborator: searching works without it, at the cost of
// serving a stale index until the staleness threshold expires.
package watch

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the quiet window before a change burst is forwarded.
const DefaultDebounce = 200 * time.Millisecond

// Invalidator receives change notifications. The search engine satisfies it.
type Invalidator interface {
	InvalidateIndex(reason string)
}

// Options configures the watcher.
type Options struct {
	// Debounce is the quiet window before coalesced changes are forwarded.
	Debounce time.Duration

	// Extensions limits which files count as source changes, matched
	// case-insensitively against the file extension (".db", ".json").
	// Empty means every file counts.
	Extensions []string
}

// SourceWatcher watches a directory tree and invalidates the index when
// source files change.
type SourceWatcher struct {
	target Invalidator
	opts   Options
	acc    *accumulator

	mu      sync.Mutex
	fw      *fsnotify.Watcher
	started bool
	stopped bool
	done    chan struct{}
}

// NewSourceWatcher creates a watcher forwarding invalidations to target.
func NewSourceWatcher(target Invalidator, opts Options) (*SourceWatcher, error) {
	if target == nil {
		return nil, fmt.Errorf("invalidation target is required")
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	w := &SourceWatcher{
		target: target,
		opts:   opts,
		done:   make(chan struct{}),
	}
	w.acc = newAccumulator(opts.Debounce, w.emit)
	return w, nil
}

// Start begins watching dir and its subdirectories. It returns once the
// watch is established; events are processed in a background goroutine until
// Stop is called or ctx is cancelled.
func (w *SourceWatcher) Start(ctx context.Context, dir string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return fmt.Errorf("watcher already stopped")
	}
	if w.started {
		return fmt.Errorf("watcher already started")
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fs watcher: %w", err)
	}
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return fw.Add(path)
		}
		return nil
	})
	if err != nil {
		_ = fw.Close()
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	w.fw = fw
	w.started = true
	go w.loop(ctx)

	slog.Info("source_watch_started",
		slog.String("dir", dir),
		slog.Duration("debounce", w.opts.Debounce))
	return nil
}

func (w *SourceWatcher) loop(ctx context.Context) {
	defer close(w.done)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fw.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			slog.Warn("source_watch_error", slog.String("error", err.Error()))
		}
	}
}

func (w *SourceWatcher) handle(ev fsnotify.Event) {
	if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}
	// New subdirectories join the watch; their contents count as changes
	// only once files land in them.
	if ev.Op&fsnotify.Create != 0 {
		if fi, err := os.Stat(ev.Name); err == nil && fi.IsDir() {
			_ = w.fw.Add(ev.Name)
			return
		}
	}
	if !w.relevant(ev.Name) {
		return
	}
	w.acc.Add(ev.Name)
}

// sidecarSuffixes are SQLite journaling companions. In WAL mode commits
// land in the -wal file and the database file itself stays untouched until
// a checkpoint, so a change to a sidecar counts as a change to its database.
var sidecarSuffixes = []string{"-wal", "-shm", "-journal"}

func (w *SourceWatcher) relevant(path string) bool {
	if len(w.opts.Extensions) == 0 {
		return true
	}
	for _, suffix := range sidecarSuffixes {
		if strings.HasSuffix(path, suffix) {
			path = strings.TrimSuffix(path, suffix)
			break
		}
	}
	ext := strings.ToLower(filepath.Ext(path))
	for _, allowed := range w.opts.Extensions {
		if ext == strings.ToLower(allowed) {
			return true
		}
	}
	return false
}

func (w *SourceWatcher) emit(paths []string) {
	reason := "source change: " + paths[0]
	if len(paths) > 1 {
		reason = fmt.Sprintf("source change: %d files", len(paths))
	}
	slog.Debug("source_change_detected", slog.Int("files", len(paths)))
	w.target.InvalidateIndex(reason)
}

// Stop stops the watcher and discards pending notifications.
// Safe to call multiple times.
func (w *SourceWatcher) Stop() error {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return nil
	}
	w.stopped = true
	w.acc.Stop()
	fw := w.fw
	started := w.started
	w.mu.Unlock()

	if !started {
		return nil
	}
	err := fw.Close()
	<-w.done
	return err
}
