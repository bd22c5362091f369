package vault

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

// DefaultDebounce is the quiet window before a burst of changes is emitted.
const DefaultDebounce = 500 * time.Millisecond

// WatcherOptions configures a Watcher.
type WatcherOptions struct {
	// Debounce is the quiet window. Zero means DefaultDebounce.
	Debounce time.Duration

	// Filter drops notes that would not be indexed. Nil keeps every note.
	Filter *Filter
}

// Watcher reports changes to the notes of a vault. Every burst of changes
// arrives as one batch on Events.
type Watcher struct {
	fsw       *fsnotify.Watcher
	debouncer *Debouncer
	filter    *Filter
	root      string
	events    chan []FileEvent
	errors    chan error
	stopCh    chan struct{}
	mu        sync.Mutex
	stopped   bool
}

// NewWatcher starts watching every folder under root. Call Run to begin
// delivering events.
func NewWatcher(root string, opts WatcherOptions) (*Watcher, error) {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve absolute path: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}

	w := &Watcher{
		fsw:       fsw,
		debouncer: NewDebouncer(opts.Debounce),
		filter:    opts.Filter,
		root:      absRoot,
		events:    make(chan []FileEvent, 16),
		errors:    make(chan error, 10),
		stopCh:    make(chan struct{}),
	}

	if err := w.addRecursive(absRoot); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("add directories to watcher: %w", err)
	}
	return w, nil
}

// Run delivers events until ctx is cancelled or Stop is called.
func (w *Watcher) Run(ctx context.Context) error {
	go w.forward(ctx)

	for {
		select {
		case <-ctx.Done():
			_ = w.Stop()
			return ctx.Err()
		case <-w.stopCh:
			return nil
		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handle(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.emitError(err)
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	relPath, err := filepath.Rel(w.root, event.Name)
	if err != nil || relPath == "." {
		return
	}
	relPath = filepath.ToSlash(relPath)

	if w.ignoredDir(relPath) {
		return
	}

	isDir := false
	if info, err := os.Stat(event.Name); err == nil {
		isDir = info.IsDir()
	}

	var op Operation
	switch {
	case event.Op&fsnotify.Create != 0:
		op = OpCreate
		if isDir {
			if err := w.addRecursive(event.Name); err != nil {
				w.emitError(err)
			}
		}
	case event.Op&fsnotify.Write != 0:
		op = OpModify
	case event.Op&fsnotify.Remove != 0:
		op = OpDelete
	case event.Op&fsnotify.Rename != 0:
		op = OpRename
	default:
		return // chmod
	}

	// A removed path can no longer be stat'ed, so anything without a .md
	// extension is treated as a possible folder.
	if !isDir {
		if !IsMarkdown(relPath) {
			if op != OpDelete && op != OpRename {
				return
			}
			isDir = true
		} else if w.filter != nil && !w.filter.Allow(relPath) {
			return
		}
	}

	w.debouncer.Add(FileEvent{Path: relPath, Operation: op, IsDir: isDir})
}

func (w *Watcher) forward(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case events, ok := <-w.debouncer.Output():
			if !ok {
				return
			}
			w.emit(events)
		}
	}
}

func (w *Watcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		relPath, _ := filepath.Rel(w.root, path)
		if relPath != "." && w.ignoredDir(filepath.ToSlash(relPath)) {
			return filepath.SkipDir
		}
		return w.fsw.Add(path)
	})
}

// ignoredDir reports whether relPath is inside a folder that is never indexed.
func (w *Watcher) ignoredDir(relPath string) bool {
	for _, part := range strings.Split(relPath, "/") {
		if isExcludedDir(part) {
			return true
		}
	}
	return false
}

func (w *Watcher) emit(events []FileEvent) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	select {
	case w.events <- events:
	default:
		slog.Warn("watch event buffer full, dropping batch",
			slog.Int("batch_size", len(events)))
	}
}

func (w *Watcher) emitError(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	select {
	case w.errors <- err:
	default:
	}
}

// Events returns the channel of debounced batches.
func (w *Watcher) Events() <-chan []FileEvent {
	return w.events
}

// Errors returns non-fatal watcher errors.
func (w *Watcher) Errors() <-chan error {
	return w.errors
}

// Stop releases the watcher. Safe to call multiple times.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return nil
	}
	w.stopped = true
	close(w.stopCh)
	w.debouncer.Stop()
	err := w.fsw.Close()
	close(w.events)
	close(w.errors)
	return err
}
