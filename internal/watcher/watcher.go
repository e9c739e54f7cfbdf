// Package watcher reports changes to a fixed set of files, coalesced over a
// debounce window so an editor's save burst triggers a single re-index.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Operation is a file change kind.
type Operation int

const (
	OpCreate Operation = iota
	OpModify
	OpDelete
)

func (op Operation) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpModify:
		return "MODIFY"
	case OpDelete:
		return "DELETE"
	default:
		return "UNKNOWN"
	}
}

// FileEvent is a change to one watched file.
type FileEvent struct {
	Path      string
	Operation Operation
	Timestamp time.Time
}

// Options configures a FileWatcher.
type Options struct {
	// DebounceWindow defaults to 500ms.
	DebounceWindow time.Duration
}

// DefaultDebounce is the window used when Options leaves it zero.
const DefaultDebounce = 500 * time.Millisecond

// FileWatcher watches the parent directories of its files, so files replaced
// by rename (as most editors save) keep being tracked.
type FileWatcher struct {
	fsw   *fsnotify.Watcher
	files map[string]struct{}
	deb   *Debouncer
	errs  chan error

	closeOnce sync.Once
}

// New watches paths. Missing files are allowed; their creation is reported.
func New(paths []string, opts Options) (*FileWatcher, error) {
	if len(paths) == 0 {
		return nil, errors.New("no files to watch")
	}
	window := opts.DebounceWindow
	if window <= 0 {
		window = DefaultDebounce
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	w := &FileWatcher{
		fsw:   fsw,
		files: make(map[string]struct{}, len(paths)),
		deb:   NewDebouncer(window),
		errs:  make(chan error, 16),
	}

	dirs := make(map[string]struct{})
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			_ = fsw.Close()
			return nil, fmt.Errorf("resolve %s: %w", p, err)
		}
		w.files[abs] = struct{}{}
		dirs[filepath.Dir(abs)] = struct{}{}
	}
	for dir := range dirs {
		if err := fsw.Add(dir); err != nil {
			_ = fsw.Close()
			return nil, fmt.Errorf("watch %s: %w", dir, err)
		}
	}
	return w, nil
}

// Events delivers debounced batches. Closed after Run returns.
func (w *FileWatcher) Events() <-chan []FileEvent { return w.deb.Output() }

// Errors delivers non-fatal watcher errors.
func (w *FileWatcher) Errors() <-chan error { return w.errs }

// Run forwards filesystem events until ctx is done or Close is called.
func (w *FileWatcher) Run(ctx context.Context) error {
	defer w.Close()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handle(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			slog.Warn("watcher_error", slog.String("error", err.Error()))
			select {
			case w.errs <- err:
			default:
			}
		}
	}
}

func (w *FileWatcher) handle(ev fsnotify.Event) {
	path := filepath.Clean(ev.Name)
	if _, ok := w.files[path]; !ok {
		return
	}
	var op Operation
	switch {
	case ev.Has(fsnotify.Create):
		op = OpCreate
	case ev.Has(fsnotify.Write):
		op = OpModify
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		op = OpDelete
	default:
		return
	}
	slog.Debug("watcher_event", slog.String("path", path), slog.String("op", op.String()))
	w.deb.Add(FileEvent{Path: path, Operation: op, Timestamp: time.Now()})
}

// Close stops watching. Safe to call more than once.
func (w *FileWatcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		err = w.fsw.Close()
		w.deb.Stop()
	})
	return err
}
