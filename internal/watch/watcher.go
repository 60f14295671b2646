package watch

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ErrWatcherClosed is returned by operations on a closed Watcher.
var ErrWatcherClosed = errors.New("watcher is closed")

// Op is a set of filesystem operations.
type Op uint8

const (
	OpCreate Op = 1 << iota
	OpWrite
	OpRemove
	OpRename
)

// Event is one filesystem change.
type Event struct {
	// Path is relative to the watched root, slash separated.
	Path string
	Op   Op
	Time time.Time
}

// WatcherOptions configures a Watcher.
type WatcherOptions struct {
	// Ignore lists root-relative directories that are never watched, such as
	// the output directory.
	Ignore []string

	// IncludeHidden also watches dot files and directories.
	IncludeHidden bool

	// BufferSize of the event channel. Defaults to 256.
	BufferSize int
}

// Watcher watches a directory tree recursively with fsnotify. Directories
// created later are watched as they appear.
type Watcher struct {
	root   string
	opts   WatcherOptions
	ignore map[string]bool

	fsw *fsnotify.Watcher

	mu     sync.Mutex
	paths  map[string]bool
	closed bool

	events  chan Event
	errors  chan error
	closeCh chan struct{}
	wg      sync.WaitGroup
}

// NewWatcher watches root and every directory below it.
func NewWatcher(root string, opts WatcherOptions) (*Watcher, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = 256
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		root:    abs,
		opts:    opts,
		ignore:  make(map[string]bool, len(opts.Ignore)),
		fsw:     fsw,
		paths:   make(map[string]bool),
		events:  make(chan Event, opts.BufferSize),
		errors:  make(chan error, 16),
		closeCh: make(chan struct{}),
	}
	for _, dir := range opts.Ignore {
		w.ignore[filepath.Clean(filepath.Join(abs, filepath.FromSlash(dir)))] = true
	}

	if err := w.watchTree(abs); err != nil {
		_ = fsw.Close()
		return nil, err
	}

	w.wg.Add(1)
	go w.processLoop()
	return w, nil
}

// Events returns the event channel. It is closed by Close.
func (w *Watcher) Events() <-chan Event { return w.events }

// Errors returns the error channel. It is closed by Close.
func (w *Watcher) Errors() <-chan error { return w.errors }

// WatchedPaths returns the number of watched directories.
func (w *Watcher) WatchedPaths() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.paths)
}

// Close stops watching and closes the channels.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.closeCh)
	w.mu.Unlock()

	w.wg.Wait()
	close(w.events)
	close(w.errors)
	return w.fsw.Close()
}

func (w *Watcher) watchTree(dir string) error {
	return filepath.WalkDir(dir, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			if p == dir {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if p != dir && w.shouldIgnore(p) {
			return filepath.SkipDir
		}
		return w.add(p)
	})
}

func (w *Watcher) add(dir string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrWatcherClosed
	}
	if w.paths[dir] {
		return nil
	}
	if err := w.fsw.Add(dir); err != nil {
		return err
	}
	w.paths[dir] = true
	return nil
}

func (w *Watcher) shouldIgnore(p string) bool {
	if w.ignore[filepath.Clean(p)] {
		return true
	}
	if !w.opts.IncludeHidden {
		base := filepath.Base(p)
		if len(base) > 0 && base[0] == '.' {
			return true
		}
	}
	return false
}

func (w *Watcher) processLoop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.closeCh:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			select {
			case w.errors <- err:
			default:
			}
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	op := convertOp(ev.Op)
	if op == 0 || w.shouldIgnore(ev.Name) || w.insideIgnored(ev.Name) {
		return
	}

	if op&OpCreate != 0 {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			// Files may already exist in the new directory before it is
			// watched; they are reported by the walk below.
			_ = w.watchTree(ev.Name)
			w.reportExisting(ev.Name)
			return
		}
	}
	w.send(ev.Name, op)
}

func (w *Watcher) reportExisting(dir string) {
	_ = filepath.WalkDir(dir, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if p != dir && w.shouldIgnore(p) {
				return filepath.SkipDir
			}
			return nil
		}
		if !w.shouldIgnore(p) {
			w.send(p, OpCreate)
		}
		return nil
	})
}

func (w *Watcher) insideIgnored(p string) bool {
	for dir := range w.ignore {
		if strings.HasPrefix(p, dir+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

func (w *Watcher) send(name string, op Op) {
	rel, err := filepath.Rel(w.root, name)
	if err != nil {
		return
	}
	ev := Event{Path: filepath.ToSlash(rel), Op: op, Time: time.Now()}
	select {
	case w.events <- ev:
	default:
		select {
		case w.errors <- errors.New("event channel full, dropping event for " + ev.Path):
		default:
		}
	}
}

// convertOp drops chmod-only events; they never change content.
func convertOp(fsOp fsnotify.Op) Op {
	var op Op
	if fsOp.Has(fsnotify.Create) {
		op |= OpCreate
	}
	if fsOp.Has(fsnotify.Write) {
		op |= OpWrite
	}
	if fsOp.Has(fsnotify.Remove) {
		op |= OpRemove
	}
	if fsOp.Has(fsnotify.Rename) {
		op |= OpRename
	}
	return op
}

// Forward passes watcher events into d until ctx is done or the watcher is
// closed. Watcher errors are logged.
func Forward(ctx context.Context, w *Watcher, d *Debouncer, logger *slog.Logger) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.Events():
			if !ok {
				return
			}
			d.Add(ev.Path)
		case err, ok := <-w.Errors():
			if !ok {
				return
			}
			logger.Warn("watch error", "error", err)
		}
	}
}
