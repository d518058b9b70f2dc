// Package watcher loads modules dropped into plugin directories while the
// host runs.
//
// Only new files are loaded. A file that is already loaded is never
// reloaded, and writes to known files are ignored.
package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/dshills/modhost/internal/diag"
	"github.com/dshills/modhost/internal/loader"
)

// DefaultDelay is how long a new file must be quiet before it is loaded.
const DefaultDelay = 250 * time.Millisecond

// ErrWatcherClosed is returned when using a closed watcher.
var ErrWatcherClosed = errors.New("watcher is closed")

// Loader is the part of the plugin loader the watcher drives.
type Loader interface {
	LoadPlugin(filename string) bool
	InitializePlugins() int
}

// Watcher watches directories for new module files.
type Watcher struct {
	fs        *fsnotify.Watcher
	loader    Loader
	suffix    string
	recursive bool
	delay     time.Duration
	sink      diag.Sink
	onLoad    func(path string, ok bool)

	mu      sync.Mutex
	dirs    map[string]bool
	pending map[string]time.Time // path -> load deadline
	closed  bool
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithSink sets the diagnostics sink.
func WithSink(s diag.Sink) Option {
	return func(w *Watcher) {
		w.sink = s
	}
}

// WithRecursive also watches subdirectories, including ones created later.
func WithRecursive(recursive bool) Option {
	return func(w *Watcher) {
		w.recursive = recursive
	}
}

// WithDelay sets how long a new file must be quiet before it is loaded.
func WithDelay(d time.Duration) Option {
	return func(w *Watcher) {
		w.delay = d
	}
}

// WithOnLoad sets a callback run after each load attempt.
func WithOnLoad(fn func(path string, ok bool)) Option {
	return func(w *Watcher) {
		w.onLoad = fn
	}
}

// New creates a watcher that loads files ending with suffix through l.
func New(l Loader, suffix string, opts ...Option) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		fs:      fsw,
		loader:  l,
		suffix:  suffix,
		delay:   DefaultDelay,
		sink:    diag.Nop{},
		dirs:    make(map[string]bool),
		pending: make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Add watches dir, and its subdirectories when recursive.
func (w *Watcher) Add(dir string) error {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return err
	}
	if !w.recursive {
		return w.watch(abs)
	}
	return filepath.WalkDir(abs, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.watch(p)
		}
		return nil
	})
}

func (w *Watcher) watch(dir string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrWatcherClosed
	}
	if w.dirs[dir] {
		return nil
	}
	if err := w.fs.Add(dir); err != nil {
		return err
	}
	w.dirs[dir] = true
	return nil
}

// Dirs returns the watched directories.
func (w *Watcher) Dirs() []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	dirs := make([]string, 0, len(w.dirs))
	for d := range w.dirs {
		dirs = append(dirs, d)
	}
	return dirs
}

// Run processes file events until ctx is done or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) error {
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			w.handle(ev)
			w.arm(timer)

		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			diag.Write(w.sink, diag.Warning, "@Watcher:Error", err.Error())

		case <-timer.C:
			w.flush(time.Now())
			w.arm(timer)
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	switch {
	case ev.Has(fsnotify.Create):
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if w.recursive {
				if err := w.Add(ev.Name); err != nil {
					diag.Write(w.sink, diag.Warning, "@Watcher:Error", err.Error())
				}
				// files may have landed before the watch existed
				w.pendExisting(ev.Name)
			}
			return
		}
		if loader.MatchSuffix(filepath.Base(ev.Name), w.suffix) {
			w.pend(ev.Name)
		}

	case ev.Has(fsnotify.Write):
		// still being written
		w.mu.Lock()
		if _, ok := w.pending[ev.Name]; ok {
			w.pending[ev.Name] = time.Now().Add(w.delay)
		}
		w.mu.Unlock()

	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		w.mu.Lock()
		delete(w.pending, ev.Name)
		w.mu.Unlock()
	}
}

func (w *Watcher) pend(path string) {
	w.mu.Lock()
	w.pending[path] = time.Now().Add(w.delay)
	w.mu.Unlock()
}

// pendExisting marks every matching file under dir pending.
func (w *Watcher) pendExisting(dir string) {
	err := filepath.WalkDir(dir, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			if d != nil && d.IsDir() && p != dir {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() && loader.MatchSuffix(d.Name(), w.suffix) {
			w.pend(p)
		}
		return nil
	})
	if err != nil {
		diag.Write(w.sink, diag.Warning, "@Watcher:Error", err.Error())
	}
}

// arm resets timer to the earliest pending deadline.
func (w *Watcher) arm(timer *time.Timer) {
	w.mu.Lock()
	var next time.Time
	for _, at := range w.pending {
		if next.IsZero() || at.Before(next) {
			next = at
		}
	}
	w.mu.Unlock()

	timer.Stop()
	if !next.IsZero() {
		timer.Reset(max(time.Until(next), 0))
	}
}

// flush loads every pending file whose deadline has passed.
func (w *Watcher) flush(now time.Time) {
	w.mu.Lock()
	var due []string
	for path, at := range w.pending {
		if !at.After(now) {
			due = append(due, path)
			delete(w.pending, path)
		}
	}
	w.mu.Unlock()

	loaded := false
	for _, path := range due {
		diag.Write(w.sink, diag.Info, "@Watcher:NewFile", path)
		ok := w.loader.LoadPlugin(path)
		loaded = loaded || ok
		if w.onLoad != nil {
			w.onLoad(path, ok)
		}
	}
	if loaded {
		w.loader.InitializePlugins()
	}
}

// Close stops watching. Run returns once the event channels close.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()
	return w.fs.Close()
}
