// Package loader discovers, loads, registers, initializes and unloads
// modules.
//
// A module is a file mapped into the process by an Opener chosen by the
// file's extension, or a Static module compiled into the host. Loading runs
// the module's registration entry point, which adds its classes to the
// class registry. Initialization is a separate pass so that every module can
// register before any of them runs logic that depends on its siblings.
// Unloading is refused while objects created by the module are still alive.
//
// Load, initialize and unload operations are serialized. Module hooks run
// while the loader is locked and must not call back into the Loader.
package loader

import (
	"path/filepath"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/dshills/modhost/internal/diag"
	"github.com/dshills/modhost/pkg/object"
	"github.com/dshills/modhost/pkg/registry"
)

const tracerName = "github.com/dshills/modhost/internal/loader"

// Loader owns the module records of a process.
type Loader struct {
	mu      sync.Mutex
	records []*record // load order
	errs    map[string]error
	pending []Event // emitted when mu is released

	registry *registry.Registry
	census   *object.Census
	sink     diag.Sink
	tracer   trace.Tracer
	openers  map[string]Opener
	baseDir  string
	suffix   string

	hmu      sync.RWMutex
	handlers []EventHandler
}

// Option configures a Loader.
type Option func(*Loader)

// WithOpener handles files whose final extension is ext (for example
// ".so" or ".lua"). The extension is matched case-insensitively.
func WithOpener(ext string, o Opener) Option {
	return func(l *Loader) {
		l.openers[strings.ToLower(ext)] = o
	}
}

// WithBaseDir sets the directory relative paths are resolved against when
// no base module is given. Defaults to the executable's directory.
func WithBaseDir(dir string) Option {
	return func(l *Loader) {
		l.baseDir = dir
	}
}

// WithSink sets the diagnostics sink. Defaults to diag.Nop.
func WithSink(s diag.Sink) Option {
	return func(l *Loader) {
		l.sink = s
	}
}

// WithRegistry sets the class registry modules register into.
func WithRegistry(r *registry.Registry) Option {
	return func(l *Loader) {
		l.registry = r
	}
}

// WithCensus sets the census used when the loader creates its own registry.
func WithCensus(c *object.Census) Option {
	return func(l *Loader) {
		l.census = c
	}
}

// WithDefaultSuffix sets the suffix LoadPlugins uses when called with an
// empty one.
func WithDefaultSuffix(suffix string) Option {
	return func(l *Loader) {
		l.suffix = suffix
	}
}

// WithTracer sets the tracer for lifecycle spans. Defaults to the global
// OpenTelemetry provider.
func WithTracer(t trace.Tracer) Option {
	return func(l *Loader) {
		l.tracer = t
	}
}

// New creates a loader.
func New(opts ...Option) *Loader {
	l := &Loader{
		errs:    make(map[string]error),
		openers: make(map[string]Opener),
		suffix:  DefaultSuffix,
	}
	for _, opt := range opts {
		opt(l)
	}

	if l.registry == nil {
		l.registry = registry.New(l.census)
	}
	l.census = l.registry.Census()
	if l.sink == nil {
		l.sink = diag.Nop{}
	}
	if l.tracer == nil {
		l.tracer = otel.Tracer(tracerName)
	}
	if l.baseDir == "" {
		l.baseDir = executableDir()
	}
	l.baseDir = resolve(".", l.baseDir)
	return l
}

// Registry returns the class registry modules register into.
func (l *Loader) Registry() *registry.Registry {
	return l.registry
}

// Census returns the object census the registry reports to.
func (l *Loader) Census() *object.Census {
	return l.census
}

// BaseDir returns the directory relative paths are resolved against.
func (l *Loader) BaseDir() string {
	return l.baseDir
}

// Suffix returns the default file suffix.
func (l *Loader) Suffix() string {
	return l.suffix
}

// Modules returns a snapshot of every loaded module in load order.
func (l *Loader) Modules() []Info {
	l.mu.Lock()
	defer l.mu.Unlock()

	infos := make([]Info, len(l.records))
	for i, r := range l.records {
		infos[i] = r.info()
	}
	return infos
}

// Module returns the module matching name: a file base name
// (case-insensitive), a full path, or a display name.
func (l *Loader) Module(name string) (Info, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if i := l.indexLocked(name); i >= 0 {
		return l.records[i].info(), true
	}
	return Info{}, false
}

// Count returns the number of loaded modules.
func (l *Loader) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}

// Errors returns the last error recorded per path or module name. Errors
// are cleared when the path later loads successfully.
func (l *Loader) Errors() map[string]error {
	l.mu.Lock()
	defer l.mu.Unlock()

	errs := make(map[string]error, len(l.errs))
	for k, v := range l.errs {
		errs[k] = v
	}
	return errs
}

func (l *Loader) indexLocked(name string) int {
	for i, r := range l.records {
		if r.matches(name) {
			return i
		}
	}
	return -1
}

// baseForLocked returns the directory paths are resolved against for base.
func (l *Loader) baseForLocked(base object.Module) string {
	if base.IsZero() || base == object.HostModule {
		return l.baseDir
	}
	for _, r := range l.records {
		if r.module == base && r.path != "" {
			return filepath.Dir(r.path)
		}
	}
	return l.baseDir
}

func (l *Loader) openerFor(path string) (Opener, string) {
	ext := strings.ToLower(filepath.Ext(path))
	return l.openers[ext], ext
}

// unlock releases mu and delivers events queued while it was held.
func (l *Loader) unlock() {
	events := l.pending
	l.pending = nil
	l.mu.Unlock()
	l.dispatch(events)
}
