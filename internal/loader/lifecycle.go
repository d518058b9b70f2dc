package loader

import (
	"context"
	"fmt"
	"os"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dshills/modhost/internal/diag"
	"github.com/dshills/modhost/pkg/object"
)

// LoadPlugins loads every file under path whose name ends with suffix and
// returns how many are loaded, counting files that already were. A relative
// path is resolved against the directory of base, or the loader's base
// directory when base is zero or the host. An empty suffix selects the
// default. Failures are reported to diagnostics and skipped.
func (l *Loader) LoadPlugins(base object.Module, path, suffix string, recursive bool) int {
	if suffix == "" {
		suffix = l.suffix
	}
	ctx, span := l.tracer.Start(context.Background(), "loader.LoadPlugins", trace.WithAttributes(
		attribute.String("path", path),
		attribute.String("suffix", suffix),
		attribute.Bool("recursive", recursive),
	))
	defer span.End()

	l.mu.Lock()
	defer l.unlock()
	defer diag.Group(l.sink, "@Loader:LoadPlugins", path)()

	dir := resolve(l.baseForLocked(base), path)
	files, err := findFiles(dir, suffix, recursive, func(path string, err error) {
		l.failLocked(diag.Warning, loadFailure(path, "scan", err))
	})
	if err != nil {
		l.failLocked(diag.Error, loadFailure(dir, "scan", err))
		span.SetStatus(codes.Error, err.Error())
		return 0
	}
	if len(files) == 0 {
		diag.Writef(l.sink, diag.Info, "@Loader:NoFiles", "%s (%s)", dir, suffix)
	}

	count := 0
	for _, f := range files {
		if l.loadLocked(ctx, f) == nil {
			count++
		}
	}
	span.SetAttributes(attribute.Int("loaded", count))
	return count
}

// LoadPluginFiles loads the files named in files, separated by commas or
// whitespace, relative to path. path itself is resolved like LoadPlugins.
// It returns how many are loaded.
func (l *Loader) LoadPluginFiles(path, files string, base object.Module) int {
	ctx, span := l.tracer.Start(context.Background(), "loader.LoadPluginFiles", trace.WithAttributes(
		attribute.String("path", path),
		attribute.String("files", files),
	))
	defer span.End()

	l.mu.Lock()
	defer l.unlock()
	defer diag.Group(l.sink, "@Loader:LoadFiles", files)()

	dir := resolve(l.baseForLocked(base), path)
	count := 0
	for _, name := range splitFileList(files) {
		if l.loadLocked(ctx, resolve(dir, name)) == nil {
			count++
		}
	}
	span.SetAttributes(attribute.Int("loaded", count))
	return count
}

// LoadPlugin loads one file, absolute or relative to the base directory.
// Loading a path that is already loaded succeeds without doing anything.
func (l *Loader) LoadPlugin(filename string) bool {
	return l.Load(filename) == nil
}

// Load is LoadPlugin returning the failure.
func (l *Loader) Load(filename string) error {
	ctx, span := l.tracer.Start(context.Background(), "loader.Load")
	defer span.End()

	l.mu.Lock()
	defer l.unlock()
	return l.loadLocked(ctx, resolve(l.baseDir, filename))
}

// loadLocked maps, registers and records one module file. On failure no
// record is kept and the module's classes are removed again.
func (l *Loader) loadLocked(ctx context.Context, path string) error {
	_, span := l.tracer.Start(ctx, "loader.load", trace.WithAttributes(attribute.String("file", path)))
	defer span.End()

	for _, r := range l.records {
		if r.path == path {
			diag.Write(l.sink, diag.Debug, "@Loader:AlreadyLoaded", path)
			return nil
		}
	}

	err := l.openLocked(path)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (l *Loader) openLocked(path string) error {
	opener, ext := l.openerFor(path)
	if opener == nil {
		return l.failLocked(diag.Error, loadFailure(path, "open", fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)))
	}
	if _, err := os.Stat(path); err != nil {
		return l.failLocked(diag.Error, loadFailure(path, "open", err))
	}

	var img Image
	err := guard(func() (err error) {
		img, err = opener.Open(path)
		return err
	})
	if err == nil && img == nil {
		err = ErrNoEntryPoint
	}
	if err != nil {
		return l.failLocked(diag.Error, loadFailure(path, "open", err))
	}

	name := displayName(path)
	if n, ok := img.(Named); ok && n.Name() != "" {
		name = n.Name()
	}
	rec := &record{
		module: object.NewModule(name),
		name:   name,
		path:   path,
		kind:   ext,
		state:  StateLoaded,
		image:  img,
	}
	if err := l.registerLocked(rec); err != nil {
		if cerr := img.Close(); cerr != nil {
			diag.Writef(l.sink, diag.Warning, "@Loader:CloseFailed", "%s: %v", path, cerr)
		}
		return err
	}
	return nil
}

// RegisterPlugin registers a module compiled into the host. Registering
// the same module (same name and handle) twice succeeds without doing
// anything. A different module reusing a registered handle is refused with
// ErrModuleExists, since classes and objects are tracked per handle.
func (l *Loader) RegisterPlugin(m Static) bool {
	return l.Register(m) == nil
}

// Register is RegisterPlugin returning the failure.
func (l *Loader) Register(m Static) error {
	_, span := l.tracer.Start(context.Background(), "loader.Register", trace.WithAttributes(attribute.String("module", m.Name)))
	defer span.End()

	l.mu.Lock()
	defer l.unlock()

	if m.Name == "" {
		m.Name = m.Module.Name()
	}
	if m.Register == nil {
		return l.failLocked(diag.Error, loadFailure(m.Name, "register", ErrNoEntryPoint))
	}
	for _, r := range l.records {
		if r.kind != KindStatic || r.name != m.Name {
			continue
		}
		if m.Module.IsZero() || r.module == m.Module {
			return nil
		}
	}
	if m.Module.IsZero() {
		m.Module = object.NewModule(m.Name)
	}
	for _, r := range l.records {
		if r.module == m.Module {
			return l.failLocked(diag.Error, loadFailure(m.Name, "register",
				fmt.Errorf("%w: %s is used by %s", ErrModuleExists, m.Module, r.name)))
		}
	}

	return l.registerLocked(&record{
		module: m.Module,
		name:   m.Name,
		kind:   KindStatic,
		state:  StateLoaded,
		image:  staticImage{m: m},
	})
}

// registerLocked runs the registration entry point of rec and appends it to
// the records. A failing entry point rolls back the module's classes.
func (l *Loader) registerLocked(rec *record) error {
	reg := l.registry.Registrar(rec.module)
	if err := guard(func() error { return rec.image.Register(reg) }); err != nil {
		l.registry.UnregisterModule(rec.module)
		l.census.Forget(rec.module)
		return l.failLocked(diag.Error, loadFailure(rec.key(), "register", err))
	}

	rec.classes = reg.Classes()
	rec.rejected = reg.Rejected()
	for _, err := range rec.rejected {
		diag.Writef(l.sink, diag.Warning, "@Loader:ClassRejected", "%s: %v", rec.name, err)
	}

	rec.state = StateRegistered
	l.records = append(l.records, rec)
	delete(l.errs, rec.key())

	if rec.path != "" {
		l.emitLocked(Event{Type: EventLoaded, Module: rec.name, Path: rec.path})
	}
	l.emitLocked(Event{Type: EventRegistered, Module: rec.name, Path: rec.path})
	diag.Writef(l.sink, diag.Info, "@Loader:Loaded", "%s classes=[%s]", rec.key(), joinIDs(rec))
	return nil
}

// InitializePlugins runs the post-load hook of every module not yet
// initialized, in load order, and returns how many were initialized.
// Modules without a hook count as initialized. A module whose hook fails
// is reported, is not counted, and is never retried.
func (l *Loader) InitializePlugins() int {
	_, span := l.tracer.Start(context.Background(), "loader.InitializePlugins")
	defer span.End()

	l.mu.Lock()
	defer l.unlock()
	defer diag.Group(l.sink, "@Loader:Initialize", "")()

	count := 0
	for _, r := range l.records {
		if r.state != StateRegistered {
			continue
		}
		r.state = StateInitialized

		if r.image.HasInitializer() {
			if err := guard(r.image.Initialize); err != nil {
				l.failLocked(diag.Error, &LoadError{Path: r.key(), Op: "initialize", Err: err})
				continue
			}
			diag.Write(l.sink, diag.Debug, "@Loader:Initialized", r.key())
		}
		count++
		l.emitLocked(Event{Type: EventInitialized, Module: r.name, Path: r.path})
	}
	span.SetAttributes(attribute.Int("initialized", count))
	return count
}

// UnloadPlugin unloads the module matching name. See Unload.
func (l *Loader) UnloadPlugin(name string) bool {
	return l.Unload(name) == nil
}

// Unload unloads the module matching name: a file base name
// (case-insensitive), a full path, or a display name. It fails with
// ErrModuleBusy while any object owned by the module is alive, and with
// ErrModuleNotFound when nothing matches.
func (l *Loader) Unload(name string) error {
	_, span := l.tracer.Start(context.Background(), "loader.Unload", trace.WithAttributes(attribute.String("module", name)))
	defer span.End()

	l.mu.Lock()
	defer l.unlock()

	i := l.indexLocked(name)
	if i < 0 {
		return l.failLocked(diag.Warning, &LoadError{Path: name, Op: "unload", Err: ErrModuleNotFound})
	}
	err := l.unloadLocked(i)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// UnloadAllPlugins unloads every module in reverse load order and returns
// how many were unloaded. Busy modules stay loaded.
func (l *Loader) UnloadAllPlugins() int {
	_, span := l.tracer.Start(context.Background(), "loader.UnloadAllPlugins")
	defer span.End()

	l.mu.Lock()
	defer l.unlock()
	defer diag.Group(l.sink, "@Loader:UnloadAll", "")()

	count := 0
	for i := len(l.records) - 1; i >= 0; i-- {
		if l.unloadLocked(i) == nil {
			count++
		}
	}
	span.SetAttributes(attribute.Int("unloaded", count))
	return count
}

func (l *Loader) unloadLocked(i int) error {
	r := l.records[i]

	busy := func() bool {
		return !l.census.Module(r.module).Idle()
	}
	ids, ok := l.registry.RetireModule(r.module, busy)
	if !ok {
		c := l.census.Module(r.module)
		return l.failLocked(diag.Warning, &LoadError{
			Path: r.key(),
			Op:   "unload",
			Err:  fmt.Errorf("%w: %d live objects, %d foreign references", ErrModuleBusy, c.Objects, c.ForeignRefs),
		})
	}

	if err := guard(r.image.Close); err != nil {
		diag.Writef(l.sink, diag.Warning, "@Loader:CloseFailed", "%s: %v", r.key(), err)
	}

	l.records = append(l.records[:i], l.records[i+1:]...)
	l.census.Forget(r.module)
	r.state = StateUnloaded

	l.emitLocked(Event{Type: EventUnloaded, Module: r.name, Path: r.path})
	diag.Writef(l.sink, diag.Info, "@Loader:Unloaded", "%s removed %d classes", r.key(), len(ids))
	return nil
}

// failLocked records err, reports it and queues an error event.
func (l *Loader) failLocked(sev diag.Severity, err *LoadError) error {
	l.errs[err.Path] = err
	msg := "@Loader:LoadFailed"
	switch {
	case err.Op == "initialize":
		msg = "@Loader:InitFailed"
	case err.Op == "unload":
		msg = "@Loader:UnloadRefused"
	case err.Op == "scan":
		msg = "@Loader:ScanFailed"
	}
	diag.Write(l.sink, sev, msg, err.Error())
	l.emitLocked(Event{Type: EventError, Module: err.Path, Err: err})
	return err
}

// guard calls fn, converting a panic into an error. Invariant violations
// are re-raised.
func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if object.IsInvariant(r) {
				panic(r)
			}
			err = fmt.Errorf("module panic: %v", r)
		}
	}()
	return fn()
}

func (r *record) key() string {
	if r.path != "" {
		return r.path
	}
	return r.name
}

func joinIDs(r *record) string {
	ids := make([]string, len(r.classes))
	for i, id := range r.classes {
		ids[i] = string(id)
	}
	return strings.Join(ids, ", ")
}
