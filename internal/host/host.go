// Package host assembles the runtime: diagnostics, tracing, the class
// registry and the plugin loader with its native and script backends.
package host

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dshills/modhost/internal/config"
	"github.com/dshills/modhost/internal/diag"
	"github.com/dshills/modhost/internal/loader"
	"github.com/dshills/modhost/internal/loader/native"
	"github.com/dshills/modhost/internal/loader/script"
	"github.com/dshills/modhost/internal/tracing"
	"github.com/dshills/modhost/internal/watcher"
	"github.com/dshills/modhost/pkg/object"
	"github.com/dshills/modhost/pkg/registry"
)

// ErrModulesRemain is returned by Shutdown when a module could not be unloaded.
var ErrModulesRemain = errors.New("modules still loaded")

// Host owns the loader and everything it reports to.
type Host struct {
	cfg     *config.Config
	log     *diag.Logger
	tracing *tracing.Provider
	loader  *loader.Loader
	watcher *watcher.Watcher
	statics []loader.Static
}

type options struct {
	output      io.Writer
	traceOutput io.Writer
	baseDir     string
	openers     map[string]loader.Opener
	statics     []loader.Static
}

// Option configures a Host.
type Option func(*options)

// WithOutput sets where diagnostics are written. Defaults to os.Stderr.
func WithOutput(w io.Writer) Option {
	return func(o *options) {
		o.output = w
	}
}

// WithTraceOutput sets where the stdout span exporter writes.
func WithTraceOutput(w io.Writer) Option {
	return func(o *options) {
		o.traceOutput = w
	}
}

// WithBaseDir sets the directory relative plugin paths are resolved
// against. Defaults to the executable's directory.
func WithBaseDir(dir string) Option {
	return func(o *options) {
		o.baseDir = dir
	}
}

// WithOpener adds or replaces the backend for files with extension ext.
func WithOpener(ext string, op loader.Opener) Option {
	return func(o *options) {
		if o.openers == nil {
			o.openers = make(map[string]loader.Opener)
		}
		o.openers[ext] = op
	}
}

// WithStatic registers a module compiled into the host at Start. Leave
// m.Module zero to get a fresh handle; object.HostModule belongs to the
// host's built-in module and is refused.
func WithStatic(m loader.Static) Option {
	return func(o *options) {
		o.statics = append(o.statics, m)
	}
}

// New builds a host from cfg. Nothing is loaded until Start.
func New(cfg *config.Config, opts ...Option) (*Host, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := options{output: os.Stderr}
	for _, opt := range opts {
		opt(&o)
	}

	log := diag.New(diag.Config{
		Level:     cfg.Log.Level,
		Format:    cfg.Log.Format,
		Output:    o.output,
		Localizer: diag.NewLocalizer(cfg.Locale, cfg.Messages),
	})

	traceOut := o.traceOutput
	if traceOut == nil {
		traceOut = o.output
	}
	tp, err := tracing.NewProvider(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		Exporter:    cfg.Tracing.Exporter,
		Output:      traceOut,
		ServiceName: cfg.Tracing.ServiceName,
	})
	if err != nil {
		return nil, fmt.Errorf("tracing: %w", err)
	}

	lopts := []loader.Option{
		loader.WithSink(log.WithComponent("loader")),
		loader.WithTracer(tp.Tracer()),
		loader.WithOpener(native.Ext, native.NewOpener()),
		loader.WithOpener(script.Ext, script.NewOpener(script.WithSink(log.WithComponent("script")))),
	}
	if cfg.Plugins.Suffix != "" {
		lopts = append(lopts, loader.WithDefaultSuffix(cfg.Plugins.Suffix))
	}
	if o.baseDir != "" {
		lopts = append(lopts, loader.WithBaseDir(o.baseDir))
	}
	for ext, op := range o.openers {
		lopts = append(lopts, loader.WithOpener(ext, op))
	}

	return &Host{
		cfg:     cfg,
		log:     log.WithComponent("host"),
		tracing: tp,
		loader:  loader.New(lopts...),
		statics: o.statics,
	}, nil
}

// Loader returns the plugin loader.
func (h *Host) Loader() *loader.Loader {
	return h.loader
}

// Registry returns the class registry.
func (h *Host) Registry() *registry.Registry {
	return h.loader.Registry()
}

// Logger returns the host's diagnostics logger.
func (h *Host) Logger() *diag.Logger {
	return h.log
}

// Start registers the built-in modules, loads every configured plugin
// directory and file list, then initializes what was loaded. It returns
// the number of modules initialized.
func (h *Host) Start() (int, error) {
	if err := h.loader.Register(h.builtin()); err != nil {
		return 0, fmt.Errorf("registering host module: %w", err)
	}
	for _, m := range h.statics {
		if err := h.loader.Register(m); err != nil {
			return 0, fmt.Errorf("registering static module %s: %w", m.Name, err)
		}
	}

	plugins := h.cfg.Plugins
	for _, p := range plugins.Paths {
		h.loader.LoadPlugins(object.HostModule, p, plugins.Suffix, plugins.Recursive)
	}
	for _, fs := range plugins.Files {
		h.loader.LoadPluginFiles(fs.Dir, fs.Names, object.HostModule)
	}

	n := h.loader.InitializePlugins()
	diag.Writef(h.log, diag.Info, "@Host:Started", "%d modules, %d classes",
		h.loader.Count(), h.Registry().Count())
	return n, nil
}

// Create builds an instance of class owned by the host. Release it with
// Release.
func (h *Host) Create(class string) (object.Object, error) {
	obj, err := h.Registry().Create(registry.ClassID(class), object.HostModule)
	if err != nil {
		diag.Write(h.log, diag.Error, "@Host:CreateFailed", err.Error())
		return nil, err
	}
	diag.Writef(h.log, diag.Debug, "@Host:InstanceCreated", "%s from %s", class, obj.Owner())
	return obj, nil
}

// Release drops the host's reference to obj.
func (h *Host) Release(obj object.Object) {
	if obj == nil {
		return
	}
	owner := obj.Owner()
	obj.Release(object.HostModule)
	diag.Write(h.log, diag.Debug, "@Host:InstanceReleased", owner.String())
}

// Watch loads modules added to the configured plugin directories until
// ctx is done. Directories that do not exist are skipped.
func (h *Host) Watch(ctx context.Context) error {
	plugins := h.cfg.Plugins
	suffix := plugins.Suffix
	if suffix == "" {
		suffix = h.loader.Suffix()
	}

	w, err := watcher.New(h.loader, suffix,
		watcher.WithSink(h.log.WithComponent("watcher")),
		watcher.WithRecursive(plugins.Recursive),
	)
	if err != nil {
		return err
	}
	h.watcher = w
	defer w.Close()

	added := 0
	for _, p := range plugins.Paths {
		dir := p
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(h.loader.BaseDir(), dir)
		}
		if err := w.Add(dir); err != nil {
			diag.Write(h.log, diag.Warning, "@Watcher:Error", err.Error())
			continue
		}
		added++
	}
	if added == 0 {
		return fmt.Errorf("no plugin directory to watch in %s", strings.Join(plugins.Paths, ", "))
	}

	err = w.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Shutdown unloads every module and flushes traces. Modules whose objects
// are still referenced stay loaded and are reported with ErrModulesRemain.
func (h *Host) Shutdown(ctx context.Context) error {
	defer diag.Group(h.log, "@Host:Shutdown", "")()

	if h.watcher != nil {
		_ = h.watcher.Close()
	}
	h.loader.UnloadAllPlugins()

	var errs []error
	if remaining := h.loader.Modules(); len(remaining) > 0 {
		names := make([]string, len(remaining))
		for i, m := range remaining {
			names[i] = m.Name
		}
		list := strings.Join(names, ", ")
		diag.Write(h.log, diag.Warning, "@Host:ModulesStillLoaded", list)
		errs = append(errs, fmt.Errorf("%w: %s", ErrModulesRemain, list))
	}
	if err := h.tracing.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("tracing shutdown: %w", err))
	}

	diag.Write(h.log, diag.Info, "@Host:Stopped", "")
	return errors.Join(errs...)
}
