package host

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/modhost/internal/config"
	"github.com/dshills/modhost/internal/loader"
	"github.com/dshills/modhost/internal/loader/script"
	"github.com/dshills/modhost/pkg/object"
	"github.com/dshills/modhost/pkg/registry"
)

const greeterPlugin = `
name = "greeter"

function register(reg)
  reg:class("Greeter", function()
    return {
      greet = function(self, who) return "hello " .. who end,
    }
  end)
end
`

// syncBuffer is a bytes.Buffer safe for the watcher goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func writePlugin(t *testing.T, dir, name, src string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(src), 0o644))
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Plugins.Suffix = ".plugin.lua"
	cfg.Log.Level = "debug"
	return cfg
}

func newTestHost(t *testing.T, cfg *config.Config, opts ...Option) (*Host, string, *syncBuffer) {
	t.Helper()
	base := t.TempDir()
	out := &syncBuffer{}
	opts = append([]Option{WithBaseDir(base), WithOutput(out)}, opts...)
	h, err := New(cfg, opts...)
	require.NoError(t, err)
	return h, base, out
}

func TestHostStartLoadsScripts(t *testing.T) {
	h, base, out := newTestHost(t, testConfig())
	writePlugin(t, filepath.Join(base, "plugins"), "greeter.plugin.lua", greeterPlugin)
	writePlugin(t, filepath.Join(base, "plugins"), "ignored.lua", greeterPlugin)

	n, err := h.Start()
	require.NoError(t, err)
	assert.Equal(t, 2, n, "host module and greeter")
	assert.Equal(t, 2, h.Loader().Count())

	info, ok := h.Loader().Module("greeter")
	require.True(t, ok)
	assert.Equal(t, []registry.ClassID{"Greeter"}, info.Classes)
	assert.Equal(t, loader.StateInitialized, info.State)

	obj, err := h.Create("Greeter")
	require.NoError(t, err)
	inv, ok := object.As[script.Invoker](obj, script.CapInvoker)
	require.True(t, ok)
	got, err := inv.Invoke("greet", "world")
	require.NoError(t, err)
	assert.Equal(t, []any{"hello world"}, got)
	h.Release(obj)

	assert.Contains(t, out.String(), "host started")
	require.NoError(t, h.Shutdown(context.Background()))
	assert.Zero(t, h.Loader().Count())
}

func TestHostCensusClass(t *testing.T) {
	h, _, _ := newTestHost(t, testConfig())
	_, err := h.Start()
	require.NoError(t, err)

	obj, err := h.Create(string(ClassCensus))
	require.NoError(t, err)
	reader, ok := object.As[CensusReader](obj, CapCensus)
	require.True(t, ok)

	assert.Equal(t, int64(1), reader.Total().Objects)
	assert.Equal(t, int64(1), reader.Module(object.HostModule).Objects)
	assert.Equal(t, object.HostModule, obj.Owner())
	h.Release(obj)

	assert.Zero(t, h.Loader().Census().Objects())
}

func TestHostCreateUnknown(t *testing.T) {
	h, _, out := newTestHost(t, testConfig())
	_, err := h.Start()
	require.NoError(t, err)

	obj, err := h.Create("Z")
	assert.ErrorIs(t, err, registry.ErrUnknownClassID)
	assert.Nil(t, obj)
	assert.Contains(t, out.String(), "instance creation failed")
}

func TestHostShutdownWithLiveObject(t *testing.T) {
	h, base, _ := newTestHost(t, testConfig())
	writePlugin(t, filepath.Join(base, "plugins"), "greeter.plugin.lua", greeterPlugin)
	_, err := h.Start()
	require.NoError(t, err)

	obj, err := h.Create("Greeter")
	require.NoError(t, err)

	err = h.Shutdown(context.Background())
	assert.ErrorIs(t, err, ErrModulesRemain)
	assert.Equal(t, 1, h.Loader().Count())
	assert.True(t, h.Registry().Has("Greeter"))

	h.Release(obj)
	assert.NoError(t, h.Shutdown(context.Background()))
	assert.False(t, h.Registry().Has("Greeter"))
}

func TestHostFileSetsAndStatics(t *testing.T) {
	cfg := testConfig()
	cfg.Plugins.Paths = []string{"empty"}
	cfg.Plugins.Files = []config.FileSet{{Dir: "extra", Names: "one.lua, two.lua"}}

	initialized := false
	static := loader.Static{
		Name: "builtin",
		Register: func(r *registry.Registrar) error {
			return r.Register("Static", func() (object.Object, error) { return nil, errors.New("unused") })
		},
		Initialize: func() error {
			initialized = true
			return nil
		},
	}

	h, base, _ := newTestHost(t, cfg, WithStatic(static))
	require.NoError(t, os.MkdirAll(filepath.Join(base, "empty"), 0o755))
	writePlugin(t, filepath.Join(base, "extra"), "one.lua", greeterPlugin)
	writePlugin(t, filepath.Join(base, "extra"), "two.lua", `
function register(reg)
  reg:class("Other", function() return {} end)
end
`)

	n, err := h.Start()
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.True(t, initialized)
	for _, id := range []registry.ClassID{ClassCensus, "Static", "Greeter", "Other"} {
		assert.True(t, h.Registry().Has(id), "class %s", id)
	}
}

func TestHostStaticSharingHostHandle(t *testing.T) {
	static := loader.Static{
		Name:   "app",
		Module: object.HostModule,
		Register: func(r *registry.Registrar) error {
			return r.Register("App", func() (object.Object, error) { return nil, errors.New("unused") })
		},
	}
	h, _, _ := newTestHost(t, testConfig(), WithStatic(static))

	_, err := h.Start()
	require.ErrorIs(t, err, loader.ErrModuleExists)
	assert.False(t, h.Registry().Has("App"))
}

func TestHostLocalizedMessages(t *testing.T) {
	cfg := testConfig()
	cfg.Messages = map[string]string{"Host:Started": "ready to serve"}
	h, _, out := newTestHost(t, cfg)

	_, err := h.Start()
	require.NoError(t, err)
	assert.Contains(t, out.String(), "ready to serve")
}

func TestHostInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Log.Level = "loud"
	_, err := New(cfg)
	assert.ErrorIs(t, err, config.ErrValidationFailed)
}

func TestHostTracing(t *testing.T) {
	cfg := testConfig()
	cfg.Tracing.Enabled = true
	traces := &syncBuffer{}
	h, _, _ := newTestHost(t, cfg, WithTraceOutput(traces))

	_, err := h.Start()
	require.NoError(t, err)
	require.NoError(t, h.Shutdown(context.Background()))
	assert.Contains(t, traces.String(), "loader.InitializePlugins")
}

func TestHostWatch(t *testing.T) {
	cfg := testConfig()
	cfg.Plugins.Recursive = false
	h, base, _ := newTestHost(t, cfg)
	dir := filepath.Join(base, "plugins")
	require.NoError(t, os.MkdirAll(dir, 0o755))

	_, err := h.Start()
	require.NoError(t, err)
	require.Equal(t, 1, h.Loader().Count())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.Watch(ctx) }()

	// The directory must be watched before the file appears.
	time.Sleep(100 * time.Millisecond)
	writePlugin(t, dir, "late.plugin.lua", greeterPlugin)

	assert.Eventually(t, func() bool {
		info, ok := h.Loader().Module("greeter")
		return ok && info.State == loader.StateInitialized
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Watch() did not return after cancel")
	}
}

func TestHostWatchNoDirectory(t *testing.T) {
	cfg := testConfig()
	cfg.Plugins.Paths = []string{"missing"}
	h, _, _ := newTestHost(t, cfg)

	err := h.Watch(context.Background())
	assert.Error(t, err)
}
