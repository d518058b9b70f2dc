package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, []string{"plugins"}, cfg.Plugins.Paths)
	assert.True(t, cfg.Plugins.Recursive)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.NoError(t, cfg.Validate())
}

func TestLoadMissingOrEmptyPath(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	cfg, err = Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadTOML(t *testing.T) {
	path := writeConfig(t, "modhost.toml", `
locale = "de"

[plugins]
paths = ["mods", "extra"]
suffix = ".plugin.so"
recursive = false

[[plugins.files]]
dir = "vendor"
names = "a.plugin.so, b.plugin.so"

[log]
level = "debug"

[messages]
"Loader:Loaded" = "Modul geladen"
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"mods", "extra"}, cfg.Plugins.Paths)
	assert.Equal(t, ".plugin.so", cfg.Plugins.Suffix)
	assert.False(t, cfg.Plugins.Recursive)
	assert.Equal(t, []FileSet{{Dir: "vendor", Names: "a.plugin.so, b.plugin.so"}}, cfg.Plugins.Files)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format, "unset keys keep defaults")
	assert.Equal(t, "de", cfg.Locale)
	assert.Equal(t, "Modul geladen", cfg.Messages["Loader:Loaded"])
}

func TestLoadYAML(t *testing.T) {
	path := writeConfig(t, "modhost.yaml", `
plugins:
  paths: [scripts]
  suffix: .plugin.lua
  watch: true
log:
  format: json
tracing:
  enabled: true
  exporter: none
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"scripts"}, cfg.Plugins.Paths)
	assert.True(t, cfg.Plugins.Watch)
	assert.True(t, cfg.Plugins.Recursive)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.True(t, cfg.Tracing.Enabled)
	assert.Equal(t, "none", cfg.Tracing.Exporter)
}

func TestLoadHCL(t *testing.T) {
	path := writeConfig(t, "modhost.hcl", `
locale = "fr"

plugins {
  paths     = ["lua"]
  recursive = false

  files {
    dir   = "x"
    names = "one.plugin.lua"
  }
}

log {
  level = "warn"
}

messages = {
  "Loader:Unloaded" = "module déchargé"
}
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"lua"}, cfg.Plugins.Paths)
	assert.False(t, cfg.Plugins.Recursive)
	assert.Equal(t, []FileSet{{Dir: "x", Names: "one.plugin.lua"}}, cfg.Plugins.Files)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, "fr", cfg.Locale)
	assert.Equal(t, "module déchargé", cfg.Messages["Loader:Unloaded"])
}

func TestLoadParseErrors(t *testing.T) {
	tests := []struct {
		name, file, content string
	}{
		{"toml syntax", "bad.toml", "[plugins\npaths = 1"},
		{"toml unknown key", "unknown.toml", "[plugins]\nbogus = true"},
		{"yaml unknown key", "unknown.yaml", "plugins:\n  bogus: true\n"},
		{"hcl syntax", "bad.hcl", "plugins {"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.file, tt.content))
			var pe *ParseError
			require.ErrorAs(t, err, &pe)
			assert.Contains(t, pe.Path, tt.file)
		})
	}

	_, err := Load(writeConfig(t, "modhost.ini", "x=1"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		EnvPluginPath: "a" + string(os.PathListSeparator) + "b",
		EnvLogLevel:   "error",
		EnvLocale:     "ja",
	}
	cfg := Default()
	cfg.ApplyEnv(func(k string) string { return env[k] })

	assert.Equal(t, []string{"a", "b"}, cfg.Plugins.Paths)
	assert.Equal(t, "error", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, "ja", cfg.Locale)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Log.Level = "loud"
	cfg.Log.Format = "xml"
	cfg.Plugins.Paths = []string{"ok", " "}
	cfg.Plugins.Suffix = "*.so"
	cfg.Plugins.Files = []FileSet{{Dir: "x"}}
	cfg.Tracing.Enabled = true
	cfg.Tracing.Exporter = "zipkin"
	cfg.Locale = "not a locale!"

	err := cfg.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrValidationFailed))

	var verrs ValidationErrors
	require.ErrorAs(t, err, &verrs)
	paths := make([]string, len(verrs))
	for i, v := range verrs {
		paths[i] = v.Path
	}
	assert.ElementsMatch(t, []string{
		"log.level", "log.format", "plugins.paths[1]", "plugins.files[0].names",
		"plugins.suffix", "tracing.exporter", "locale",
	}, paths)
}
