// Package config loads the host configuration.
//
// Configuration is read from a TOML, YAML or HCL file chosen by extension,
// layered over Default, then overridden by MODHOST_* environment variables
// and finally by command-line flags.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"golang.org/x/text/language"
)

// Environment variables read by ApplyEnv.
const (
	EnvPluginPath = "MODHOST_PLUGIN_PATH"
	EnvLogLevel   = "MODHOST_LOG_LEVEL"
	EnvLogFormat  = "MODHOST_LOG_FORMAT"
	EnvLocale     = "MODHOST_LOCALE"
)

// Config is the host configuration.
type Config struct {
	Plugins  Plugins           `toml:"plugins" yaml:"plugins"`
	Log      Log               `toml:"log" yaml:"log"`
	Tracing  Tracing           `toml:"tracing" yaml:"tracing"`
	Locale   string            `toml:"locale" yaml:"locale"`
	Messages map[string]string `toml:"messages" yaml:"messages"`
}

// Plugins configures module discovery.
type Plugins struct {
	// Paths are directories scanned for modules, relative to the executable.
	Paths []string `toml:"paths" yaml:"paths"`
	// Files are explicit file lists loaded after the scanned directories.
	Files []FileSet `toml:"files" yaml:"files"`
	// Suffix is the file name suffix modules must end with. Empty selects
	// the loader default.
	Suffix string `toml:"suffix" yaml:"suffix"`
	// Recursive scans subdirectories of Paths.
	Recursive bool `toml:"recursive" yaml:"recursive"`
	// Watch loads modules added to Paths while the host runs.
	Watch bool `toml:"watch" yaml:"watch"`
}

// FileSet names files in one directory.
type FileSet struct {
	Dir   string `toml:"dir" yaml:"dir" hcl:"dir"`
	Names string `toml:"names" yaml:"names" hcl:"names"`
}

// Log configures diagnostics output.
type Log struct {
	Level  string `toml:"level" yaml:"level"`
	Format string `toml:"format" yaml:"format"`
}

// Tracing configures OpenTelemetry spans for loader operations.
type Tracing struct {
	Enabled bool `toml:"enabled" yaml:"enabled"`
	// Exporter is "stdout" or "none".
	Exporter    string `toml:"exporter" yaml:"exporter"`
	ServiceName string `toml:"service_name" yaml:"service_name"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Plugins: Plugins{
			Paths:     []string{"plugins"},
			Recursive: true,
		},
		Log: Log{
			Level:  "info",
			Format: "text",
		},
		Tracing: Tracing{
			Exporter:    "stdout",
			ServiceName: "modhost",
		},
		Locale: "en",
	}
}

// Load reads the file at path over the defaults. An empty path or a
// missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		err = decodeTOML(path, data, cfg)
	case ".yaml", ".yml":
		err = decodeYAML(path, data, cfg)
	case ".hcl":
		err = decodeHCL(path, data, cfg)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides settings from the environment. getenv is usually
// os.Getenv.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv(EnvPluginPath); v != "" {
		c.Plugins.Paths = filepath.SplitList(v)
	}
	if v := getenv(EnvLogLevel); v != "" {
		c.Log.Level = v
	}
	if v := getenv(EnvLogFormat); v != "" {
		c.Log.Format = v
	}
	if v := getenv(EnvLocale); v != "" {
		c.Locale = v
	}
}

var (
	logLevels  = []string{"debug", "info", "warn", "error"}
	logFormats = []string{"text", "json"}
	exporters  = []string{"stdout", "none"}
)

// Validate checks the configuration and returns every problem found.
func (c *Config) Validate() error {
	var errs ValidationErrors

	if !slices.Contains(logLevels, strings.ToLower(c.Log.Level)) {
		errs = append(errs, &ValidationError{Path: "log.level", Message: "must be one of " + strings.Join(logLevels, ", "), Value: c.Log.Level})
	}
	if !slices.Contains(logFormats, c.Log.Format) {
		errs = append(errs, &ValidationError{Path: "log.format", Message: "must be text or json", Value: c.Log.Format})
	}
	for i, p := range c.Plugins.Paths {
		if strings.TrimSpace(p) == "" {
			errs = append(errs, &ValidationError{Path: fmt.Sprintf("plugins.paths[%d]", i), Message: "must not be empty", Value: p})
		}
	}
	for i, fs := range c.Plugins.Files {
		if strings.TrimSpace(fs.Names) == "" {
			errs = append(errs, &ValidationError{Path: fmt.Sprintf("plugins.files[%d].names", i), Message: "must list at least one file", Value: fs.Names})
		}
	}
	if strings.ContainsAny(c.Plugins.Suffix, `*?[/\`) {
		errs = append(errs, &ValidationError{Path: "plugins.suffix", Message: "must be a literal file name suffix", Value: c.Plugins.Suffix})
	}
	if c.Tracing.Enabled && !slices.Contains(exporters, c.Tracing.Exporter) {
		errs = append(errs, &ValidationError{Path: "tracing.exporter", Message: "must be stdout or none", Value: c.Tracing.Exporter})
	}
	if _, err := language.Parse(c.Locale); err != nil {
		errs = append(errs, &ValidationError{Path: "locale", Message: err.Error(), Value: c.Locale})
	}

	if len(errs) == 0 {
		return nil
	}
	return errs
}
