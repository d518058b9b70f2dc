package config

import (
	"bytes"
	"errors"
	"io"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsimple"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

func decodeTOML(path string, data []byte, cfg *Config) error {
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		pe := &ParseError{Path: path, Err: err}
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			pe.Line, pe.Column = derr.Position()
		}
		return pe
	}
	return nil
}

func decodeYAML(path string, data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return &ParseError{Path: path, Err: err}
	}
	return nil
}

// hclFile mirrors Config for HCL. Pointers mark settings left at their
// defaults when absent.
type hclFile struct {
	Plugins  *hclPlugins       `hcl:"plugins,block"`
	Log      *hclLog           `hcl:"log,block"`
	Tracing  *hclTracing       `hcl:"tracing,block"`
	Locale   *string           `hcl:"locale,optional"`
	Messages map[string]string `hcl:"messages,optional"`
}

type hclPlugins struct {
	Paths     []string  `hcl:"paths,optional"`
	Files     []FileSet `hcl:"files,block"`
	Suffix    *string   `hcl:"suffix,optional"`
	Recursive *bool     `hcl:"recursive,optional"`
	Watch     *bool     `hcl:"watch,optional"`
}

type hclLog struct {
	Level  *string `hcl:"level,optional"`
	Format *string `hcl:"format,optional"`
}

type hclTracing struct {
	Enabled     *bool   `hcl:"enabled,optional"`
	Exporter    *string `hcl:"exporter,optional"`
	ServiceName *string `hcl:"service_name,optional"`
}

func decodeHCL(path string, data []byte, cfg *Config) error {
	var f hclFile
	if err := hclsimple.Decode(path, data, nil, &f); err != nil {
		pe := &ParseError{Path: path, Err: err}
		var diags hcl.Diagnostics
		if errors.As(err, &diags) && len(diags) > 0 && diags[0].Subject != nil {
			pe.Line = diags[0].Subject.Start.Line
			pe.Column = diags[0].Subject.Start.Column
		}
		return pe
	}

	if p := f.Plugins; p != nil {
		if p.Paths != nil {
			cfg.Plugins.Paths = p.Paths
		}
		if p.Files != nil {
			cfg.Plugins.Files = p.Files
		}
		set(&cfg.Plugins.Suffix, p.Suffix)
		set(&cfg.Plugins.Recursive, p.Recursive)
		set(&cfg.Plugins.Watch, p.Watch)
	}
	if l := f.Log; l != nil {
		set(&cfg.Log.Level, l.Level)
		set(&cfg.Log.Format, l.Format)
	}
	if t := f.Tracing; t != nil {
		set(&cfg.Tracing.Enabled, t.Enabled)
		set(&cfg.Tracing.Exporter, t.Exporter)
		set(&cfg.Tracing.ServiceName, t.ServiceName)
	}
	set(&cfg.Locale, f.Locale)
	if f.Messages != nil {
		cfg.Messages = f.Messages
	}
	return nil
}

func set[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}
