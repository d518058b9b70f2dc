package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dshills/modhost/internal/config"
	"github.com/dshills/modhost/internal/host"
)

// flags holds the persistent command-line settings.
type flags struct {
	configPath string
	baseDir    string
	suffix     string
	recursive  bool
	logLevel   string
	logFormat  string
	watch      bool
}

func newRootCmd(version string) *cobra.Command {
	f := &flags{}

	root := &cobra.Command{
		Use:   "modhost",
		Short: "Load and run plugin modules",
		Long: `modhost discovers plugin modules, registers the classes they provide
and creates instances of them.

Native modules are Go plugins (.so) and script modules are Lua files (.lua).`,
		Version:      version,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return f.serve(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&f.configPath, "config", "c", "", "config file (.toml, .yaml or .hcl)")
	pf.StringVar(&f.baseDir, "base-dir", "", "directory relative plugin paths are resolved against (default: executable directory)")
	pf.StringVar(&f.suffix, "suffix", "", "plugin file name suffix")
	pf.BoolVarP(&f.recursive, "recursive", "r", true, "scan plugin directories recursively")
	pf.StringVar(&f.logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.StringVar(&f.logFormat, "log-format", "", "log format: text or json")

	root.AddCommand(
		newLoadCmd(f),
		newCreateCmd(f),
		newWatchCmd(f),
	)
	return root
}

// loadConfig reads the config file, then applies the environment and any
// flags set on cmd.
func (f *flags) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnv(os.Getenv)

	changed := cmd.Flags().Changed
	if changed("suffix") {
		cfg.Plugins.Suffix = f.suffix
	}
	if changed("recursive") {
		cfg.Plugins.Recursive = f.recursive
	}
	if changed("log-level") {
		cfg.Log.Level = f.logLevel
	}
	if changed("log-format") {
		cfg.Log.Format = f.logFormat
	}
	if f.watch {
		cfg.Plugins.Watch = true
	}
	return cfg, nil
}

// newHost builds a host writing diagnostics to the command's error stream.
func (f *flags) newHost(cmd *cobra.Command, cfg *config.Config) (*host.Host, error) {
	opts := []host.Option{host.WithOutput(cmd.ErrOrStderr())}
	if f.baseDir != "" {
		opts = append(opts, host.WithBaseDir(f.baseDir))
	}
	return host.New(cfg, opts...)
}

// serve loads the configured plugins and lists them. With plugins.watch
// set it keeps loading new modules until interrupted.
func (f *flags) serve(cmd *cobra.Command) error {
	cfg, err := f.loadConfig(cmd)
	if err != nil {
		return err
	}
	h, err := f.newHost(cmd, cfg)
	if err != nil {
		return err
	}
	if _, err := h.Start(); err != nil {
		return err
	}
	printModules(cmd.OutOrStdout(), h)

	if cfg.Plugins.Watch {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		if err := h.Watch(ctx); err != nil {
			_ = h.Shutdown(cmd.Context())
			return err
		}
	}
	return h.Shutdown(cmd.Context())
}
