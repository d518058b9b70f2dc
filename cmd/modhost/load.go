package main

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dshills/modhost/internal/host"
)

func newLoadCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "load [paths...]",
		Short: "Load plugins and list their classes",
		Long: `Load every plugin under the given directories (or the configured
plugin paths), initialize them, and list the loaded modules with the
classes each one registered.

Examples:
  modhost load
  modhost load ./plugins ./extra --suffix .plugin.lua`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := f.loadConfig(cmd)
			if err != nil {
				return err
			}
			if len(args) > 0 {
				cfg.Plugins.Paths = args
			}

			h, err := f.newHost(cmd, cfg)
			if err != nil {
				return err
			}
			if _, err := h.Start(); err != nil {
				return err
			}
			printModules(cmd.OutOrStdout(), h)
			return h.Shutdown(cmd.Context())
		},
	}
}

func printModules(out io.Writer, h *host.Host) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "MODULE\tKIND\tSTATE\tCLASSES")
	for _, m := range h.Loader().Modules() {
		ids := make([]string, len(m.Classes))
		for i, id := range m.Classes {
			ids[i] = string(id)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", m.Name, m.Kind, m.State, strings.Join(ids, ", "))
	}
	_ = tw.Flush()

	errs := h.Loader().Errors()
	if len(errs) == 0 {
		return
	}
	paths := make([]string, 0, len(errs))
	for p := range errs {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	fmt.Fprintln(out, "\nFAILED")
	for _, p := range paths {
		fmt.Fprintf(out, "  %s: %v\n", p, errs[p])
	}
}
