package main

import (
	"github.com/spf13/cobra"
)

func newWatchCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Load plugins, then load new ones as they appear",
		Long: `Load the configured plugins, then keep loading modules added to the
plugin directories until interrupted. Equivalent to running modhost with
plugins.watch enabled.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			f.watch = true
			return f.serve(cmd)
		},
	}
}
