package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dshills/modhost/pkg/object"
)

func newCreateCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "create <class>",
		Short: "Create an instance of a class and show its capabilities",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
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

			obj, err := h.Create(args[0])
			if err != nil {
				_ = h.Shutdown(cmd.Context())
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "class:  %s\n", args[0])
			fmt.Fprintf(out, "owner:  %s\n", obj.Owner())
			if c, ok := obj.(object.Lister); ok {
				for _, id := range c.Capabilities() {
					fmt.Fprintf(out, "  %s\n", id)
				}
			}
			h.Release(obj)
			return h.Shutdown(cmd.Context())
		},
	}
}
