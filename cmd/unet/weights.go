package main

import (
	"log/slog"

	"github.com/spf13/cobra"
)

func newInitCmd(g *globals) *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Build a freshly initialized model and save its weights",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			net, vs, err := g.buildModel(cmd, "")
			if err != nil {
				return err
			}
			if err := vs.Save(out); err != nil {
				return err
			}
			slog.Info("saved weights", "path", out, "params", net.NumParams())
			return nil
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "unet.ot", "output weight file")

	return cmd
}
