package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/sugarme/gotch/nn"

	"github.com/sugarme/gounet/report"
	"github.com/sugarme/gounet/shapeinference"
	"github.com/sugarme/gounet/unet"
)

func newSummaryCmd(g *globals) *cobra.Command {
	var (
		batch, height, width int64
		chart                string
		params               bool
	)

	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Print per-stage shapes for an input size",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig(cmd)
			if err != nil {
				return err
			}

			trace, err := shapeinference.Plan(cfg, shapeinference.NCHW(batch, cfg.InputChannels, height, width))
			if err != nil {
				return err
			}
			if err := report.WriteTable(cmd.OutOrStdout(), trace); err != nil {
				return err
			}

			if params {
				vs := nn.NewVarStore(g.device())
				net, err := unet.New(vs.Root(), cfg)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "\nparameters: %d\n", net.NumParams())
			}

			if chart != "" {
				if err := report.ArchitectureChart(trace, chart); err != nil {
					return err
				}
				slog.Info("wrote chart", "path", chart)
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.Int64Var(&batch, "batch", 1, "batch size")
	f.Int64Var(&height, "height", 128, "input height")
	f.Int64Var(&width, "width", 128, "input width")
	f.StringVar(&chart, "chart", "", "write an architecture chart (png, svg, pdf)")
	f.BoolVar(&params, "params", false, "build the model and count its parameters")

	return cmd
}
