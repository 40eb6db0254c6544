package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/sugarme/gotch"
	"github.com/sugarme/gotch/nn"

	"github.com/sugarme/gounet/config"
	"github.com/sugarme/gounet/unet"
)

// global flags
type globals struct {
	configPath    string
	numClasses    int64
	inputChannels int64
	upsample      string
	cuda          bool
	verbose       bool
}

func (g *globals) device() gotch.Device {
	if g.cuda {
		return gotch.NewCuda().CudaIfAvailable()
	}
	return gotch.CPU
}

// loadConfig reads --config if given, then applies flag overrides.
func (g *globals) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.Default(g.numClasses, g.inputChannels)
	if g.configPath != "" {
		var err error
		if cfg, err = config.Load(g.configPath); err != nil {
			return nil, err
		}
	}

	flags := cmd.Flags()
	if flags.Changed("classes") {
		cfg.NumClasses = g.numClasses
	}
	if flags.Changed("input-channels") {
		cfg.InputChannels = g.inputChannels
	}
	if flags.Changed("upsample") {
		cfg.Upsample = config.UpsampleMode(g.upsample)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// buildModel creates the model and loads weights when a path is given.
func (g *globals) buildModel(cmd *cobra.Command, weights string) (*unet.UNet, *nn.VarStore, error) {
	cfg, err := g.loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}

	vs := nn.NewVarStore(g.device())
	net, err := unet.New(vs.Root(), cfg)
	if err != nil {
		return nil, nil, err
	}

	if weights != "" {
		if err := vs.Load(weights); err != nil {
			return nil, nil, err
		}
		slog.Info("loaded weights", "path", weights)
	}

	return net, vs, nil
}

func newRootCmd() *cobra.Command {
	g := &globals{}

	root := &cobra.Command{
		Use:           "unet",
		Short:         "UNet semantic segmentation",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelInfo
			if g.verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&g.configPath, "config", "", "model config YAML file")
	pf.Int64Var(&g.numClasses, "classes", 2, "number of output classes")
	pf.Int64Var(&g.inputChannels, "input-channels", 3, "number of input channels (1 or 3)")
	pf.StringVar(&g.upsample, "upsample", string(config.UpsampleBilinear), "decoder upsampling: bilinear or transposed")
	pf.BoolVar(&g.cuda, "cuda", false, "use CUDA if available")
	pf.BoolVarP(&g.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(
		newSummaryCmd(g),
		newInitCmd(g),
		newPredictCmd(g),
		newEvalCmd(g),
	)

	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		slog.Error("unet", "error", err)
		os.Exit(1)
	}
}
