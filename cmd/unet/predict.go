package main

import (
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/sugarme/gounet/imgio"
	"github.com/sugarme/gounet/predict"
)

type predictFlags struct {
	weights   string
	maxSide   int
	normalize bool
}

func (f *predictFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVarP(&f.weights, "weights", "w", "", "model weight file (.ot)")
	fs.IntVar(&f.maxSide, "max-side", 0, "shrink inputs so the longer side fits (0 keeps size)")
	fs.BoolVar(&f.normalize, "normalize", true, "normalize RGB inputs with ImageNet mean/std")
}

func (f *predictFlags) predictor(cmd *cobra.Command, g *globals) (*predict.Predictor, error) {
	net, _, err := g.buildModel(cmd, f.weights)
	if err != nil {
		return nil, err
	}
	if f.weights == "" {
		slog.Warn("no --weights given, predicting with randomly initialized parameters")
	}

	opts := predict.DefaultOptions()
	opts.MaxSide = f.maxSide
	if !f.normalize {
		opts.Mean, opts.Std = nil, nil
	}
	return predict.New(net, g.device(), opts), nil
}

func newPredictCmd(g *globals) *cobra.Command {
	var (
		pf      predictFlags
		outDir  string
		opacity float64
	)

	cmd := &cobra.Command{
		Use:   "predict IMAGE...",
		Short: "Write label masks and overlays for images",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := pf.predictor(cmd, g)
			if err != nil {
				return err
			}
			numClasses := int(p.NumClasses())

			for _, path := range args {
				img, err := imgio.ReadImage(path)
				if err != nil {
					return err
				}
				res, err := p.Predict(img)
				if err != nil {
					return errors.Wrapf(err, "predict %s", path)
				}
				mask, err := res.Mask()
				if err != nil {
					return err
				}

				name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
				maskPath := filepath.Join(outDir, name+"_mask.png")
				overlayPath := filepath.Join(outDir, name+"_overlay.png")
				if err := imgio.Save(mask, maskPath); err != nil {
					return err
				}
				if err := imgio.Save(imgio.Overlay(img, mask, numClasses, opacity), overlayPath); err != nil {
					return err
				}
				slog.Info("predicted", "image", path, "mask", maskPath, "overlay", overlayPath)
			}
			return nil
		},
	}

	pf.register(cmd)
	cmd.Flags().StringVarP(&outDir, "out", "o", "out", "output directory")
	cmd.Flags().Float64Var(&opacity, "opacity", 0.5, "overlay opacity")

	return cmd
}
