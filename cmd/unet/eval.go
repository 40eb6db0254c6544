package main

import (
	"log/slog"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/sugarme/gounet/dataset"
	"github.com/sugarme/gounet/imgio"
	"github.com/sugarme/gounet/metric"
)

func newEvalCmd(g *globals) *cobra.Command {
	var (
		pf       predictFlags
		manifest string
		out      string
	)

	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Score predictions against the masks of a manifest",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			samples, err := dataset.LoadManifest(manifest)
			if err != nil {
				return err
			}
			p, err := pf.predictor(cmd, g)
			if err != nil {
				return err
			}
			numClasses := int(p.NumClasses())
			if numClasses < 2 {
				numClasses = 2
			}

			var scores []dataset.Score
			for _, s := range samples {
				if s.Mask == "" {
					slog.Warn("skipping sample without mask", "id", s.ID)
					continue
				}

				img, err := imgio.ReadImage(s.Image)
				if err != nil {
					return err
				}
				target, tw, th, err := imgio.ReadMask(s.Mask)
				if err != nil {
					return err
				}
				res, err := p.Predict(img)
				if err != nil {
					return errors.Wrapf(err, "predict %s", s.ID)
				}
				if tw != res.Width || th != res.Height {
					return errors.Errorf("%s: mask is %dx%d, image is %dx%d", s.ID, tw, th, res.Width, res.Height)
				}

				c, err := metric.NewConfusion(res.Labels, target, numClasses)
				if err != nil {
					return errors.Wrapf(err, "score %s", s.ID)
				}
				dice, _ := c.ClassDice(1)
				score := dataset.Score{
					ID:            s.ID,
					PixelAccuracy: c.PixelAccuracy(),
					MeanIoU:       c.MeanIoU(),
					Dice:          dice,
				}
				scores = append(scores, score)
				slog.Info("scored", "id", s.ID, "acc", score.PixelAccuracy, "miou", score.MeanIoU, "dice", score.Dice)
			}
			if len(scores) == 0 {
				return errors.New("manifest has no samples with masks")
			}

			mean := dataset.Summary(scores)
			slog.Info("mean", "samples", len(scores), "acc", mean.PixelAccuracy, "miou", mean.MeanIoU, "dice", mean.Dice)

			if out != "" {
				if err := dataset.SaveReport(out, append(scores, mean)); err != nil {
					return err
				}
				slog.Info("wrote report", "path", out)
			}
			return nil
		},
	}

	pf.register(cmd)
	cmd.Flags().StringVarP(&manifest, "manifest", "m", "", "manifest CSV (image, mask, id columns)")
	cmd.Flags().StringVar(&out, "report", "", "write per-image scores to this CSV")
	_ = cmd.MarkFlagRequired("manifest")

	return cmd
}
