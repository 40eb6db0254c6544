// Package predict runs a UNet over images and returns per-pixel labels.
package predict

import (
	"image"
	"log/slog"

	"github.com/pkg/errors"
	"github.com/sugarme/gotch"
	ts "github.com/sugarme/gotch/tensor"

	"github.com/sugarme/gounet/imgio"
	"github.com/sugarme/gounet/shapeinference"
	"github.com/sugarme/gounet/unet"
)

// Options control pre- and post-processing.
type Options struct {
	// MaxSide shrinks inputs so that their longer side is at most MaxSide
	// pixels; labels are scaled back to the source size. 0 disables it.
	MaxSide int
	// Mean and Std normalize inputs after scaling to [0, 1]. Nil skips it.
	Mean, Std []float64
}

// DefaultOptions normalizes RGB with ImageNet statistics and keeps the size.
func DefaultOptions() Options {
	return Options{Mean: imgio.ImageNetMean, Std: imgio.ImageNetStd}
}

// Result is a predicted label map of the source image size.
type Result struct {
	Labels []int64
	Width  int
	Height int
}

// Mask renders the labels as a gray image.
func (r *Result) Mask() (*image.Gray, error) {
	return imgio.LabelImage(r.Labels, r.Width, r.Height)
}

// Predictor evaluates a model on one device.
type Predictor struct {
	model  *unet.UNet
	device gotch.Device
	opts   Options
}

// New creates a Predictor. Mean/Std are dropped for single-channel models.
func New(model *unet.UNet, device gotch.Device, opts Options) *Predictor {
	if model.Config().InputChannels == 1 {
		opts.Mean, opts.Std = nil, nil
	}
	return &Predictor{model: model, device: device, opts: opts}
}

// NumClasses is the number of labels the model predicts.
func (p *Predictor) NumClasses() int64 {
	return p.model.Config().NumClasses
}

// Predict labels every pixel of img with its highest-scoring class.
func (p *Predictor) Predict(img image.Image) (*Result, error) {
	cfg := p.model.Config()
	src := img.Bounds()

	w, h := imgio.FitSize(img, p.opts.MaxSide)
	if minSide := int(shapeinference.MinSpatial(cfg)); w < minSide || h < minSide {
		return nil, errors.Errorf("image %dx%d is smaller than %dx%d", w, h, minSide, minSide)
	}
	input := imgio.Resize(img, w, h, false)

	data, _, _, err := imgio.ToCHW(input, int(cfg.InputChannels), p.opts.Mean, p.opts.Std)
	if err != nil {
		return nil, err
	}

	var labels []int64
	ts.NoGrad(func() {
		x := ts.MustOfSlice(data).MustView([]int64{1, cfg.InputChannels, int64(h), int64(w)}, true)
		x = x.MustTo(p.device, true)
		logits := p.model.Forward(x)
		x.MustDrop()
		// [1 C H W] => [1 H W]
		best := logits.MustArgmax([]int64{1}, false, true).MustTo(gotch.CPU, true)
		labels = best.Int64Values()
		best.MustDrop()
	})

	slog.Debug("predicted", "width", w, "height", h, "classes", cfg.NumClasses)

	res := &Result{Labels: labels, Width: w, Height: h}
	if w == src.Dx() && h == src.Dy() {
		return res, nil
	}

	// Scale labels back to the source resolution.
	mask, err := res.Mask()
	if err != nil {
		return nil, err
	}
	full := imgio.Resize(mask, src.Dx(), src.Dy(), true)
	fullLabels, fw, fh, err := imgio.MaskLabels(full)
	if err != nil {
		return nil, err
	}
	return &Result{Labels: fullLabels, Width: fw, Height: fh}, nil
}
