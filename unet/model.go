package unet

import (
	"log/slog"

	"github.com/pkg/errors"
	"github.com/sugarme/gotch/nn"
	ts "github.com/sugarme/gotch/tensor"

	"github.com/sugarme/gounet/base"
	"github.com/sugarme/gounet/config"
	"github.com/sugarme/gounet/encoder"
	"github.com/sugarme/gounet/shapeinference"
)

// UNet is a UNET model struct
// Ref: https://arxiv.org/abs/1505.04597
type UNet struct {
	config  *config.Config
	encoder *encoder.UNetEncoder
	decoder *UNetDecoder
	segHead *base.SegmentationHead
}

// New validates cfg, builds the contracting and expanding paths under p and
// initializes every convolution and batch norm parameter.
func New(p *nn.Path, cfg *config.Config) (*UNet, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	enc := encoder.NewUNetEncoder(p, cfg)
	dec := NewUNetDecoder(p, cfg)
	if dec.Len() != enc.Len()-1 {
		return nil, errors.Wrapf(config.ErrInvalidConfig, "%d decoder stages for %d encoder stages", dec.Len(), enc.Len())
	}
	head := base.NewSegmentationHead(p.Sub("logit"), cfg.OutputWidth(), cfg.NumClasses, 1)

	n := &UNet{
		config:  cfg,
		encoder: enc,
		decoder: dec,
		segHead: head,
	}
	if err := base.ApplyInit(n.Params()); err != nil {
		return nil, errors.Wrap(err, "init parameters")
	}

	slog.Debug("unet built", "classes", cfg.NumClasses, "input_channels", cfg.InputChannels,
		"encoders", enc.Len(), "decoders", dec.Len(), "upsample", cfg.Upsample, "params", n.NumParams())

	return n, nil
}

// MustNew is New that panics on an invalid configuration.
func MustNew(p *nn.Path, cfg *config.Config) *UNet {
	n, err := New(p, cfg)
	if err != nil {
		panic(err)
	}
	return n
}

// DefaultUNet creates UNet with default values: widths
// (64, 128, 256, 512, 1024), bilinear upsampling and 3 input channels
// unless inputChannelsOpt says otherwise.
func DefaultUNet(p *nn.Path, numClasses int64, inputChannelsOpt ...int64) *UNet {
	return MustNew(p, config.Default(numClasses, inputChannelsOpt...))
}

// ForwardT implements ts.ModuleT for UNet struct.
// x: [B inputChannels H W] => [B numClasses H W] for any H, W that survive
// the pooling steps.
func (n *UNet) ForwardT(x *ts.Tensor, train bool) *ts.Tensor {
	// e.g. input [1 3 427 640]
	// 0- Shape: [1    3 427 640]
	// 1- Shape: [1   64 427 640]
	// 2- Shape: [1  128 213 320]
	// 3- Shape: [1  256 106 160]
	// 4- Shape: [1  512  53  80]
	// 5- Shape: [1 1024  26  40]
	features := n.encoder.ForwardAll(x, train)
	out := n.decoder.ForwardFeatures(features, train)
	logits := n.segHead.ForwardT(out, train)

	// features[0] is the caller's input.
	deepest := features[len(features)-1]
	for _, f := range features[1:] {
		f.MustDrop()
	}
	if out != deepest {
		out.MustDrop()
	}

	return logits
}

// Forward runs the model in inference mode (batch norm running statistics).
func (n *UNet) Forward(x *ts.Tensor) *ts.Tensor {
	return n.ForwardT(x, false)
}

// Params returns every initializable parameter of the model.
func (n *UNet) Params() []base.Param {
	var params []base.Param
	params = append(params, n.encoder.Params()...)
	params = append(params, n.decoder.Params()...)
	for _, p := range n.segHead.Params() {
		p.Name = "logit." + p.Name
		params = append(params, p)
	}
	return params
}

// NumParams counts the elements of all registered parameters.
func (n *UNet) NumParams() int64 {
	var total int64
	for _, p := range n.Params() {
		numel := int64(1)
		for _, d := range p.Tensor.MustSize() {
			numel *= d
		}
		total += numel
	}
	return total
}

// Config returns the configuration the model was built with.
func (n *UNet) Config() *config.Config {
	return n.config
}

// NumEncoders returns the number of contracting-path stages.
func (n *UNet) NumEncoders() int {
	return n.encoder.Len()
}

// NumDecoders returns the number of expanding-path stages.
func (n *UNet) NumDecoders() int {
	return n.decoder.Len()
}

// Plan statically computes every intermediate shape for a [batch C h w] input.
func (n *UNet) Plan(batch, h, w int64) (*shapeinference.Trace, error) {
	return shapeinference.Plan(n.config, shapeinference.NCHW(batch, n.config.InputChannels, h, w))
}
