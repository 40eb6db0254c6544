package unet

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/sugarme/gotch/nn"
	ts "github.com/sugarme/gotch/tensor"

	"github.com/sugarme/gounet/base"
	"github.com/sugarme/gounet/config"
	"github.com/sugarme/gounet/shapeinference"
)

// Up is a decoder stage: 2x upsampling, alignment padding against the
// bypass map, channel concat and a double conv.
type Up struct {
	upConv  *nn.Conv2D          // bilinear: interpolate then 3x3 conv
	upTrans *nn.ConvTranspose2D // transposed: 2x2 kernel, stride 2

	DoubleConv *base.DoubleConv
	Attn       *base.SCSE // nil unless attention is enabled
}

// NewUp creates new Up layer. The upsampling maps cIn to cOut channels and
// the double conv maps the concat (cOut + bypass = cIn) back to cOut.
func NewUp(p *nn.Path, cIn, cOut int64, cfg *config.Config) *Up {
	up := &Up{
		DoubleConv: base.NewDoubleConv(p, cIn, cOut, cfg.BatchNormEps),
	}

	switch cfg.Upsample {
	case config.UpsampleTransposed:
		tcfg := nn.DefaultConvTranspose2DConfig()
		tcfg.Stride = []int64{2, 2}
		up.upTrans = nn.NewConvTranspose2D(p.Sub("up"), cIn, cOut, []int64{2, 2}, tcfg)
	default:
		up.upConv = base.Conv2d(p.Sub("up"), cIn, cOut, 3, 1, 1)
	}

	if cfg.Attention == config.AttentionSCSE {
		up.Attn = base.NewSCSE(p.Sub("attn"), cOut)
	}

	return up
}

// upsample doubles the spatial size of x: [B cIn H W] => [B cOut 2H 2W]
func (l *Up) upsample(x *ts.Tensor, train bool) *ts.Tensor {
	if l.upTrans != nil {
		return l.upTrans.Forward(x)
	}

	size := x.MustSize()
	outSize := []int64{size[2] * 2, size[3] * 2}
	interp := x.MustUpsampleBilinear2d(outSize, false, nil, nil, false)
	out := l.upConv.ForwardT(interp, train)
	interp.MustDrop()

	return out
}

// UpForward upsamples x, aligns it with bypass and forwards through double conv.
// x, bypass should be in shape [Batch CHW]; the result has the spatial size
// of bypass.
func (l *Up) UpForward(x, bypass *ts.Tensor, train bool) *ts.Tensor {
	xUp := l.upsample(x, train)

	// Pooling floors odd sizes, so xUp can be up to 1 pixel short per axis.
	pad, err := shapeinference.AlignPad(xUp.MustSize(), bypass.MustSize())
	if err != nil {
		panic(errors.Wrap(err, "decoder alignment"))
	}
	if !pad.IsZero() {
		xUp = xUp.MustConstantPadNd(pad.ConstantPadNd(), true)
	}

	cat := ts.MustCat([]ts.Tensor{*xUp, *bypass}, 1)
	xUp.MustDrop()

	out := l.DoubleConv.ForwardT(cat, train)
	cat.MustDrop()

	if l.Attn != nil {
		refined := l.Attn.ForwardT(out, train)
		out.MustDrop()
		out = refined
	}

	return out
}

// Params returns upsampling, double conv and attention parameters.
func (l *Up) Params() []base.Param {
	var params []base.Param
	if l.upTrans != nil {
		params = append(params, base.Param{Name: "up.weight", Tensor: l.upTrans.Ws, Rule: base.InitFanInNormal})
	} else {
		params = append(params, base.Param{Name: "up.conv.weight", Tensor: l.upConv.Ws, Rule: base.InitFanInNormal})
	}
	params = append(params, l.DoubleConv.Params()...)
	if l.Attn != nil {
		for _, p := range l.Attn.Params() {
			p.Name = "attn." + p.Name
			params = append(params, p)
		}
	}
	return params
}

// UNetDecoder is the expanding path of a UNet.
type UNetDecoder struct {
	blocks []*Up
}

// NewUNetDecoder creates one Up per decoder stage of cfg under p.Sub("dec<i>").
func NewUNetDecoder(p *nn.Path, cfg *config.Config) *UNetDecoder {
	var blocks []*Up
	for i, st := range cfg.DecoderStages() {
		blocks = append(blocks, NewUp(p.Sub(fmt.Sprintf("dec%d", i)), st.In, st.Out, cfg))
	}

	return &UNetDecoder{blocks: blocks}
}

// Len returns the number of decoder stages.
func (d *UNetDecoder) Len() int {
	return len(d.blocks)
}

// ForwardFeatures consumes the encoder stack deepest first: the deepest map
// is upsampled and paired with the next shallower one, and so on. The input
// image (features[0]) is never used as a bypass.
//
// With no decoder stages the deepest feature itself is returned.
func (d *UNetDecoder) ForwardFeatures(features []*ts.Tensor, train bool) *ts.Tensor {
	if len(features) != len(d.blocks)+2 {
		panic(errors.Errorf("decoder with %d stages expects %d features, got %d",
			len(d.blocks), len(d.blocks)+2, len(features)))
	}

	n := len(features)
	x := features[n-1]
	for i, blk := range d.blocks {
		z := blk.UpForward(x, features[n-2-i], train)
		if i > 0 {
			x.MustDrop()
		}
		x = z
	}

	return x
}

// Params returns the parameters of every stage, prefixed by stage name.
func (d *UNetDecoder) Params() []base.Param {
	var params []base.Param
	for i, blk := range d.blocks {
		for _, p := range blk.Params() {
			p.Name = fmt.Sprintf("dec%d.%s", i, p.Name)
			params = append(params, p)
		}
	}
	return params
}
