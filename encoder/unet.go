package encoder

import (
	"fmt"

	"github.com/sugarme/gotch/nn"
	ts "github.com/sugarme/gotch/tensor"

	"github.com/sugarme/gounet/base"
	"github.com/sugarme/gounet/config"
)

// Block is an encoder stage at constant resolution: 2x (conv 3x3 -> bn -> relu).
type Block struct {
	*base.DoubleConv
}

// NewBlock creates a non-downsampling encoder Block.
func NewBlock(p *nn.Path, cIn, cOut int64, eps float64) *Block {
	return &Block{base.NewDoubleConv(p, cIn, cOut, eps)}
}

// Down is an encoder stage that halves resolution with a 2x2 max pool
// before its double conv.
type Down struct {
	*base.DoubleConv
}

// NewDown creates a new Down ModuleT layer.
func NewDown(p *nn.Path, cIn, cOut int64, eps float64) *Down {
	return &Down{base.NewDoubleConv(p, cIn, cOut, eps)}
}

// ForwardT implements ts.ModuleT interface.
func (l *Down) ForwardT(x *ts.Tensor, train bool) *ts.Tensor {
	// Down sample to half size: [B C H W] => [B C H/2 W/2]
	// ksize = 2; stride=2; padding=0; dilation=1; ceil=false
	down := x.MustMaxPool2d([]int64{2, 2}, []int64{2, 2}, []int64{0, 0}, []int64{1, 1}, false, false)
	out := l.DoubleConv.ForwardT(down, train)
	down.MustDrop()

	return out
}

// UNetEncoder is the contracting path of a UNet.
type UNetEncoder struct {
	stages []base.Module
}

// NewUNetEncoder builds one Block followed by a Down per remaining encoder
// stage of cfg. Stage i lives under p.Sub("enc<i>").
func NewUNetEncoder(p *nn.Path, cfg *config.Config) *UNetEncoder {
	var stages []base.Module
	for i, st := range cfg.EncoderStages() {
		sp := p.Sub(fmt.Sprintf("enc%d", i))
		if i == 0 {
			stages = append(stages, NewBlock(sp, st.In, st.Out, cfg.BatchNormEps))
			continue
		}
		stages = append(stages, NewDown(sp, st.In, st.Out, cfg.BatchNormEps))
	}

	return &UNetEncoder{stages: stages}
}

// Len returns the number of encoder stages.
func (e *UNetEncoder) Len() int {
	return len(e.stages)
}

// ForwardAll implements Encoder interface for UNetEncoder.
// The returned slice has Len()+1 elements and is allocated per call.
func (e *UNetEncoder) ForwardAll(x *ts.Tensor, train bool) []*ts.Tensor {
	features := make([]*ts.Tensor, 0, len(e.stages)+1)
	features = append(features, x)
	for _, st := range e.stages {
		features = append(features, st.ForwardT(features[len(features)-1], train))
	}

	return features
}

// Params returns the parameters of every stage, prefixed by stage name.
func (e *UNetEncoder) Params() []base.Param {
	var params []base.Param
	for i, st := range e.stages {
		for _, p := range st.Params() {
			p.Name = fmt.Sprintf("enc%d.%s", i, p.Name)
			params = append(params, p)
		}
	}
	return params
}
