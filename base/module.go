package base

import (
	"github.com/sugarme/gotch/nn"
	ts "github.com/sugarme/gotch/tensor"
)

// Conv2d creates Conv2D module.
func Conv2d(p *nn.Path, cIn, cOut, ksize, padding, stride int64) *nn.Conv2D {
	config := nn.DefaultConv2DConfig()
	config.Stride = []int64{stride, stride}
	config.Padding = []int64{padding, padding}

	return nn.NewConv2D(p, cIn, cOut, ksize, config)
}

// ConvBnRelu is a 3x3 same-padding convolution followed by batch norm and ReLU.
type ConvBnRelu struct {
	Conv *nn.Conv2D
	Bn   *nn.BatchNorm
}

// NewConvBnRelu creates a ConvBnRelu stage mapping cIn to cOut channels.
func NewConvBnRelu(p *nn.Path, cIn, cOut int64, eps float64) *ConvBnRelu {
	bnConfig := nn.DefaultBatchNormConfig()
	bnConfig.Eps = eps

	return &ConvBnRelu{
		Conv: Conv2d(p.Sub("conv"), cIn, cOut, 3, 1, 1),
		Bn:   nn.BatchNorm2D(p.Sub("bn"), cOut, bnConfig),
	}
}

// ForwardT implements ts.ModuleT interface for ConvBnRelu.
func (m *ConvBnRelu) ForwardT(x *ts.Tensor, train bool) *ts.Tensor {
	c := m.Conv.ForwardT(x, train)
	bn := m.Bn.ForwardT(c, train)
	c.MustDrop()

	return bn.MustRelu(true)
}

// Params returns conv weight (fan-in normal) and batch norm scale/shift.
func (m *ConvBnRelu) Params() []Param {
	return []Param{
		{Name: "conv.weight", Tensor: m.Conv.Ws, Rule: InitFanInNormal},
		{Name: "bn.weight", Tensor: m.Bn.Ws, Rule: InitOnes},
		{Name: "bn.bias", Tensor: m.Bn.Bs, Rule: InitZeros},
	}
}

// DoubleConv is two ConvBnRelu stages at constant resolution:
// cIn -> cOut -> cOut.
type DoubleConv struct {
	Conv1 *ConvBnRelu
	Conv2 *ConvBnRelu
}

// NewDoubleConv creates a DoubleConv.
func NewDoubleConv(p *nn.Path, cIn, cOut int64, eps float64) *DoubleConv {
	return &DoubleConv{
		Conv1: NewConvBnRelu(p.Sub("conv1"), cIn, cOut, eps),
		Conv2: NewConvBnRelu(p.Sub("conv2"), cOut, cOut, eps),
	}
}

// ForwardT implements ts.ModuleT interface for DoubleConv.
func (m *DoubleConv) ForwardT(x *ts.Tensor, train bool) *ts.Tensor {
	c1 := m.Conv1.ForwardT(x, train)
	c2 := m.Conv2.ForwardT(c1, train)
	c1.MustDrop()

	return c2
}

// Params implements Module.
func (m *DoubleConv) Params() []Param {
	var params []Param
	params = append(params, prefixed("conv1", m.Conv1.Params())...)
	params = append(params, prefixed("conv2", m.Conv2.Params())...)
	return params
}

// SCSE is concurrent spatial and channel squeeze and excitement module.
// Ref. https://arxiv.org/abs/1808.08127
type SCSE struct {
	sqz1 *nn.Conv2D
	sqz2 *nn.Conv2D
	spat *nn.Conv2D
}

// NewSCSE creates new SCSE. Reduction defaults to 16.
func NewSCSE(p *nn.Path, cIn int64, reductionOpt ...int64) *SCSE {
	var reduction int64 = 16
	if len(reductionOpt) > 0 {
		reduction = reductionOpt[0]
	}
	mid := cIn / reduction
	if mid < 1 {
		mid = 1
	}

	return &SCSE{
		sqz1: Conv2d(p.Sub("sqzconv1"), cIn, mid, 1, 0, 1),
		sqz2: Conv2d(p.Sub("sqzconv2"), mid, cIn, 1, 0, 1),
		spat: Conv2d(p.Sub("spatconv"), cIn, 1, 1, 0, 1),
	}
}

// ForwardT implement ts.ModuleT for SCSE struct.
// out = x * cSE(x) + x * sSE(x)
func (m *SCSE) ForwardT(x *ts.Tensor, train bool) *ts.Tensor {
	// Channel squeeze excite: [B C H W] -> [B C 1 1]
	pooled := x.MustAdaptiveAvgPool2d([]int64{1, 1}, false)
	s1 := m.sqz1.ForwardT(pooled, train)
	pooled.MustDrop()
	s1 = s1.MustRelu(true)
	s2 := m.sqz2.ForwardT(s1, train)
	s1.MustDrop()
	cse := s2.MustSigmoid(true)

	// Spatial squeeze excite: [B C H W] -> [B 1 H W]
	sp := m.spat.ForwardT(x, train)
	sse := sp.MustSigmoid(true)

	cmul := x.MustMul(cse, false)
	smul := x.MustMul(sse, false)
	res := cmul.MustAdd(smul, true)

	cse.MustDrop()
	sse.MustDrop()
	smul.MustDrop()

	return res
}

// Params implements Module.
func (m *SCSE) Params() []Param {
	return []Param{
		{Name: "sqzconv1.weight", Tensor: m.sqz1.Ws, Rule: InitFanInNormal},
		{Name: "sqzconv2.weight", Tensor: m.sqz2.Ws, Rule: InitFanInNormal},
		{Name: "spatconv.weight", Tensor: m.spat.Ws, Rule: InitFanInNormal},
	}
}
