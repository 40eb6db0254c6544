package base_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sugarme/gotch"
	"github.com/sugarme/gotch/nn"
	ts "github.com/sugarme/gotch/tensor"

	"github.com/sugarme/gounet/base"
)

func TestFanIn(t *testing.T) {
	fanIn, err := base.FanIn([]int64{64, 3, 3, 3})
	require.NoError(t, err)
	assert.Equal(t, int64(27), fanIn)

	// transposed conv weight: [in, out, kh, kw]
	fanIn, err = base.FanIn([]int64{128, 64, 2, 2})
	require.NoError(t, err)
	assert.Equal(t, int64(256), fanIn)

	_, err = base.FanIn([]int64{4})
	assert.Error(t, err)
}

func TestInitRuleString(t *testing.T) {
	assert.Equal(t, "fan-in-normal", base.InitFanInNormal.String())
	assert.Equal(t, "ones", base.InitOnes.String())
	assert.Equal(t, "zeros", base.InitZeros.String())
}

func TestApplyInit(t *testing.T) {
	vs := nn.NewVarStore(gotch.CPU)
	m := base.NewDoubleConv(vs.Root(), 4, 8, 1e-5)

	params := m.Params()
	require.Len(t, params, 6)
	require.NoError(t, base.ApplyInit(params))

	for _, p := range params {
		vals := p.Tensor.Float64Values()
		switch p.Rule {
		case base.InitFanInNormal:
			assert.Greater(t, variance(vals), 0.0, p.Name)
		case base.InitOnes:
			for _, v := range vals {
				assert.Equal(t, 1.0, v, p.Name)
			}
		case base.InitZeros:
			for _, v := range vals {
				assert.Equal(t, 0.0, v, p.Name)
			}
		}
	}

	assert.Equal(t, "conv1.conv.weight", params[0].Name)
	assert.Equal(t, "conv2.bn.bias", params[5].Name)
}

func TestApplyInitFanInNormalStatistics(t *testing.T) {
	vs := nn.NewVarStore(gotch.CPU)
	m := base.NewConvBnRelu(vs.Root(), 32, 64, 1e-5)

	params := m.Params()
	require.NoError(t, base.ApplyInit(params))

	// conv weight [64 32 3 3]: fan-in 288, std sqrt(2/288)
	w := params[0]
	require.Equal(t, base.InitFanInNormal, w.Rule)
	vals := w.Tensor.Float64Values()
	require.Len(t, vals, 64*32*3*3)

	std := math.Sqrt(2.0 / 288)
	assert.InDelta(t, 0.0, mean(vals), 0.1*std)
	assert.InDelta(t, std, math.Sqrt(variance(vals)), 0.1*std)

	// distinct output channels must not start identical
	perOut := 32 * 3 * 3
	assert.NotEqual(t, vals[:perOut], vals[perOut:2*perOut])

	for _, v := range params[1].Tensor.Float64Values() {
		assert.Equal(t, 1.0, v, params[1].Name)
	}
	assert.True(t, w.Tensor.MustRequiresGrad(), "init must keep weights trainable")
}

func TestApplyInitNilTensor(t *testing.T) {
	err := base.ApplyInit([]base.Param{{Name: "missing"}})
	assert.Error(t, err)
}

func TestDoubleConvShape(t *testing.T) {
	vs := nn.NewVarStore(gotch.CPU)
	m := base.NewDoubleConv(vs.Root(), 3, 16, 1e-5)

	x := ts.MustRandn([]int64{2, 3, 9, 7}, gotch.Float, gotch.CPU)
	y := m.ForwardT(x, false)
	assert.Equal(t, []int64{2, 16, 9, 7}, y.MustSize())

	x.MustDrop()
	y.MustDrop()
}

func TestSCSEKeepsShape(t *testing.T) {
	vs := nn.NewVarStore(gotch.CPU)
	m := base.NewSCSE(vs.Root(), 8)
	require.NoError(t, base.ApplyInit(m.Params()))

	x := ts.MustRandn([]int64{1, 8, 5, 6}, gotch.Float, gotch.CPU)
	y := m.ForwardT(x, false)
	assert.Equal(t, []int64{1, 8, 5, 6}, y.MustSize())

	x.MustDrop()
	y.MustDrop()
}

func TestSegmentationHead(t *testing.T) {
	vs := nn.NewVarStore(gotch.CPU)
	h := base.NewSegmentationHead(vs.Root(), 16, 10, 1)

	x := ts.MustRandn([]int64{1, 16, 11, 13}, gotch.Float, gotch.CPU)
	y := h.ForwardT(x, false)
	assert.Equal(t, []int64{1, 10, 11, 13}, y.MustSize())

	x.MustDrop()
	y.MustDrop()
}

func mean(xs []float64) float64 {
	var m float64
	for _, x := range xs {
		m += x
	}
	return m / float64(len(xs))
}

func variance(xs []float64) float64 {
	mean := mean(xs)

	var v float64
	for _, x := range xs {
		v += (x - mean) * (x - mean)
	}
	return v / float64(len(xs))
}
