package unet_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sugarme/gotch"
	"github.com/sugarme/gotch/nn"
	ts "github.com/sugarme/gotch/tensor"

	"github.com/sugarme/gounet/base"
	"github.com/sugarme/gounet/config"
	"github.com/sugarme/gounet/unet"
)

func smallConfig(mode config.UpsampleMode) *config.Config {
	cfg := config.Default(4, 3)
	cfg.EncoderWidths = []int64{8, 16, 32, 64}
	cfg.DecoderWidths = []int64{64, 32, 16, 8}
	cfg.Upsample = mode
	return cfg
}

func forwardShape(t *testing.T, net *unet.UNet, dims []int64) []int64 {
	t.Helper()

	var size []int64
	ts.NoGrad(func() {
		x := ts.MustRandn(dims, gotch.Float, gotch.CPU)
		y := net.Forward(x)
		size = y.MustSize()
		y.MustDrop()
		x.MustDrop()
	})
	return size
}

func TestNewUNet(t *testing.T) {
	if testing.Short() {
		t.Skip("full-size UNet forward pass")
	}

	vs := nn.NewVarStore(gotch.CPU)
	net := unet.DefaultUNet(vs.Root(), 10)

	assert.Equal(t, 5, net.NumEncoders())
	assert.Equal(t, 4, net.NumDecoders())
	assert.Equal(t, []int64{1, 10, 128, 128}, forwardShape(t, net, []int64{1, 3, 128, 128}))
	assert.Equal(t, []int64{1, 10, 427, 640}, forwardShape(t, net, []int64{1, 3, 427, 640}))
}

func TestSpatialSizePreserved(t *testing.T) {
	for _, mode := range []config.UpsampleMode{config.UpsampleBilinear, config.UpsampleTransposed} {
		vs := nn.NewVarStore(gotch.CPU)
		net, err := unet.New(vs.Root(), smallConfig(mode))
		require.NoError(t, err)

		for _, hw := range [][2]int64{{8, 8}, {9, 11}, {16, 16}, {23, 17}, {31, 40}} {
			got := forwardShape(t, net, []int64{2, 3, hw[0], hw[1]})
			assert.Equal(t, []int64{2, 4, hw[0], hw[1]}, got, "mode=%s hw=%v", mode, hw)
		}
	}
}

func TestSingleStage(t *testing.T) {
	cfg := config.Default(2, 1)
	cfg.EncoderWidths = []int64{8}
	cfg.DecoderWidths = []int64{8}

	vs := nn.NewVarStore(gotch.CPU)
	net, err := unet.New(vs.Root(), cfg)
	require.NoError(t, err)

	assert.Equal(t, 0, net.NumDecoders())
	assert.Equal(t, []int64{1, 2, 5, 7}, forwardShape(t, net, []int64{1, 1, 5, 7}))
}

func TestAttention(t *testing.T) {
	cfg := smallConfig(config.UpsampleBilinear)
	cfg.Attention = config.AttentionSCSE

	vs := nn.NewVarStore(gotch.CPU)
	net, err := unet.New(vs.Root(), cfg)
	require.NoError(t, err)

	assert.Equal(t, []int64{1, 4, 19, 21}, forwardShape(t, net, []int64{1, 3, 19, 21}))
}

func TestInvalidConfig(t *testing.T) {
	cfg := smallConfig(config.UpsampleBilinear)
	cfg.DecoderWidths = []int64{64, 32, 16}

	vs := nn.NewVarStore(gotch.CPU)
	_, err := unet.New(vs.Root(), cfg)
	assert.ErrorIs(t, err, config.ErrInvalidConfig)

	assert.Panics(t, func() { unet.DefaultUNet(vs.Root(), 0) })
}

func TestParameterInit(t *testing.T) {
	vs := nn.NewVarStore(gotch.CPU)
	net, err := unet.New(vs.Root(), smallConfig(config.UpsampleTransposed))
	require.NoError(t, err)

	var convs, scales, shifts int
	for _, p := range net.Params() {
		vals := p.Tensor.Float64Values()
		switch p.Rule {
		case base.InitFanInNormal:
			convs++
			assert.False(t, allEqual(vals, vals[0]), "%s has zero variance", p.Name)
		case base.InitOnes:
			scales++
			assert.True(t, allEqual(vals, 1), p.Name)
		case base.InitZeros:
			shifts++
			assert.True(t, allEqual(vals, 0), p.Name)
		}
	}

	// 4 encoders x 2 convs, 3 decoders x (up + 2 convs), 1 classifier
	assert.Equal(t, 8+9+1, convs)
	assert.Equal(t, 8+6, scales)
	assert.Equal(t, scales, shifts)
	assert.Greater(t, net.NumParams(), int64(0))
}

func TestDeterministicInference(t *testing.T) {
	vs := nn.NewVarStore(gotch.CPU)
	net, err := unet.New(vs.Root(), smallConfig(config.UpsampleBilinear))
	require.NoError(t, err)

	x := ts.MustRandn([]int64{2, 3, 17, 20}, gotch.Float, gotch.CPU)
	defer x.MustDrop()

	var first, second []float64
	ts.NoGrad(func() {
		y1 := net.Forward(x)
		first = y1.Float64Values()
		y1.MustDrop()

		y2 := net.Forward(x)
		second = y2.Float64Values()
		y2.MustDrop()
	})

	assert.Equal(t, first, second)
	// input must survive the forward pass
	assert.Equal(t, []int64{2, 3, 17, 20}, x.MustSize())
}

func TestPlanMatchesForward(t *testing.T) {
	vs := nn.NewVarStore(gotch.CPU)
	net, err := unet.New(vs.Root(), smallConfig(config.UpsampleBilinear))
	require.NoError(t, err)

	trace, err := net.Plan(1, 27, 33)
	require.NoError(t, err)
	assert.Equal(t, []int64(trace.Output), forwardShape(t, net, []int64{1, 3, 27, 33}))
}

func allEqual(xs []float64, v float64) bool {
	for _, x := range xs {
		if x != v {
			return false
		}
	}
	return true
}
