package base

import (
	"fmt"
	"math"

	"github.com/pkg/errors"
	ts "github.com/sugarme/gotch/tensor"
	"gonum.org/v1/gonum/stat/distuv"
)

// InitRule tags a parameter with the initialization it receives when a
// model is built.
type InitRule int

const (
	// InitFanInNormal draws from N(0, 2/fanIn) (He/Kaiming normal).
	InitFanInNormal InitRule = iota
	// InitOnes fills with 1 (batch norm scale).
	InitOnes
	// InitZeros fills with 0 (batch norm shift).
	InitZeros
)

func (r InitRule) String() string {
	switch r {
	case InitFanInNormal:
		return "fan-in-normal"
	case InitOnes:
		return "ones"
	case InitZeros:
		return "zeros"
	default:
		return fmt.Sprintf("InitRule(%d)", int(r))
	}
}

// Param is a learnable tensor owned by a block together with its init rule.
type Param struct {
	Name   string
	Tensor *ts.Tensor
	Rule   InitRule
}

// Module is a block that can be evaluated and that reports its parameters.
type Module interface {
	ts.ModuleT
	Params() []Param
}

// FanIn returns size(1) * prod(kernel dims) of a conv weight shape.
// Conv weights are [out, in, kh, kw]; transposed conv weights are [in, out, kh, kw].
func FanIn(dims []int64) (int64, error) {
	if len(dims) < 2 {
		return 0, errors.Errorf("fan-in needs a weight of rank >= 2, got %v", dims)
	}
	fanIn := dims[1]
	for _, d := range dims[2:] {
		fanIn *= d
	}
	if fanIn <= 0 {
		return 0, errors.Errorf("invalid weight shape %v", dims)
	}
	return fanIn, nil
}

// ApplyInit initializes every parameter by its rule. Writes happen under
// ts.NoGrad since the targets are leaf tensors that require grad.
func ApplyInit(params []Param) error {
	var err error
	ts.NoGrad(func() {
		for _, p := range params {
			if err = initParam(p); err != nil {
				return
			}
		}
	})
	return err
}

func initParam(p Param) error {
	if p.Tensor == nil {
		return errors.Errorf("param %q has no tensor", p.Name)
	}

	switch p.Rule {
	case InitFanInNormal:
		dims, err := p.Tensor.Size()
		if err != nil {
			return errors.Wrapf(err, "param %q", p.Name)
		}
		fanIn, err := FanIn(dims)
		if err != nil {
			return errors.Wrapf(err, "param %q", p.Name)
		}
		src, err := fanInNormal(dims, fanIn)
		if err != nil {
			return errors.Wrapf(err, "param %q", p.Name)
		}
		device, err := p.Tensor.Device()
		if err != nil {
			src.MustDrop()
			return errors.Wrapf(err, "param %q", p.Name)
		}
		src, err = src.To(device, true)
		if err != nil {
			return errors.Wrapf(err, "param %q", p.Name)
		}
		p.Tensor.Copy_(src)
		src.MustDrop()
	case InitOnes:
		if err := p.Tensor.Fill_(ts.FloatScalar(1.0)); err != nil {
			return errors.Wrapf(err, "param %q", p.Name)
		}
	case InitZeros:
		if err := p.Tensor.Fill_(ts.FloatScalar(0.0)); err != nil {
			return errors.Wrapf(err, "param %q", p.Name)
		}
	default:
		return errors.Errorf("param %q: unknown init rule %v", p.Name, p.Rule)
	}

	return nil
}

// fanInNormal draws a CPU tensor of shape dims from N(0, 2/fanIn).
func fanInNormal(dims []int64, fanIn int64) (*ts.Tensor, error) {
	numel := int64(1)
	for _, d := range dims {
		numel *= d
	}

	dist := distuv.Normal{Mu: 0, Sigma: math.Sqrt(2.0 / float64(fanIn))}
	data := make([]float32, numel)
	for i := range data {
		data[i] = float32(dist.Rand())
	}

	x, err := ts.OfSlice(data)
	if err != nil {
		return nil, err
	}
	return x.View(dims, true)
}

func prefixed(prefix string, params []Param) []Param {
	out := make([]Param, len(params))
	for i, p := range params {
		p.Name = prefix + "." + p.Name
		out[i] = p
	}
	return out
}
