// Package shapeinference computes the output shapes of the UNet building
// blocks without touching any tensor. Shapes are NCHW: [batch, channel, height, width].
//
// The functions mirror what the tensor operators do at run time so that a
// whole network can be checked (and reported on) before it is built.
package shapeinference

import (
	"fmt"

	"github.com/pkg/errors"
)

// Shape is an NCHW feature map shape.
type Shape []int64

// NCHW builds a Shape.
func NCHW(n, c, h, w int64) Shape {
	return Shape{n, c, h, w}
}

func (s Shape) String() string {
	return fmt.Sprintf("%v", []int64(s))
}

// Batch, Channels, Height and Width index into an NCHW shape.
func (s Shape) Batch() int64    { return s[0] }
func (s Shape) Channels() int64 { return s[1] }
func (s Shape) Height() int64   { return s[2] }
func (s Shape) Width() int64    { return s[3] }

// Spatial returns [height, width].
func (s Shape) Spatial() []int64 {
	return []int64{s[2], s[3]}
}

// Equal reports whether both shapes have identical dims.
func (s Shape) Equal(o Shape) bool {
	if len(s) != len(o) {
		return false
	}
	for i := range s {
		if s[i] != o[i] {
			return false
		}
	}
	return true
}

func checkNCHW(s Shape) error {
	if len(s) != 4 {
		return errors.Errorf("expected rank-4 NCHW shape, got %s", s)
	}
	for i, d := range s {
		if d <= 0 {
			return errors.Errorf("shape %s has non-positive dimension at axis %d", s, i)
		}
	}
	return nil
}

// Conv2DSame is a same-padding convolution: spatial size is kept, channels
// become out. The operand must carry exactly in channels.
func Conv2DSame(operand Shape, in, out int64) (output Shape, err error) {
	if err = checkNCHW(operand); err != nil {
		return nil, err
	}
	if operand.Channels() != in {
		return nil, errors.Errorf("conv expects %d input channels, got shape %s", in, operand)
	}
	if out <= 0 {
		return nil, errors.Errorf("conv output channels must be positive, got %d", out)
	}
	return NCHW(operand.Batch(), out, operand.Height(), operand.Width()), nil
}

// MaxPool2x is a 2x2 max pooling with stride 2 and no padding (floor mode).
func MaxPool2x(operand Shape) (output Shape, err error) {
	if err = checkNCHW(operand); err != nil {
		return nil, err
	}
	h, w := operand.Height()/2, operand.Width()/2
	if h == 0 || w == 0 {
		return nil, errors.Errorf("cannot 2x2-pool spatial size %dx%d", operand.Height(), operand.Width())
	}
	return NCHW(operand.Batch(), operand.Channels(), h, w), nil
}

// Upsample2x doubles the spatial size and maps in to out channels.
func Upsample2x(operand Shape, in, out int64) (output Shape, err error) {
	if err = checkNCHW(operand); err != nil {
		return nil, err
	}
	if operand.Channels() != in {
		return nil, errors.Errorf("upsample expects %d input channels, got shape %s", in, operand)
	}
	return NCHW(operand.Batch(), out, operand.Height()*2, operand.Width()*2), nil
}

// Pad holds the per-edge padding aligning an upsampled map with its bypass.
type Pad struct {
	Top, Bottom, Left, Right int64
}

// IsZero reports whether no padding is needed.
func (p Pad) IsZero() bool {
	return p == Pad{}
}

// ConstantPadNd returns the padding in the layout expected by a constant
// pad over the last two axes: [left, right, top, bottom].
func (p Pad) ConstantPadNd() []int64 {
	return []int64{p.Left, p.Right, p.Top, p.Bottom}
}

// Apply grows the spatial dims of s by p.
func (p Pad) Apply(s Shape) Shape {
	return NCHW(s.Batch(), s.Channels(), s.Height()+p.Top+p.Bottom, s.Width()+p.Left+p.Right)
}

// AlignPad returns the padding that makes upsampled spatially equal to
// bypass: ceil(diff/2) on the leading edge and floor(diff/2) on the trailing
// edge of each spatial axis. A bypass smaller than the upsampled map is an
// error since pooling never grows a feature map.
func AlignPad(upsampled, bypass Shape) (Pad, error) {
	if err := checkNCHW(upsampled); err != nil {
		return Pad{}, err
	}
	if err := checkNCHW(bypass); err != nil {
		return Pad{}, err
	}
	if upsampled.Batch() != bypass.Batch() {
		return Pad{}, errors.Errorf("batch mismatch: upsampled %s, bypass %s", upsampled, bypass)
	}

	dh := bypass.Height() - upsampled.Height()
	dw := bypass.Width() - upsampled.Width()
	if dh < 0 || dw < 0 {
		return Pad{}, errors.Errorf("upsampled %s is larger than bypass %s", upsampled, bypass)
	}

	return Pad{
		Top:    dh - dh/2,
		Bottom: dh / 2,
		Left:   dw - dw/2,
		Right:  dw / 2,
	}, nil
}

// Concat joins shapes along the channel axis. Batch and spatial dims must match.
func Concat(inputs ...Shape) (output Shape, err error) {
	if len(inputs) == 0 {
		return nil, errors.New("concat of no shapes")
	}
	first := inputs[0]
	if err = checkNCHW(first); err != nil {
		return nil, err
	}
	channels := first.Channels()
	for _, s := range inputs[1:] {
		if err = checkNCHW(s); err != nil {
			return nil, err
		}
		if s.Batch() != first.Batch() || s.Height() != first.Height() || s.Width() != first.Width() {
			return nil, errors.Errorf("concat along channels requires equal N,H,W: %s vs %s", first, s)
		}
		channels += s.Channels()
	}
	return NCHW(first.Batch(), channels, first.Height(), first.Width()), nil
}
