package base

import (
	"github.com/sugarme/gotch/nn"
	ts "github.com/sugarme/gotch/tensor"
)

// SegmentationHead maps decoder features to per-pixel class scores.
type SegmentationHead struct {
	Conv *nn.Conv2D
}

// NewSegmentationHead creates a SegmentationHead with a ksize x ksize
// same-padding conv. UNet uses ksize = 1. The head emits raw logits; any
// softmax belongs to the loss or the caller.
func NewSegmentationHead(p *nn.Path, cIn, cOut, ksize int64) *SegmentationHead {
	return &SegmentationHead{
		Conv: Conv2d(p, cIn, cOut, ksize, ksize/2, 1),
	}
}

// ForwardT implements ts.ModuleT interface for SegmentationHead.
func (h *SegmentationHead) ForwardT(x *ts.Tensor, train bool) *ts.Tensor {
	return h.Conv.ForwardT(x, train)
}

// Params implements Module.
func (h *SegmentationHead) Params() []Param {
	return []Param{{Name: "conv.weight", Tensor: h.Conv.Ws, Rule: InitFanInNormal}}
}
