package encoder

import (
	ts "github.com/sugarme/gotch/tensor"
)

// Encoder is encoder interface for a image segmentation model.
//
// ForwardAll returns the contracting-path feature stack ordered shallow to
// deep. Element 0 is the input itself; callers own (and drop) the rest.
type Encoder interface {
	ForwardAll(x *ts.Tensor, train bool) []*ts.Tensor
}
