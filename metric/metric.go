// Package metric scores predicted label maps against ground truth.
package metric

import (
	"github.com/pkg/errors"
	ts "github.com/sugarme/gotch/tensor"
)

// Confusion is a class confusion matrix: Counts[target][pred].
type Confusion struct {
	NumClasses int
	Counts     [][]int64
}

// NewConfusion accumulates pred against target. Both hold one class index
// per pixel; indexes outside [0, numClasses) are an error.
func NewConfusion(pred, target []int64, numClasses int) (*Confusion, error) {
	if len(pred) != len(target) {
		return nil, errors.Errorf("pred has %d pixels, target has %d", len(pred), len(target))
	}
	if numClasses < 2 {
		return nil, errors.Errorf("need at least 2 classes, got %d", numClasses)
	}

	counts := make([][]int64, numClasses)
	for i := range counts {
		counts[i] = make([]int64, numClasses)
	}
	for i := range pred {
		p, t := pred[i], target[i]
		if p < 0 || int(p) >= numClasses || t < 0 || int(t) >= numClasses {
			return nil, errors.Errorf("pixel %d: label out of range (pred=%d, target=%d, classes=%d)", i, p, t, numClasses)
		}
		counts[t][p]++
	}

	return &Confusion{NumClasses: numClasses, Counts: counts}, nil
}

// PixelAccuracy is the fraction of correctly labelled pixels.
func (c *Confusion) PixelAccuracy() float64 {
	var correct, total int64
	for t, row := range c.Counts {
		for p, n := range row {
			total += n
			if t == p {
				correct += n
			}
		}
	}
	if total == 0 {
		return 0
	}
	return float64(correct) / float64(total)
}

func (c *Confusion) classStats(k int) (tp, fp, fn int64) {
	for t, row := range c.Counts {
		for p, n := range row {
			switch {
			case t == k && p == k:
				tp += n
			case p == k:
				fp += n
			case t == k:
				fn += n
			}
		}
	}
	return tp, fp, fn
}

// ClassIoU returns intersection over union of class k and whether the class
// occurs at all (in pred or target).
func (c *Confusion) ClassIoU(k int) (float64, bool) {
	tp, fp, fn := c.classStats(k)
	union := tp + fp + fn
	if union == 0 {
		return 0, false
	}
	return float64(tp) / float64(union), true
}

// MeanIoU averages ClassIoU over the classes that occur.
func (c *Confusion) MeanIoU() float64 {
	var sum float64
	var n int
	for k := 0; k < c.NumClasses; k++ {
		if iou, ok := c.ClassIoU(k); ok {
			sum += iou
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// ClassDice returns 2|A∩B| / (|A|+|B|) of class k.
func (c *Confusion) ClassDice(k int) (float64, bool) {
	tp, fp, fn := c.classStats(k)
	denom := 2*tp + fp + fn
	if denom == 0 {
		return 0, false
	}
	return float64(2*tp) / float64(denom), true
}

func labels(x *ts.Tensor) []int64 {
	vals := x.Float64Values()
	out := make([]int64, len(vals))
	for i, v := range vals {
		out[i] = int64(v + 0.5)
	}
	return out
}

// IoU computes foreground (class 1) intersection over union of binary masks.
func IoU(pred, target *ts.Tensor) float64 {
	c, err := NewConfusion(labels(pred), labels(target), 2)
	if err != nil {
		panic(err)
	}
	iou, _ := c.ClassIoU(1)
	return iou
}

// DiceCoeff computes the foreground Dice coefficient of binary masks.
func DiceCoeff(pred, target *ts.Tensor) float64 {
	c, err := NewConfusion(labels(pred), labels(target), 2)
	if err != nil {
		panic(err)
	}
	dice, _ := c.ClassDice(1)
	return dice
}

// JaccardIndex computes mean IoU over numClasses label maps.
func JaccardIndex(pred, target *ts.Tensor, numClasses int) float64 {
	c, err := NewConfusion(labels(pred), labels(target), numClasses)
	if err != nil {
		panic(err)
	}
	return c.MeanIoU()
}
