package imgio

import (
	"image"
	"image/color"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func checker(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if (x+y)%2 == 0 {
				img.SetNRGBA(x, y, color.NRGBA{R: 255, A: 255})
			} else {
				img.SetNRGBA(x, y, color.NRGBA{B: 255, A: 255})
			}
		}
	}
	return img
}

func TestToCHW(t *testing.T) {
	data, h, w, err := ToCHW(checker(3, 2), 3, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, h)
	assert.Equal(t, 3, w)
	require.Len(t, data, 3*2*3)

	// (0,0) is red, (1,0) is blue
	assert.Equal(t, float32(1), data[0])
	assert.Equal(t, float32(0), data[2*6+0])
	assert.Equal(t, float32(0), data[1])
	assert.Equal(t, float32(1), data[2*6+1])
}

func TestToCHWNormalize(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 1, 1))
	img.SetNRGBA(0, 0, color.NRGBA{R: 255, G: 255, B: 255, A: 255})

	data, _, _, err := ToCHW(img, 3, ImageNetMean, ImageNetStd)
	require.NoError(t, err)
	for ch := range data {
		want := (1 - ImageNetMean[ch]) / ImageNetStd[ch]
		assert.InDelta(t, want, data[ch], 1e-5)
	}
}

func TestToCHWGray(t *testing.T) {
	data, _, _, err := ToCHW(checker(2, 2), 1, nil, nil)
	require.NoError(t, err)
	require.Len(t, data, 4)
	assert.InDelta(t, 0.299, data[0], 1e-6)
	assert.InDelta(t, 0.114, data[1], 1e-6)
}

func TestToCHWErrors(t *testing.T) {
	_, _, _, err := ToCHW(checker(2, 2), 4, nil, nil)
	assert.Error(t, err)

	_, _, _, err = ToCHW(checker(2, 2), 3, []float64{0.5}, []float64{0.5})
	assert.Error(t, err)

	_, _, _, err = ToCHW(checker(2, 2), 1, []float64{0.5}, []float64{0})
	assert.Error(t, err)
}

func TestMaskRoundTripOnDisk(t *testing.T) {
	labels := []int64{0, 1, 2, 3, 0, 1}
	mask, err := LabelImage(labels, 3, 2)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "masks", "m.png")
	require.NoError(t, Save(mask, path))

	got, w, h, err := ReadMask(path)
	require.NoError(t, err)
	assert.Equal(t, 3, w)
	assert.Equal(t, 2, h)
	assert.Equal(t, labels, got)
}

func TestLabelImageErrors(t *testing.T) {
	_, err := LabelImage([]int64{0, 1}, 3, 1)
	assert.Error(t, err)

	_, err = LabelImage([]int64{300}, 1, 1)
	assert.Error(t, err)
}

func TestFitSize(t *testing.T) {
	img := checker(400, 100)

	w, h := FitSize(img, 0)
	assert.Equal(t, [2]int{400, 100}, [2]int{w, h})

	w, h = FitSize(img, 200)
	assert.Equal(t, [2]int{200, 50}, [2]int{w, h})

	w, h = FitSize(checker(10, 40), 20)
	assert.Equal(t, [2]int{5, 20}, [2]int{w, h})
}

func TestResizeNearestKeepsLabels(t *testing.T) {
	mask, err := LabelImage([]int64{0, 1, 2, 3}, 2, 2)
	require.NoError(t, err)

	up := Resize(mask, 4, 4, true)
	labels, w, h, err := MaskLabels(up)
	require.NoError(t, err)
	assert.Equal(t, 4, w)
	assert.Equal(t, 4, h)
	for _, l := range labels {
		assert.Contains(t, []int64{0, 1, 2, 3}, l)
	}

	assert.Same(t, mask, Resize(mask, 2, 2, true))
}

func TestPalette(t *testing.T) {
	p := Palette(5)
	assert.Len(t, p, 5)
	assert.Equal(t, color.NRGBA{A: 255}, p[0])
	for i := 1; i < len(p); i++ {
		assert.NotEqual(t, p[0], p[i])
		for j := 1; j < i; j++ {
			assert.NotEqual(t, p[j], p[i], "colors %d and %d", j, i)
		}
	}

	r, g, b, a := p[1].RGBA()
	assert.Equal(t, uint32(0xffff), r)
	assert.Equal(t, g, b)
	assert.Equal(t, uint32(0xffff), a)

	assert.Len(t, Palette(2), 2)
	assert.Len(t, Palette(1), 1)
	assert.Empty(t, Palette(0))
}

func TestOverlay(t *testing.T) {
	mask, err := LabelImage([]int64{0, 1, 1, 0}, 2, 2)
	require.NoError(t, err)

	out := Overlay(checker(4, 4), mask, 2, 0.5)
	assert.Equal(t, image.Pt(2, 2), out.Bounds().Size())
}
