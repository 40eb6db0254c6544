// Package imgio reads images and masks from disk, converts them to planar
// float data for the model and renders predicted label maps.
package imgio

import (
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"

	"github.com/chai2010/tiff"
	"github.com/disintegration/imaging"
	"github.com/nfnt/resize"
	"github.com/pkg/errors"
	"golang.org/x/image/draw"
	"gonum.org/v1/plot/palette"
)

// ImageNet RGB mean and standard deviation.
var (
	ImageNetMean = []float64{0.485, 0.456, 0.406}
	ImageNetStd  = []float64{0.229, 0.224, 0.225}
)

// ReadImage reads image from file. TIFF goes through chai2010/tiff (which
// copes with the large multi-strip files of microscopy datasets), the rest
// through imaging.
func ReadImage(filename string) (image.Image, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".tif", ".tiff":
		f, err := os.Open(filename)
		if err != nil {
			return nil, err
		}
		defer f.Close()

		img, err := tiff.Decode(f)
		if err != nil {
			return nil, errors.Wrapf(err, "decode %s", filename)
		}
		return img, nil
	default:
		img, err := imaging.Open(filename)
		if err != nil {
			return nil, errors.Wrapf(err, "open %s", filename)
		}
		return img, nil
	}
}

// Save writes img, the format is picked from the file extension.
func Save(img image.Image, filename string) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		return err
	}
	return imaging.Save(img, filename)
}

// Resize scales img to w x h. Masks must use nearest so labels stay intact.
func Resize(img image.Image, w, h int, nearest bool) image.Image {
	b := img.Bounds()
	if b.Dx() == w && b.Dy() == h {
		return img
	}
	interp := resize.Lanczos3
	if nearest {
		interp = resize.NearestNeighbor
	}
	return resize.Resize(uint(w), uint(h), img, interp)
}

// FitSize returns the size of img shrunk so that its longer side is at most
// maxSide. maxSide <= 0 keeps the original size.
func FitSize(img image.Image, maxSide int) (w, h int) {
	b := img.Bounds()
	w, h = b.Dx(), b.Dy()
	if maxSide <= 0 || (w <= maxSide && h <= maxSide) {
		return w, h
	}
	if w >= h {
		h = max(1, h*maxSide/w)
		w = maxSide
	} else {
		w = max(1, w*maxSide/h)
		h = maxSide
	}
	return w, h
}

// toGrayScale converts RGB values in [0, 1] to luminosity.
func toGrayScale(r, g, b float64) float64 {
	return 0.299*r + 0.587*g + 0.114*b
}

// ToCHW converts img to planar [channels, h, w] float32 data scaled to
// [0, 1] then normalized with mean/std (nil skips normalization).
// channels is 3 (RGB) or 1 (luminosity).
func ToCHW(img image.Image, channels int, mean, std []float64) (data []float32, h, w int, err error) {
	if channels != 1 && channels != 3 {
		return nil, 0, 0, errors.Errorf("unsupported channel count %d, want 1 or 3", channels)
	}
	if mean != nil && (len(mean) != channels || len(std) != channels) {
		return nil, 0, 0, errors.Errorf("mean/std need %d values, got %d/%d", channels, len(mean), len(std))
	}
	for _, s := range std {
		if s == 0 {
			return nil, 0, 0, errors.New("std must be non-zero")
		}
	}

	b := img.Bounds()
	w, h = b.Dx(), b.Dy()
	rgba := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)

	plane := w * h
	data = make([]float32, channels*plane)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := rgba.NRGBAAt(x, y)
			px := []float64{float64(c.R) / 255, float64(c.G) / 255, float64(c.B) / 255}
			if channels == 1 {
				px = []float64{toGrayScale(px[0], px[1], px[2])}
			}
			for ch, v := range px {
				if mean != nil {
					v = (v - mean[ch]) / std[ch]
				}
				data[ch*plane+y*w+x] = float32(v)
			}
		}
	}

	return data, h, w, nil
}

// LabelImage renders a label map as a gray image whose pixel value is the
// class index.
func LabelImage(labels []int64, w, h int) (*image.Gray, error) {
	if len(labels) != w*h {
		return nil, errors.Errorf("%d labels do not fill %dx%d", len(labels), w, h)
	}
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i, l := range labels {
		if l < 0 || l > 255 {
			return nil, errors.Errorf("label %d at pixel %d does not fit in a gray mask", l, i)
		}
		img.Pix[i] = uint8(l)
	}
	return img, nil
}

// ReadMask reads a gray mask written by LabelImage (or any image whose
// luminance is the class index).
func ReadMask(filename string) (labels []int64, w, h int, err error) {
	img, err := ReadImage(filename)
	if err != nil {
		return nil, 0, 0, err
	}
	return MaskLabels(img)
}

// MaskLabels extracts class indexes from a gray mask image.
func MaskLabels(img image.Image) (labels []int64, w, h int, err error) {
	b := img.Bounds()
	w, h = b.Dx(), b.Dy()
	gray := image.NewGray(image.Rect(0, 0, w, h))
	draw.Draw(gray, gray.Bounds(), img, b.Min, draw.Src)

	labels = make([]int64, w*h)
	for i, v := range gray.Pix {
		labels[i] = int64(v)
	}
	return labels, w, h, nil
}

// Palette returns n distinct colors. Class 0 (background) is black, the
// rest are spread over the hue wheel from red to magenta.
func Palette(n int) color.Palette {
	if n <= 0 {
		return color.Palette{}
	}
	p := color.Palette{color.NRGBA{A: 255}}
	if n > 1 {
		p = append(p, palette.Rainbow(n-1, palette.Red, palette.Magenta, 0.8, 1, 1).Colors()...)
	}
	return p
}

// ColorMask paints each label with its palette color.
func ColorMask(mask *image.Gray, numClasses int) *image.Paletted {
	pal := Palette(max(numClasses, 2))
	out := image.NewPaletted(mask.Bounds(), pal)
	for i, v := range mask.Pix {
		if int(v) < len(pal) {
			out.Pix[i] = v
		}
	}
	return out
}

// Overlay blends the colorized mask over img with the given opacity.
func Overlay(img image.Image, mask *image.Gray, numClasses int, opacity float64) *image.NRGBA {
	colored := ColorMask(mask, numClasses)
	base := imaging.Clone(img)
	if base.Bounds().Size() != colored.Bounds().Size() {
		base = imaging.Resize(base, colored.Bounds().Dx(), colored.Bounds().Dy(), imaging.Lanczos)
	}
	return imaging.Overlay(base, colored, image.Pt(0, 0), opacity)
}
