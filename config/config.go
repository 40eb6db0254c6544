// Package config describes the shape of a UNet: class count, input channels
// and the channel widths of the contracting and expanding paths.
package config

import (
	"io"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is returned (wrapped) for every configuration that cannot
// be assembled into a network.
var ErrInvalidConfig = errors.New("invalid unet config")

// UpsampleMode selects how a decoder stage doubles spatial resolution.
type UpsampleMode string

const (
	// UpsampleBilinear is a fixed bilinear interpolation followed by a 3x3 conv.
	UpsampleBilinear UpsampleMode = "bilinear"
	// UpsampleTransposed is a learned 2x2 transposed convolution with stride 2.
	UpsampleTransposed UpsampleMode = "transposed"
)

// AttentionMode selects an optional refinement applied after each decoder stage.
type AttentionMode string

const (
	AttentionNone AttentionMode = "none"
	AttentionSCSE AttentionMode = "scse"
)

var (
	DefaultEncoderWidths = []int64{64, 128, 256, 512, 1024}
	DefaultDecoderWidths = []int64{1024, 512, 256, 128, 64}
)

// Config holds UNet construction parameters.
type Config struct {
	NumClasses    int64         `yaml:"num_classes"`
	InputChannels int64         `yaml:"input_channels"`
	EncoderWidths []int64       `yaml:"encoder_widths"`
	DecoderWidths []int64       `yaml:"decoder_widths"`
	Upsample      UpsampleMode  `yaml:"upsample"`
	Attention     AttentionMode `yaml:"attention"`
	BatchNormEps  float64       `yaml:"batchnorm_eps"`
}

// Stage is the (in, out) channel pair consumed by one encoder or decoder stage.
type Stage struct {
	In  int64
	Out int64
}

// Default returns the classic 5-level UNet configuration.
// Input channels default to 3 (RGB).
func Default(numClasses int64, inputChannelsOpt ...int64) *Config {
	var inputChannels int64 = 3
	if len(inputChannelsOpt) > 0 {
		inputChannels = inputChannelsOpt[0]
	}

	return &Config{
		NumClasses:    numClasses,
		InputChannels: inputChannels,
		EncoderWidths: append([]int64(nil), DefaultEncoderWidths...),
		DecoderWidths: append([]int64(nil), DefaultDecoderWidths...),
		Upsample:      UpsampleBilinear,
		Attention:     AttentionNone,
		BatchNormEps:  1e-5,
	}
}

// EncoderStages zips [input]+enc[:-1] with enc.
// e.g. (3, 64), (64, 128), (128, 256), (256, 512), (512, 1024)
func (c *Config) EncoderStages() []Stage {
	stages := make([]Stage, 0, len(c.EncoderWidths))
	in := c.InputChannels
	for _, out := range c.EncoderWidths {
		stages = append(stages, Stage{In: in, Out: out})
		in = out
	}
	return stages
}

// DecoderStages zips dec with dec[1:].
// e.g. (1024, 512), (512, 256), (256, 128), (128, 64)
func (c *Config) DecoderStages() []Stage {
	if len(c.DecoderWidths) < 2 {
		return nil
	}
	stages := make([]Stage, 0, len(c.DecoderWidths)-1)
	for i := 1; i < len(c.DecoderWidths); i++ {
		stages = append(stages, Stage{In: c.DecoderWidths[i-1], Out: c.DecoderWidths[i]})
	}
	return stages
}

// BypassChannels returns the channel count of the encoder output paired with
// decoder stage i. Decoder 0 pairs with the second deepest encoder output.
func (c *Config) BypassChannels(i int) int64 {
	return c.EncoderWidths[len(c.EncoderWidths)-2-i]
}

// OutputWidth is the channel count fed into the final 1x1 classifier.
func (c *Config) OutputWidth() int64 {
	return c.DecoderWidths[len(c.DecoderWidths)-1]
}

// Validate checks that the encoder and decoder widths describe a symmetric
// network whose channel counts line up at every concatenation.
func (c *Config) Validate() error {
	if c.NumClasses <= 0 {
		return errors.Wrapf(ErrInvalidConfig, "num_classes must be positive, got %d", c.NumClasses)
	}
	if c.InputChannels <= 0 {
		return errors.Wrapf(ErrInvalidConfig, "input_channels must be positive, got %d", c.InputChannels)
	}
	if len(c.EncoderWidths) == 0 {
		return errors.Wrap(ErrInvalidConfig, "encoder_widths is empty")
	}
	if len(c.DecoderWidths) == 0 {
		return errors.Wrap(ErrInvalidConfig, "decoder_widths is empty")
	}
	for i, w := range c.EncoderWidths {
		if w <= 0 {
			return errors.Wrapf(ErrInvalidConfig, "encoder_widths[%d] must be positive, got %d", i, w)
		}
	}
	for i, w := range c.DecoderWidths {
		if w <= 0 {
			return errors.Wrapf(ErrInvalidConfig, "decoder_widths[%d] must be positive, got %d", i, w)
		}
	}

	// E encoder stages pair with E-1 decoder stages.
	if len(c.DecoderWidths) != len(c.EncoderWidths) {
		return errors.Wrapf(ErrInvalidConfig, "expected %d decoder widths for %d encoder widths, got %d",
			len(c.EncoderWidths), len(c.EncoderWidths), len(c.DecoderWidths))
	}
	deepest := c.EncoderWidths[len(c.EncoderWidths)-1]
	if c.DecoderWidths[0] != deepest {
		return errors.Wrapf(ErrInvalidConfig, "decoder_widths[0]=%d must equal the deepest encoder width %d",
			c.DecoderWidths[0], deepest)
	}
	for i, s := range c.DecoderStages() {
		bypass := c.BypassChannels(i)
		if s.Out+bypass != s.In {
			return errors.Wrapf(ErrInvalidConfig, "decoder stage %d: upsampled %d + bypass %d channels != %d",
				i, s.Out, bypass, s.In)
		}
	}

	switch c.Upsample {
	case UpsampleBilinear, UpsampleTransposed:
	default:
		return errors.Wrapf(ErrInvalidConfig, "unknown upsample mode %q", c.Upsample)
	}
	switch c.Attention {
	case AttentionNone, AttentionSCSE:
	default:
		return errors.Wrapf(ErrInvalidConfig, "unknown attention mode %q", c.Attention)
	}
	if c.BatchNormEps <= 0 {
		return errors.Wrapf(ErrInvalidConfig, "batchnorm_eps must be positive, got %g", c.BatchNormEps)
	}

	return nil
}

// Parse reads a YAML config. Fields left out keep their Default values.
func Parse(r io.Reader) (*Config, error) {
	cfg := Default(1)
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && err != io.EOF {
		return nil, errors.Wrap(err, "decode config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load reads a YAML config file.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open config")
	}
	defer f.Close()

	cfg, err := Parse(f)
	if err != nil {
		return nil, errors.Wrapf(err, "load %s", path)
	}
	return cfg, nil
}
