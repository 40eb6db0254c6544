package shapeinference

import (
	"github.com/pkg/errors"

	"github.com/sugarme/gounet/config"
)

// DecoderStep records the shapes seen by one decoder stage.
type DecoderStep struct {
	Input     Shape
	Upsampled Shape
	Pad       Pad
	Bypass    Shape
	Concat    Shape
	Output    Shape
}

// Trace is the static walk of a whole UNet for one input shape.
type Trace struct {
	Input Shape
	// Features is the contracting-path stack: Features[0] is the input,
	// Features[i+1] the output of encoder stage i.
	Features []Shape
	Decoder  []DecoderStep
	Output   Shape
}

// MinSpatial is the smallest height/width the contracting path of cfg can
// pool down without collapsing to zero.
func MinSpatial(cfg *config.Config) int64 {
	return int64(1) << uint(len(cfg.EncoderWidths)-1)
}

// Plan validates cfg and walks input through it the same way the model's
// forward pass does.
func Plan(cfg *config.Config, input Shape) (*Trace, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := checkNCHW(input); err != nil {
		return nil, err
	}
	if input.Channels() != cfg.InputChannels {
		return nil, errors.Errorf("input %s does not carry %d channels", input, cfg.InputChannels)
	}

	trace := &Trace{Input: input, Features: []Shape{input}}

	x := input
	for i, st := range cfg.EncoderStages() {
		var err error
		if i > 0 {
			if x, err = MaxPool2x(x); err != nil {
				return nil, errors.Wrapf(err, "encoder stage %d", i)
			}
		}
		if x, err = Conv2DSame(x, st.In, st.Out); err != nil {
			return nil, errors.Wrapf(err, "encoder stage %d", i)
		}
		if x, err = Conv2DSame(x, st.Out, st.Out); err != nil {
			return nil, errors.Wrapf(err, "encoder stage %d", i)
		}
		trace.Features = append(trace.Features, x)
	}

	// Deepest map drives the expanding path, the rest are bypasses deep -> shallow.
	n := len(trace.Features)
	x = trace.Features[n-1]
	for i, st := range cfg.DecoderStages() {
		bypass := trace.Features[n-2-i]
		step := DecoderStep{Input: x, Bypass: bypass}

		var err error
		if step.Upsampled, err = Upsample2x(x, st.In, st.Out); err != nil {
			return nil, errors.Wrapf(err, "decoder stage %d", i)
		}
		if step.Pad, err = AlignPad(step.Upsampled, bypass); err != nil {
			return nil, errors.Wrapf(err, "decoder stage %d", i)
		}
		if step.Concat, err = Concat(step.Pad.Apply(step.Upsampled), bypass); err != nil {
			return nil, errors.Wrapf(err, "decoder stage %d", i)
		}
		if x, err = Conv2DSame(step.Concat, st.In, st.Out); err != nil {
			return nil, errors.Wrapf(err, "decoder stage %d", i)
		}
		if x, err = Conv2DSame(x, st.Out, st.Out); err != nil {
			return nil, errors.Wrapf(err, "decoder stage %d", i)
		}
		step.Output = x
		trace.Decoder = append(trace.Decoder, step)
	}

	out, err := Conv2DSame(x, cfg.OutputWidth(), cfg.NumClasses)
	if err != nil {
		return nil, errors.Wrap(err, "classifier")
	}
	trace.Output = out

	return trace, nil
}
